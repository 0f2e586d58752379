package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	StorageDir         string        `envconfig:"STORAGE_DIR" default:"data/translations"`
	MainDBPath         string        `envconfig:"MAIN_DB_PATH" default:"data/versed.db"`
	RemoteBaseURL      string        `envconfig:"REMOTE_BASE_URL" default:"https://downloads.versedapp.io/translations"`
	DefaultTranslation string        `envconfig:"DEFAULT_TRANSLATION" default:"KJV"`
	TempFileMaxAge     time.Duration `envconfig:"TEMP_FILE_MAX_AGE" default:"24h"`
	DownloadTimeout    time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`
	WebhookURL         string        `envconfig:"WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"versed"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
