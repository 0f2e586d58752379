package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/config"
	"github.com/versedapp/versed/internal/db"
	"github.com/versedapp/versed/internal/download"
	"github.com/versedapp/versed/internal/http/rest"
	"github.com/versedapp/versed/internal/logctx"
	"github.com/versedapp/versed/internal/notifier"
	"github.com/versedapp/versed/internal/selection"
	"github.com/versedapp/versed/internal/settings"
	"github.com/versedapp/versed/internal/store"
	"github.com/versedapp/versed/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("versed starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	// =========================================================================
	// Start Translation Store
	fs := store.New(cfg.StorageDir)
	if err := fs.EnsureDir(); err != nil {
		return err
	}

	if err := fs.SweepTemp(ctx, cfg.TempFileMaxAge); err != nil {
		logger.Warn("failed to sweep temp files", "err", err)
	}

	cat := catalog.Default()

	// =========================================================================
	// Start Main Database
	conn, err := db.Open(cfg.MainDBPath)
	if err != nil {
		return fmt.Errorf("failed to open main database: %w", err)
	}
	defer conn.Close()

	settingsStore := settings.New(conn, tel)
	controller := db.NewController(conn, fs, cat, tel)

	// =========================================================================
	// Start Downloader
	dl := download.NewManager(cfg.RemoteBaseURL, &http.Client{Timeout: cfg.DownloadTimeout}, cat, fs, tel)
	defer dl.Close()

	dl.Run(ctx)

	// =========================================================================
	// Start Selection State
	sel := selection.New(settingsStore, fs, cat, controller, cfg.DefaultTranslation)

	if err := sel.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile selection: %w", err)
	}

	logger.Info("selection reconciled",
		"translation", sel.Current(),
		"ready", sel.Ready(),
		"downloaded", sel.Downloaded(),
	)

	sel.WatchDownloads(ctx, dl.OnDownloadFinished)
	setupNotifications(ctx, dl, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, tel, cat, dl, sel, controller)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}

		return nil
	})

	return g.Wait()
}

func setupNotifications(ctx context.Context, dl *download.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.WebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.WebhookURL}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-dl.OnDownloadFailed:
				if !ok {
					return
				}

				logger.Error("translation download failed", "translation", event.TranslationID, "err", event.Err)

				if notif == nil {
					continue
				}

				if notifyErr := notif.Notify(
					"❌ Download failed for translation: " + event.TranslationID,
				); notifyErr != nil {
					logger.Error("failed to send notification", "err", notifyErr)
				}
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	tel *telemetry.Telemetry,
	cat *catalog.Catalog,
	dl *download.Manager,
	sel *selection.Service,
	controller *db.Controller,
) *http.Server {
	tHandler := rest.NewTranslationHandler(cat, dl, sel, controller)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(tel.HTTPMetrics)

	r.Mount("/v1", tHandler.Routes())
	r.Handle("/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "versed"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
