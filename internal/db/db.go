package db

import (
	"database/sql"
	"errors"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// Alias is the schema name a translation database is attached under. Reads
// qualify their table names with it, so which physical file answers a query
// is decided entirely by the attachment controller.
const Alias = "trans"

// ErrNoTranslationAttached is returned by read queries when no translation
// database is attached. Queries fail fast instead of returning empty results
// so "no translation downloaded" and a wiring bug stay distinguishable.
var ErrNoTranslationAttached = errors.New("no translation database attached")

// Open opens the app-owned main database and creates its schema. The
// returned handle is the process-wide connection: it is opened once at
// startup, never reopened, and pinned to a single underlying connection so
// ATTACH and the queries that follow it always see the same session.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open main database: %w", err)
	}

	// ATTACH is per-connection state; a pool would scatter it.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return conn, nil
}
