package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/versedapp/versed/internal/logctx"
)

const dirPerm = 0755

// TempSuffix marks in-flight download files inside the store directory.
// Files carrying it are never reported by ListFiles and are swept on startup.
const TempSuffix = ".part"

// Store manages the directory holding downloaded translation databases.
// It only ever deals in bare file names; path construction stays in one place.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// EnsureDir creates the storage directory if it does not exist yet.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.dir, err)
	}

	return nil
}

// PathFor maps a file name to its absolute location in the store. No I/O.
func (s *Store) PathFor(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Exists reports whether filename is present in the store.
func (s *Store) Exists(filename string) bool {
	info, err := os.Stat(s.PathFor(filename))

	return err == nil && !info.IsDir()
}

// ListFiles returns the names of all completed files in the store.
// In-flight temp files are excluded.
func (s *Store) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), TempSuffix) {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

// MoveAtomic replaces the stored file named filename with the file at
// fromPath using a rename. A stale destination is removed first. On failure
// the source file is left in place so the caller can retry.
func (s *Store) MoveAtomic(fromPath, filename string) error {
	target := s.PathFor(filename)

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale file %s: %w", target, err)
	}

	if err := os.Rename(fromPath, target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", fromPath, err)
	}

	return nil
}

// Delete removes filename from the store. Deleting an absent file is not an
// error.
func (s *Store) Delete(filename string) error {
	if err := os.Remove(s.PathFor(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}

	return nil
}

// SweepTemp deletes temp files left behind by interrupted downloads that are
// older than maxAge. Recent ones are left alone; a new download for the same
// translation removes its own temp file before starting anyway.
func (s *Store) SweepTemp(ctx context.Context, maxAge time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read storage directory: %w", err)
	}

	now := time.Now()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TempSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}

		if err := os.Remove(s.PathFor(entry.Name())); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to sweep temp file", "file", entry.Name(), "err", err)

			continue
		}

		logger.Info("swept orphaned temp file", "file", entry.Name())
	}

	return nil
}
