package selection

import (
	"context"
	"fmt"
	"sync"

	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/db"
	"github.com/versedapp/versed/internal/download"
	"github.com/versedapp/versed/internal/logctx"
	"github.com/versedapp/versed/internal/settings"
	"github.com/versedapp/versed/internal/store"
)

// KeySelectedTranslation is the settings key holding the active translation
// id.
const KeySelectedTranslation = "selected_translation"

// NotDownloadedError is returned when a translation without a local backing
// file is selected.
type NotDownloadedError struct {
	ID string
}

func (e *NotDownloadedError) Error() string {
	return fmt.Sprintf("translation %q is not downloaded", e.ID)
}

// Service owns the single source of truth for which translation is active.
// The persisted selection is reconciled against the files actually on disk
// at startup, and every change goes through persist-then-switch so the
// attachment always matches the recorded selection.
type Service struct {
	settings  *settings.Store
	fs        *store.Store
	cat       *catalog.Catalog
	ctrl      *db.Controller
	defaultID string

	mu         sync.Mutex
	current    string // active translation id, "" when none
	downloaded map[string]bool
	ready      bool
}

func New(st *settings.Store, fs *store.Store, cat *catalog.Catalog, ctrl *db.Controller, defaultID string) *Service {
	return &Service{
		settings:   st,
		fs:         fs,
		cat:        cat,
		ctrl:       ctrl,
		defaultID:  defaultID,
		downloaded: make(map[string]bool),
	}
}

// Current returns the active translation id, or "" when none is selected.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Ready reports whether a translation database is attached and queryable.
// Read endpoints must not be served while this is false.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready
}

// IsDownloaded reports whether the translation's backing file is present.
func (s *Service) IsDownloaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.downloaded[id]
}

// Downloaded returns the ids of all downloaded translations in catalog
// order.
func (s *Service) Downloaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string

	for _, t := range s.cat.All() {
		if s.downloaded[t.ID] {
			ids = append(ids, t.ID)
		}
	}

	return ids
}

// Reconcile loads the persisted selection, validates it against the files
// actually on disk and attaches the result. It must run before any read
// query is served. A selection pointing at a missing file is discarded and
// replaced by a downloaded fallback, or cleared entirely. Attach failures
// degrade to "no translation attached" instead of failing startup.
func (s *Service) Reconcile(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	persisted, err := s.settings.Get(ctx, KeySelectedTranslation, "")
	if err != nil {
		return fmt.Errorf("failed to load persisted selection: %w", err)
	}

	downloaded, err := s.scanDownloaded()
	if err != nil {
		return fmt.Errorf("failed to scan translation store: %w", err)
	}

	selected := persisted

	if selected != "" {
		if _, err := s.cat.Get(selected); err != nil {
			logger.Warn("persisted selection is not in the catalog, clearing", "translation", selected)

			selected = ""
		} else if !downloaded[selected] {
			logger.Warn("persisted selection has no backing file, clearing", "translation", selected)

			selected = ""
		}
	}

	if selected == "" {
		selected = s.pickFallback(downloaded)
		if selected != "" {
			logger.Info("falling back to downloaded translation", "translation", selected)
		}
	}

	if selected != persisted {
		if err := s.settings.Set(ctx, KeySelectedTranslation, selected); err != nil {
			return fmt.Errorf("failed to persist reconciled selection: %w", err)
		}
	}

	s.mu.Lock()
	s.current = selected
	s.downloaded = downloaded
	s.mu.Unlock()

	s.applySwitch(ctx)

	return nil
}

// Select makes the given translation active. The translation must be in the
// catalog and downloaded. Selecting the already active translation is a
// no-op.
func (s *Service) Select(ctx context.Context, id string) error {
	if _, err := s.cat.Get(id); err != nil {
		return err
	}

	s.mu.Lock()

	if id == s.current {
		s.mu.Unlock()

		return nil
	}

	if !s.downloaded[id] {
		s.mu.Unlock()

		return &NotDownloadedError{ID: id}
	}

	s.current = id
	s.mu.Unlock()

	if err := s.settings.Set(ctx, KeySelectedTranslation, id); err != nil {
		return err
	}

	if err := s.applySwitch(ctx); err != nil {
		return err
	}

	return nil
}

// Remove deletes a downloaded translation's backing file. If it was the
// active one, the selection is cleared and the database detached first; the
// caller sees "no translation selected" rather than a silent fallback.
func (s *Service) Remove(ctx context.Context, id string) error {
	desc, err := s.cat.Get(id)
	if err != nil {
		return err
	}

	logger := logctx.LoggerFromContext(ctx)

	s.mu.Lock()
	wasActive := s.current == id
	s.mu.Unlock()

	if wasActive {
		if err := s.ctrl.Switch(ctx, ""); err != nil {
			logger.Warn("failed to detach before removal", "translation", id, "err", err)
		}

		s.mu.Lock()
		s.current = ""
		s.ready = false
		s.mu.Unlock()

		if err := s.settings.Set(ctx, KeySelectedTranslation, ""); err != nil {
			return err
		}
	}

	if err := s.fs.Delete(desc.DBFileName); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.downloaded, id)
	s.mu.Unlock()

	logger.Info("removed translation", "translation", id, "was_active", wasActive)

	return nil
}

// WatchDownloads consumes download-finished events. A newly downloaded
// translation joins the downloaded set and becomes active when nothing was
// selected yet.
func (s *Service) WatchDownloads(ctx context.Context, events <-chan download.Event) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}

				if err := s.handleDownloaded(ctx, ev.TranslationID); err != nil {
					logger.Error("failed to handle finished download", "translation", ev.TranslationID, "err", err)
				}
			}
		}
	}()
}

func (s *Service) handleDownloaded(ctx context.Context, id string) error {
	s.mu.Lock()
	s.downloaded[id] = true
	autoSelect := s.current == ""
	s.mu.Unlock()

	logctx.LoggerFromContext(ctx).Info("translation downloaded", "translation", id, "auto_select", autoSelect)

	if !autoSelect {
		return nil
	}

	return s.Select(ctx, id)
}

// scanDownloaded derives the downloaded set from a fresh filesystem scan.
// The filesystem is ground truth; no cached list is consulted.
func (s *Service) scanDownloaded() (map[string]bool, error) {
	files, err := s.fs.ListFiles()
	if err != nil {
		return nil, err
	}

	downloaded := make(map[string]bool, len(files))

	for _, f := range files {
		if desc, ok := s.cat.ByFileName(f); ok {
			downloaded[desc.ID] = true
		}
	}

	return downloaded, nil
}

// pickFallback chooses a selection when none survived validation: the
// configured default if it is downloaded, otherwise the first downloaded
// translation in catalog order.
func (s *Service) pickFallback(downloaded map[string]bool) string {
	if s.defaultID != "" && downloaded[s.defaultID] {
		return s.defaultID
	}

	for _, t := range s.cat.All() {
		if downloaded[t.ID] {
			return t.ID
		}
	}

	return ""
}

// applySwitch attaches the current selection's backing file, or detaches
// when none. An attach failure clears the selection so the system never
// points at a translation it cannot serve.
func (s *Service) applySwitch(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	filename := ""

	if current != "" {
		desc, err := s.cat.Get(current)
		if err != nil {
			return err
		}

		filename = desc.DBFileName
	}

	if err := s.ctrl.Switch(ctx, filename); err != nil {
		logger.Error("failed to switch translation database, clearing selection", "translation", current, "err", err)

		s.mu.Lock()
		s.current = ""
		s.ready = false
		s.mu.Unlock()

		if setErr := s.settings.Set(ctx, KeySelectedTranslation, ""); setErr != nil {
			logger.Error("failed to clear persisted selection", "err", setErr)
		}

		if detachErr := s.ctrl.Switch(ctx, ""); detachErr != nil {
			logger.Warn("failed to detach after attach failure", "err", detachErr)
		}

		return err
	}

	s.mu.Lock()
	s.ready = filename != ""
	s.mu.Unlock()

	return nil
}
