package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/download/progress"
	"github.com/versedapp/versed/internal/logctx"
	"github.com/versedapp/versed/internal/store"
	"github.com/versedapp/versed/internal/telemetry"
)

const progressInterval = 256 * 1024 // bytes between progress updates

// Phase is the lifecycle stage of a translation download.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseMoving      Phase = "moving"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// Active reports whether the phase admits no new download. Terminal phases
// (complete, failed, cancelled) count as idle for admission: the state is
// kept only so the last outcome stays visible.
func (p Phase) Active() bool {
	return p == PhaseDownloading || p == PhaseMoving
}

// State is a snapshot of the current or most recent download.
type State struct {
	TranslationID string  `json:"translation_id,omitempty"`
	Phase         Phase   `json:"phase"`
	Progress      float64 `json:"progress"` // fraction in [0,1], -1 when the total size is unknown
	Error         string  `json:"error,omitempty"`
}

// Event signals a finished or failed download to subscribers.
type Event struct {
	TranslationID string
	Err           error
}

// Manager transfers translation database files from the remote source into
// the local store. Downloads are single-flight and always go through a temp
// file followed by an atomic move, so the permanent store never holds a
// partially written database.
type Manager struct {
	baseURL string
	client  *http.Client
	cat     *catalog.Catalog
	fs      *store.Store
	tel     *telemetry.Telemetry

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	cancelRequested bool

	jobs chan catalog.Translation

	OnDownloadFinished chan Event
	OnDownloadFailed   chan Event
}

func NewManager(baseURL string, client *http.Client, cat *catalog.Catalog, fs *store.Store, tel *telemetry.Telemetry) *Manager {
	if client == nil {
		client = http.DefaultClient
	}

	return &Manager{
		baseURL: baseURL,
		client:  client,
		cat:     cat,
		fs:      fs,
		tel:     tel,
		state:   State{Phase: PhaseIdle},

		// single-flight admission happens in Start, one slot is enough
		jobs: make(chan catalog.Translation, 1),

		OnDownloadFinished: make(chan Event),
		OnDownloadFailed:   make(chan Event),
	}
}

func (m *Manager) Close() {
	close(m.OnDownloadFinished)
	close(m.OnDownloadFailed)
}

// Status returns a snapshot of the current download state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Start admits a download for the given translation id. It returns
// *AlreadyInProgressError while another download is active and
// *catalog.UnknownTranslationError for ids outside the catalog. The transfer
// itself runs on the Run goroutine; callers observe it through Status and
// the event channels. Re-downloading an already downloaded translation is
// allowed and cannot destroy the existing copy until the new one is moved
// into place.
func (m *Manager) Start(ctx context.Context, translationID string) error {
	desc, err := m.cat.Get(translationID)
	if err != nil {
		return err
	}

	m.mu.Lock()

	if m.state.Phase.Active() {
		active := m.state.TranslationID
		m.mu.Unlock()

		return &AlreadyInProgressError{TranslationID: active}
	}

	m.state = State{TranslationID: translationID, Phase: PhaseDownloading}
	m.cancelRequested = false
	m.cancel = nil
	m.mu.Unlock()

	logctx.LoggerFromContext(ctx).Info("download queued", "translation", translationID)

	m.jobs <- desc

	return nil
}

// Cancel requests cancellation of the in-flight download. It reports whether
// there was one to cancel. Cancellation is cooperative: the transfer stops
// at the next read and the temp file is cleaned up best-effort.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Phase.Active() {
		return false
	}

	m.cancelRequested = true
	if m.cancel != nil {
		m.cancel()
	}

	return true
}

// Run processes queued downloads one at a time until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("download manager running", "base_url", m.baseURL)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down download manager")

				return
			case desc := <-m.jobs:
				m.process(ctx, desc)
			}
		}
	}()
}

func (m *Manager) process(ctx context.Context, desc catalog.Translation) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancel = cancel
	if m.cancelRequested {
		cancel()
	}
	m.mu.Unlock()

	start := time.Now()

	var bytes int64

	err := m.tel.InstrumentDownload(dctx, desc.ID, func(ctx context.Context) error {
		var ferr error

		bytes, ferr = m.fetch(ctx, desc)

		return ferr
	})

	status := "complete"

	switch {
	case err == nil:
		m.setPhase(PhaseComplete, 1.0, "")
		m.publish(ctx, m.OnDownloadFinished, Event{TranslationID: desc.ID})
	case errors.Is(err, context.Canceled):
		status = "cancelled"

		m.setPhase(PhaseCancelled, keepProgress, "")
	default:
		status = "failed"

		m.setPhase(PhaseFailed, keepProgress, err.Error())
		m.publish(ctx, m.OnDownloadFailed, Event{TranslationID: desc.ID, Err: err})
	}

	m.tel.RecordDownload(desc.ID, status, bytes, time.Since(start))
}

// fetch performs the actual transfer into a temp file and moves it into the
// store. It returns the number of bytes written.
func (m *Manager) fetch(ctx context.Context, desc catalog.Translation) (int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("translation", desc.ID)

	tempName := desc.DBFileName + store.TempSuffix
	tempPath := m.fs.PathFor(tempName)

	// A crashed earlier attempt may have left a temp file behind.
	if err := m.fs.Delete(tempName); err != nil {
		return 0, fmt.Errorf("failed to clean up orphaned temp file: %w", err)
	}

	url := m.baseURL + "/" + desc.DBFileName

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &TransferError{URL: url, Err: err}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, &TransferError{URL: url, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &TransferError{URL: url, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total > 0 {
		logger.Info("downloading translation", "url", url, "size", humanize.Bytes(uint64(total)))
	} else {
		logger.Info("downloading translation", "url", url, "size", "unknown")
	}

	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	pr := progress.NewReader(resp.Body, total, progressInterval, func(written, total int64) {
		if total > 0 {
			m.setProgress(float64(written) / float64(total))
		} else {
			m.setProgress(-1)
		}
	})

	written, err := io.Copy(out, pr)

	closeErr := out.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		// The temp file is useless after an interrupted transfer; the
		// permanent path was never touched.
		if rmErr := m.fs.Delete(tempName); rmErr != nil {
			logger.Error("failed to remove temp file", "file", tempName, "err", rmErr)
		}

		if errors.Is(err, context.Canceled) {
			logger.Info("download cancelled", "written", humanize.Bytes(uint64(written)))

			return written, err
		}

		return written, &TransferError{URL: url, Err: err}
	}

	m.setPhase(PhaseMoving, 1.0, "")

	if err := m.fs.MoveAtomic(tempPath, desc.DBFileName); err != nil {
		if rmErr := m.fs.Delete(tempName); rmErr != nil {
			logger.Error("failed to remove temp file", "file", tempName, "err", rmErr)
		}

		return written, &MoveError{Filename: desc.DBFileName, Err: err}
	}

	logger.Info("downloaded translation", "file", desc.DBFileName, "size", humanize.Bytes(uint64(written)))

	return written, nil
}

// keepProgress tells setPhase to leave the recorded progress untouched.
const keepProgress = -2

// publish delivers an event unless the app is shutting down and nobody is
// left to consume it.
func (m *Manager) publish(ctx context.Context, ch chan Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

func (m *Manager) setPhase(phase Phase, prog float64, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Phase = phase
	m.state.Error = errMsg

	if prog != keepProgress {
		m.state.Progress = prog
	}
}

func (m *Manager) setProgress(prog float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Progress never regresses within one download; -1 flags an
	// indeterminate total for consumers.
	if prog < 0 {
		m.state.Progress = -1

		return
	}

	if prog > m.state.Progress {
		m.state.Progress = prog
	}
}
