package selection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/versedapp/versed/internal/catalog"
	"github.com/versedapp/versed/internal/db"
	"github.com/versedapp/versed/internal/download"
	"github.com/versedapp/versed/internal/settings"
	"github.com/versedapp/versed/internal/store"
	"github.com/versedapp/versed/internal/telemetry"
)

type fixture struct {
	svc      *Service
	settings *settings.Store
	fs       *store.Store
	ctrl     *db.Controller
}

// newFixture wires a service against a real main database and store dir.
// Files listed in downloaded are created as empty SQLite databases, which is
// all the attachment needs.
func newFixture(t *testing.T, defaultID string, downloaded ...string) *fixture {
	t.Helper()

	fs := store.New(t.TempDir())
	require.NoError(t, fs.EnsureDir())

	for _, filename := range downloaded {
		require.NoError(t, os.WriteFile(fs.PathFor(filename), nil, 0644))
	}

	conn, err := db.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)

	t.Cleanup(func() { conn.Close() })

	tel, err := telemetry.New(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	cat := catalog.Default()
	st := settings.New(conn, tel)
	ctrl := db.NewController(conn, fs, cat, tel)

	return &fixture{
		svc:      New(st, fs, cat, ctrl, defaultID),
		settings: st,
		fs:       fs,
		ctrl:     ctrl,
	}
}

func (f *fixture) persisted(t *testing.T) string {
	t.Helper()

	value, err := f.settings.Get(context.Background(), KeySelectedTranslation, "")
	require.NoError(t, err)

	return value
}

func TestReconcile_FreshInstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV")

	require.NoError(t, f.svc.Reconcile(ctx))

	assert.Empty(t, f.svc.Current())
	assert.False(t, f.svc.Ready())
	assert.Empty(t, f.ctrl.Attached())
	assert.Empty(t, f.svc.Downloaded())
}

func TestReconcile_PersistedSelectionSurvives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "ASV.db")

	require.NoError(t, f.settings.Set(ctx, KeySelectedTranslation, "ASV"))

	require.NoError(t, f.svc.Reconcile(ctx))

	assert.Equal(t, "ASV", f.svc.Current())
	assert.True(t, f.svc.Ready())
	assert.Equal(t, "ASV.db", f.ctrl.Attached())
}

func TestReconcile_StaleSelectionFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db")

	// The ASV file was deleted behind the app's back.
	require.NoError(t, f.settings.Set(ctx, KeySelectedTranslation, "ASV"))

	require.NoError(t, f.svc.Reconcile(ctx))

	assert.Equal(t, "KJV", f.svc.Current())
	assert.Equal(t, "KJV", f.persisted(t), "self-healed selection must be persisted")
	assert.Equal(t, "KJV.db", f.ctrl.Attached())
}

func TestReconcile_FallbackInCatalogOrder(t *testing.T) {
	ctx := context.Background()

	// The default (KJV) is not downloaded; WEB comes before YLT in the
	// catalog.
	f := newFixture(t, "KJV", "YLT.db", "WEB.db")

	require.NoError(t, f.svc.Reconcile(ctx))

	assert.Equal(t, "WEB", f.svc.Current())
	assert.Equal(t, []string{"WEB", "YLT"}, f.svc.Downloaded())
}

func TestReconcile_UnknownPersistedSelectionCleared(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV")

	require.NoError(t, f.settings.Set(ctx, KeySelectedTranslation, "NIV"))

	require.NoError(t, f.svc.Reconcile(ctx))

	assert.Empty(t, f.svc.Current())
	assert.Empty(t, f.persisted(t))
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db", "ASV.db")

	require.NoError(t, f.svc.Reconcile(ctx))
	require.Equal(t, "KJV", f.svc.Current())

	require.NoError(t, f.svc.Select(ctx, "ASV"))

	assert.Equal(t, "ASV", f.svc.Current())
	assert.Equal(t, "ASV", f.persisted(t))
	assert.Equal(t, "ASV.db", f.ctrl.Attached())
	assert.True(t, f.svc.Ready())
}

func TestSelect_NotDownloaded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db")

	require.NoError(t, f.svc.Reconcile(ctx))

	err := f.svc.Select(ctx, "ASV")
	require.Error(t, err)

	var notDownloaded *NotDownloadedError
	require.True(t, errors.As(err, &notDownloaded))
	assert.Equal(t, "ASV", notDownloaded.ID)

	assert.Equal(t, "KJV", f.svc.Current(), "failed select must not change the active translation")
}

func TestSelect_UnknownTranslation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db")

	require.NoError(t, f.svc.Reconcile(ctx))

	var unknownErr *catalog.UnknownTranslationError
	assert.True(t, errors.As(f.svc.Select(ctx, "NIV"), &unknownErr))
}

func TestRemove_ActiveTranslation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db", "ASV.db")

	require.NoError(t, f.svc.Reconcile(ctx))
	require.Equal(t, "KJV", f.svc.Current())

	require.NoError(t, f.svc.Remove(ctx, "KJV"))

	assert.Empty(t, f.svc.Current(), "removal must not silently fall back")
	assert.False(t, f.svc.Ready())
	assert.Empty(t, f.ctrl.Attached())
	assert.Empty(t, f.persisted(t))
	assert.False(t, f.fs.Exists("KJV.db"))
	assert.False(t, f.svc.IsDownloaded("KJV"))
}

func TestRemove_InactiveTranslation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "KJV", "KJV.db", "ASV.db")

	require.NoError(t, f.svc.Reconcile(ctx))

	require.NoError(t, f.svc.Remove(ctx, "ASV"))

	assert.Equal(t, "KJV", f.svc.Current())
	assert.True(t, f.svc.Ready())
	assert.False(t, f.fs.Exists("ASV.db"))
}

func TestWatchDownloads_AutoSelectsFirstTranslation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, "KJV")

	require.NoError(t, f.svc.Reconcile(ctx))
	require.Empty(t, f.svc.Current())

	events := make(chan download.Event)
	f.svc.WatchDownloads(ctx, events)

	require.NoError(t, os.WriteFile(f.fs.PathFor("ASV.db"), nil, 0644))
	events <- download.Event{TranslationID: "ASV"}

	assert.Eventually(t, func() bool {
		return f.svc.Current() == "ASV"
	}, time.Second, 10*time.Millisecond)

	assert.True(t, f.svc.Ready())
	assert.Equal(t, "ASV", f.persisted(t))
}

func TestWatchDownloads_DoesNotTakeOverExistingSelection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, "KJV", "KJV.db")

	require.NoError(t, f.svc.Reconcile(ctx))
	require.Equal(t, "KJV", f.svc.Current())

	events := make(chan download.Event)
	f.svc.WatchDownloads(ctx, events)

	require.NoError(t, os.WriteFile(f.fs.PathFor("ASV.db"), nil, 0644))
	events <- download.Event{TranslationID: "ASV"}

	assert.Eventually(t, func() bool {
		return f.svc.IsDownloaded("ASV")
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "KJV", f.svc.Current())
}
