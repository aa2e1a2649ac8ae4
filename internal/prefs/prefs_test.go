package prefs_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signage/internal/layout"
	"signage/internal/prefs"
)

func openPrefs(t *testing.T, path string) *prefs.Store {
	t.Helper()
	store, err := prefs.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureDeviceIDGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	store := openPrefs(t, path)

	calls := 0
	gen := func() string { calls++; return "generated-1" }

	id, err := store.EnsureDeviceID("", gen)
	require.NoError(t, err)
	require.Equal(t, "generated-1", id)

	id, err = store.EnsureDeviceID("", gen)
	require.NoError(t, err)
	require.Equal(t, "generated-1", id)
	require.Equal(t, 1, calls)

	id, err = store.EnsureDeviceID("configured", gen)
	require.NoError(t, err)
	require.Equal(t, "configured", id)
	require.Equal(t, "configured", store.DeviceID())
}

func TestCommitAndForgetSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	store, err := prefs.Open(path)
	require.NoError(t, err)

	l := layout.Layout{
		Design:  layout.Design{Width: 1920, Height: 1080, BgColor: "#000"},
		Regions: []layout.Region{{ID: "main", W: 1920, H: 1080, PlaylistID: "P1"}},
	}
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, store.Commit(prefs.Applied{Fingerprint: "abc", Layout: l, AppliedAt: at}))
	require.NoError(t, store.Close())

	store = openPrefs(t, path)
	require.Equal(t, "abc", store.Fingerprint())
	got, ok := store.Layout()
	require.True(t, ok)
	require.Equal(t, l, got)
	appliedAt, ok := store.AppliedAt()
	require.True(t, ok)
	require.True(t, appliedAt.Equal(at))

	require.NoError(t, store.Forget())
	require.Empty(t, store.Fingerprint())
	_, ok = store.Layout()
	require.False(t, ok)
}
