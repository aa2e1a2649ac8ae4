package contentsync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/contentsync"
	"signage/internal/layout"
	"signage/internal/prefs"
	"signage/internal/remote"
	"signage/internal/testsupport"
)

type fakeSource struct {
	mu    sync.Mutex
	cfg   remote.Config
	err   error
	calls int
	gate  chan struct{}
}

func (f *fakeSource) set(cfg remote.Config, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg, f.err = cfg, err
}

func (f *fakeSource) Fetch(ctx context.Context, _ string) (remote.Config, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	cfg, err := f.cfg, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.Config{}, ctx.Err()
		}
	}
	return cfg, err
}

type harness struct {
	store  *catalog.Store
	assets *assetstore.Store
	prefs  *prefs.Store
	source *fakeSource
	engine *contentsync.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	prefStore, err := prefs.Open(cfg.PrefsPath())
	require.NoError(t, err)
	t.Cleanup(func() { prefStore.Close() })
	assets := assetstore.New(cfg.Paths.AssetsDir, nil)
	source := &fakeSource{}
	return &harness{
		store:  store,
		assets: assets,
		prefs:  prefStore,
		source: source,
		engine: contentsync.NewEngine(source, store, assets, prefStore, nil),
	}
}

func size(n int64) *int64 { return &n }

func pairedConfig(playlists ...remote.Playlist) remote.Config {
	regions := make([]layout.Region, 0, len(playlists))
	for _, p := range playlists {
		regions = append(regions, layout.Region{ID: "r-" + p.ID, W: 960, H: 540, PlaylistID: p.ID})
	}
	return remote.Config{
		Paired: true,
		Screen: &remote.Screen{ID: "s1", Name: "Lobby", Resolution: remote.Resolution{Width: 1920, Height: 1080}},
		Layout: layout.Layout{
			Design:  layout.Design{Width: 1920, Height: 1080, BgColor: "#000000"},
			Regions: regions,
		},
		Playlists: playlists,
	}
}

func playlist(id string, assetIDs ...string) remote.Playlist {
	p := remote.Playlist{ID: id, Name: id}
	for _, assetID := range assetIDs {
		p.Items = append(p.Items, remote.Item{Asset: remote.Asset{
			ID:    assetID,
			URL:   "https://cdn.example.com/" + assetID + ".png?sig=1",
			Title: assetID,
			Bytes: size(10),
		}})
	}
	return p
}

func (h *harness) markDownloaded(t *testing.T, assetID string) string {
	t.Helper()
	asset, err := h.store.AssetByID(context.Background(), assetID)
	require.NoError(t, err)
	path := h.assets.PathFor(asset)
	testsupport.WriteFile(t, path, asset.SizeBytes)
	require.NoError(t, h.store.SetDownloaded(context.Background(), assetID, path, time.Now()))
	return path
}

func TestSyncAppliesThenReportsNoChangeWithoutWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1", "a2")), nil)

	result := h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeApplied, result.Outcome, "err: %v", result.Err)
	require.Equal(t, 1, result.Playlists)
	require.Equal(t, 2, result.Items)
	require.Equal(t, result.Fingerprint, h.prefs.Fingerprint())
	stored, ok := h.prefs.Layout()
	require.True(t, ok)
	require.Equal(t, "P1", stored.Regions[0].PlaylistID)

	entries, err := h.store.Entries(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "P1:a1:0", entries[0].Item.ID)
	require.Equal(t, catalog.DefaultDurationSec, entries[0].Item.DurationSec)

	device, err := h.store.Device(ctx)
	require.NoError(t, err)
	require.Equal(t, "dev", device.ID)
	require.Equal(t, 1920, device.Width)

	before, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	appliedAt, _ := h.prefs.AppliedAt()

	// Signed URLs rotate between fetches without changing the content.
	rotated := pairedConfig(playlist("P1", "a1", "a2"))
	rotated.Playlists[0].Items[0].Asset.URL = "https://cdn.example.com/a1.png?sig=2"
	h.source.set(rotated, nil)

	result = h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeNoChange, result.Outcome)
	require.ErrorIs(t, result.Cause(), contentsync.ErrNoSyncNeeded)

	after, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, before.RemoteURL, after.RemoteURL)
	require.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	appliedAgain, _ := h.prefs.AppliedAt()
	require.True(t, appliedAt.Equal(appliedAgain))
}

func TestSyncRemovesDroppedPlaylistAndItsAssets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1", "a2"), playlist("P2", "a3")), nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)

	keptPath := h.markDownloaded(t, "a1")
	droppedPath := h.markDownloaded(t, "a3")
	orphan := filepath.Join(h.assets.Dir(), "leftover.mp4.part")
	testsupport.WriteFile(t, orphan, 5)

	h.source.set(pairedConfig(playlist("P1", "a1", "a2")), nil)
	result := h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeApplied, result.Outcome, "err: %v", result.Err)
	require.Equal(t, []string{"P2"}, result.RemovedPlaylists)
	require.Equal(t, 1, result.RemovedAssets)

	_, err := h.store.AssetByID(ctx, "a3")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = os.Stat(droppedPath)
	require.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(orphan)
	require.True(t, errors.Is(err, os.ErrNotExist))

	a1, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, keptPath, a1.LocalPath)
	_, err = os.Stat(keptPath)
	require.NoError(t, err)
}

func TestSyncSweepKeepsInFlightDownloads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1", "a2")), nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)

	// a1 has been renamed into place but not yet recorded; a2 is mid-transfer.
	a1, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	landed := h.assets.PathFor(a1)
	testsupport.WriteFile(t, landed, 10)
	a2, err := h.store.AssetByID(ctx, "a2")
	require.NoError(t, err)
	partial := h.assets.PathFor(a2) + assetstore.PartSuffix
	testsupport.WriteFile(t, partial, 4)

	next := pairedConfig(playlist("P1", "a1", "a2"))
	next.Version = "2"
	h.source.set(next, nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)

	_, err = os.Stat(landed)
	require.NoError(t, err)
	_, err = os.Stat(partial)
	require.NoError(t, err)

	require.NoError(t, h.store.SetDownloaded(ctx, "a1", landed, time.Now()))
	recorded, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	_, ok := assetstore.FileSize(recorded.LocalPath)
	require.True(t, ok)
}

func TestSyncClearsVanishedLocalFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1")), nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)

	path := h.markDownloaded(t, "a1")
	require.NoError(t, os.Remove(path))

	next := pairedConfig(playlist("P1", "a1"))
	next.Version = "2"
	h.source.set(next, nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)

	a1, err := h.store.AssetByID(ctx, "a1")
	require.NoError(t, err)
	require.Empty(t, a1.LocalPath)
}

func TestSyncNotPairedWipesEverything(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.prefs.EnsureDeviceID("dev", nil)
	require.NoError(t, err)
	h.source.set(pairedConfig(playlist("P1", "a1")), nil)
	require.Equal(t, contentsync.OutcomeApplied, h.engine.Sync(ctx, "dev").Outcome)
	h.markDownloaded(t, "a1")

	for _, cfg := range []remote.Config{
		{Paired: false},
		{Paired: true, Screen: nil},
	} {
		h.source.set(cfg, nil)
		result := h.engine.Sync(ctx, "dev")
		require.Equal(t, contentsync.OutcomeNotPaired, result.Outcome)
		require.ErrorIs(t, result.Cause(), contentsync.ErrNotPaired)

		stats, err := h.store.Stats(ctx)
		require.NoError(t, err)
		require.Zero(t, stats.Assets)
		require.Zero(t, stats.Playlists)
		require.Zero(t, stats.Items)
		require.Zero(t, stats.Devices)

		files, err := h.assets.List()
		require.NoError(t, err)
		require.Empty(t, files)
		require.Empty(t, h.prefs.Fingerprint())
		require.Equal(t, "dev", h.prefs.DeviceID())
	}
}

func TestSyncNetworkFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1")), nil)
	applied := h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeApplied, applied.Outcome)

	h.source.set(remote.Config{}, remote.ErrNetwork)
	result := h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeError, result.Outcome)
	require.ErrorIs(t, result.Err, remote.ErrNetwork)
	require.False(t, result.Succeeded())

	require.Equal(t, applied.Fingerprint, h.prefs.Fingerprint())
	entries, err := h.store.Entries(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestConcurrentSyncIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.source.set(pairedConfig(playlist("P1", "a1")), nil)
	h.source.gate = make(chan struct{})

	done := make(chan contentsync.Result, 1)
	go func() { done <- h.engine.Sync(ctx, "dev") }()

	require.Eventually(t, func() bool {
		h.source.mu.Lock()
		defer h.source.mu.Unlock()
		return h.source.calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	skipped := h.engine.Sync(ctx, "dev")
	require.Equal(t, contentsync.OutcomeSkipped, skipped.Outcome)
	require.ErrorIs(t, skipped.Cause(), contentsync.ErrSyncInProgress)
	require.True(t, skipped.Succeeded())

	close(h.source.gate)
	require.Equal(t, contentsync.OutcomeApplied, (<-done).Outcome)
	h.source.mu.Lock()
	require.Equal(t, 1, h.source.calls)
	h.source.mu.Unlock()
}

func TestFingerprintIgnoresURLsAndNormalizesText(t *testing.T) {
	base := pairedConfig(playlist("P1", "a1"))
	base.Screen.Name = "Café"

	decomposed := pairedConfig(playlist("P1", "a1"))
	decomposed.Screen.Name = "Cafe\u0301"
	decomposed.Playlists[0].Items[0].Asset.URL = "https://other/a1.png?sig=9"
	require.Equal(t, contentsync.Fingerprint(base), contentsync.Fingerprint(decomposed))

	rehashed := pairedConfig(playlist("P1", "a1"))
	rehashed.Screen.Name = "Café"
	rehashed.Playlists[0].Items[0].Asset.Hash = "abc"
	require.NotEqual(t, contentsync.Fingerprint(base), contentsync.Fingerprint(rehashed))

	moved := pairedConfig(playlist("P1", "a1"))
	moved.Screen.Name = "Café"
	moved.Layout.Regions[0].X = 10
	require.NotEqual(t, contentsync.Fingerprint(base), contentsync.Fingerprint(moved))
}
