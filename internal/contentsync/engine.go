package contentsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/logging"
	"signage/internal/prefs"
	"signage/internal/remote"
)

// Engine performs sync passes. One Engine serves one device; it is safe for
// concurrent use and guarantees at most one pass per device id at a time.
type Engine struct {
	source          remote.Source
	store           *catalog.Store
	assets          *assetstore.Store
	prefs           *prefs.Store
	logger          *slog.Logger
	defaultDuration int
	now             func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDefaultDuration sets the dwell stored for items that omit one.
func WithDefaultDuration(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.defaultDuration = seconds
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires an Engine.
func NewEngine(source remote.Source, store *catalog.Store, assets *assetstore.Store, prefStore *prefs.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		source:          source,
		store:           store,
		assets:          assets,
		prefs:           prefStore,
		logger:          logging.NewComponentLogger(logger, "contentsync"),
		defaultDuration: catalog.DefaultDurationSec,
		now:             time.Now,
		inflight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) begin(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[deviceID]; busy {
		return false
	}
	e.inflight[deviceID] = struct{}{}
	return true
}

func (e *Engine) end(deviceID string) {
	e.mu.Lock()
	delete(e.inflight, deviceID)
	e.mu.Unlock()
}

// Sync runs one reconciliation pass for deviceID.
func (e *Engine) Sync(ctx context.Context, deviceID string) Result {
	started := e.now()
	result := Result{StartedAt: started}
	ctx = logging.WithDevice(ctx, deviceID)
	logger := logging.WithContext(ctx, e.logger)
	if !e.begin(deviceID) {
		logger.Debug("sync skipped; another pass is running")
		result.Outcome = OutcomeSkipped
		return result
	}
	defer e.end(deviceID)

	result = e.run(ctx, deviceID, result)
	result.Duration = e.now().Sub(started)

	attrs := []logging.Attr{
		logging.String("outcome", result.Outcome.String()),
		logging.Duration("duration", result.Duration),
	}
	switch result.Outcome {
	case OutcomeError:
		logging.WarnWithContext(logger, "sync failed", "sync_failed",
			append(attrs,
				logging.Error(result.Err),
				logging.ErrorHint(syncHint(result.Err)),
				logging.Impact("device keeps playing previously applied content"),
			)...)
	case OutcomeApplied:
		logger.Info("sync applied", append(logging.Args(attrs...),
			logging.String("fingerprint", result.Fingerprint),
			logging.Int("playlists", result.Playlists),
			logging.Int("items", result.Items),
			logging.Int("removed_playlists", len(result.RemovedPlaylists)),
			logging.Int("removed_assets", result.RemovedAssets),
			logging.EventType("sync_applied"),
		)...)
	default:
		logger.Debug("sync finished", logging.Args(attrs...)...)
	}
	return result
}

func syncHint(err error) string {
	if errors.Is(err, remote.ErrNetwork) {
		return "check network connectivity and server.base_url"
	}
	return "inspect the catalog database and assets directory"
}

func (e *Engine) run(ctx context.Context, deviceID string, result Result) Result {
	fail := func(err error) Result {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}

	cfg, err := e.source.Fetch(ctx, deviceID)
	if err != nil {
		return fail(fmt.Errorf("fetch config: %w", err))
	}

	if !cfg.IsPaired() {
		if err := e.unpair(ctx); err != nil {
			return fail(err)
		}
		result.Outcome = OutcomeNotPaired
		return result
	}

	fingerprint := Fingerprint(cfg)
	result.Fingerprint = fingerprint
	result.Layout = cfg.Layout
	if fingerprint == e.prefs.Fingerprint() {
		result.Outcome = OutcomeNoChange
		return result
	}

	removedPlaylists, items, err := e.apply(ctx, deviceID, cfg)
	if err != nil {
		return fail(err)
	}
	result.Playlists = len(cfg.Playlists)
	result.Items = items
	result.RemovedPlaylists = removedPlaylists

	removedAssets, swept, err := e.cleanup(ctx)
	if err != nil {
		return fail(err)
	}
	result.RemovedAssets = removedAssets
	result.SweptFiles = swept

	if err := e.prefs.Commit(prefs.Applied{Fingerprint: fingerprint, Layout: cfg.Layout, AppliedAt: e.now()}); err != nil {
		return fail(fmt.Errorf("persist applied config: %w", err))
	}
	result.Outcome = OutcomeApplied
	return result
}

// unpair wipes the catalog, the assets directory and the applied
// configuration. The device id survives so the device can pair again.
func (e *Engine) unpair(ctx context.Context) error {
	if err := e.store.Wipe(ctx); err != nil {
		return fmt.Errorf("wipe catalog: %w", err)
	}
	purged := e.assets.Purge(ctx)
	if err := e.prefs.Forget(); err != nil {
		return fmt.Errorf("forget applied config: %w", err)
	}
	e.logger.Info("device not paired; local content cleared",
		logging.Int("files_removed", len(purged.Removed)),
		logging.Int("file_errors", len(purged.Errors)),
		logging.EventType("device_unpaired"),
	)
	return nil
}

func (e *Engine) apply(ctx context.Context, deviceID string, cfg remote.Config) ([]string, int, error) {
	var (
		removed []string
		total   int
	)
	err := e.store.Apply(ctx, func(tx *catalog.Tx) error {
		total = 0
		keep := make([]string, 0, len(cfg.Playlists))
		for _, playlist := range cfg.Playlists {
			if strings.TrimSpace(playlist.ID) == "" {
				continue
			}
			keep = append(keep, playlist.ID)
			items := make([]catalog.PlaylistItem, 0, len(playlist.Items))
			for idx, item := range playlist.Items {
				asset := item.Asset
				if asset.ID == "" {
					continue
				}
				if err := tx.UpsertAssetPreservingLocal(catalog.Asset{
					ID:        asset.ID,
					MediaType: asset.MediaType,
					RemoteURL: asset.URL,
					Title:     asset.Title,
					SizeBytes: asset.Size(),
					Hash:      asset.Hash,
				}); err != nil {
					return err
				}
				items = append(items, catalog.PlaylistItem{
					ID:          catalog.ItemID(playlist.ID, asset.ID, idx),
					AssetID:     asset.ID,
					OrderIndex:  idx,
					DurationSec: item.Duration(e.defaultDuration),
				})
			}
			if err := tx.ReplacePlaylist(catalog.Playlist{ID: playlist.ID, Name: playlist.Name}, items); err != nil {
				return err
			}
			total += len(items)
		}

		var err error
		removed, err = tx.DeletePlaylistsExcept(keep)
		if err != nil {
			return err
		}
		return tx.PutDevice(catalog.Device{
			ID:         deviceID,
			ScreenID:   cfg.Screen.ID,
			ScreenName: cfg.Screen.Name,
			Width:      cfg.Screen.Resolution.Width,
			Height:     cfg.Screen.Resolution.Height,
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("apply config: %w", err)
	}
	return removed, total, nil
}

// cleanup removes assets no playlist references, forgets local paths whose
// files vanished, and sweeps unreferenced files from the assets directory.
// The download destination of every referenced asset survives the sweep
// whether or not the catalog has recorded it yet.
func (e *Engine) cleanup(ctx context.Context) (int, int, error) {
	referenced, err := e.store.ReferencedAssetIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup: %w", err)
	}
	assets, err := e.store.ListAssets(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup: %w", err)
	}

	var stale []string
	keepPaths := make(map[string]struct{})
	for _, asset := range assets {
		if _, ok := referenced[asset.ID]; !ok {
			if err := e.assets.Remove(asset.LocalPath); err != nil {
				e.logger.Warn("failed to remove unreferenced asset file",
					logging.AssetID(asset.ID),
					logging.String("path", asset.LocalPath),
					logging.Error(err),
					logging.EventType("asset_remove_failed"),
					logging.ErrorHint("check assets_dir permissions"),
				)
			}
			stale = append(stale, asset.ID)
			continue
		}
		// A download still running from the previous generation may land at
		// the destination after this snapshot was read.
		dest := filepath.Clean(e.assets.PathFor(asset))
		keepPaths[dest] = struct{}{}
		keepPaths[dest+assetstore.PartSuffix] = struct{}{}
		if asset.LocalPath == "" {
			continue
		}
		if _, ok := assetstore.FileSize(asset.LocalPath); !ok {
			if err := e.store.ClearLocalPath(ctx, asset.ID); err != nil {
				return 0, 0, fmt.Errorf("cleanup: %w", err)
			}
			e.logger.Debug("cleared missing local path",
				logging.AssetID(asset.ID),
				logging.String("path", asset.LocalPath),
			)
			continue
		}
		keepPaths[filepath.Clean(asset.LocalPath)] = struct{}{}
	}

	if err := e.store.DeleteAssets(ctx, stale); err != nil {
		return 0, 0, fmt.Errorf("cleanup: %w", err)
	}
	swept := e.assets.Sweep(ctx, keepPaths)
	return len(stale), len(swept.Removed), nil
}
