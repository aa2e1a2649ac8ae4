package daemon

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"signage/internal/assetstore"
	"signage/internal/download"
	"signage/internal/layout"
	"signage/internal/logging"
)

// generation is the scope of one applied layout. Cancelling ctx stops its
// downloads and region sessions.
type generation struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	layout layout.Layout

	// Guarded by Daemon.mu.
	started     map[string]bool
	downloads   map[string]download.Progress
	downloading bool
}

// rebuild cancels the current generation and starts a new one for lay.
// Regions whose playlist already has something on disk start playing at once;
// the rest start when their download pass ends.
func (d *Daemon) rebuild(lay layout.Layout, reason string) {
	d.mu.Lock()
	if d.base == nil {
		d.mu.Unlock()
		return
	}
	if d.gen != nil {
		d.gen.cancel()
	}
	d.genSeq++
	ctx, cancel := context.WithCancel(logging.WithGeneration(d.base, d.genSeq))
	g := &generation{
		id:        d.genSeq,
		ctx:       ctx,
		cancel:    cancel,
		layout:    lay,
		started:   make(map[string]bool),
		downloads: make(map[string]download.Progress),
	}
	d.gen = g
	d.mu.Unlock()

	var ready []layout.Region
	for _, region := range lay.Ordered() {
		if region.Idle() || d.hasLocalContent(ctx, region.PlaylistID) {
			ready = append(ready, region)
		}
	}

	d.mu.Lock()
	if d.gen != g {
		d.mu.Unlock()
		return
	}
	for _, region := range ready {
		g.started[region.ID] = true
	}
	d.mu.Unlock()

	d.scheduler.Start(ctx, g.id, ready)
	d.logger.Info("generation rebuilt",
		logging.Generation(g.id),
		logging.String("reason", reason),
		logging.Int("regions", len(lay.Regions)),
		logging.Int("regions_ready", len(ready)),
		logging.EventType("generation_rebuilt"),
	)

	d.startDownloads(g)
}

// clearGeneration cancels the current generation and stops playback.
func (d *Daemon) clearGeneration() {
	d.mu.Lock()
	g := d.gen
	d.gen = nil
	d.mu.Unlock()
	if g != nil {
		g.cancel()
	}
	d.scheduler.Stop()
}

func (d *Daemon) current(g *generation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == g && g.ctx.Err() == nil
}

func (d *Daemon) hasLocalContent(ctx context.Context, playlistID string) bool {
	entries, err := d.store.Entries(ctx, playlistID)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if ok, _ := assetstore.CheckLocal(entry.Asset); ok {
			return true
		}
	}
	return false
}

// startDownloads runs one download pass per assigned playlist on a bounded
// worker pool. A pass already running for g makes this a no-op.
func (d *Daemon) startDownloads(g *generation) {
	playlists := g.layout.AssignedPlaylists()
	if len(playlists) == 0 {
		return
	}

	d.mu.Lock()
	if d.gen != g || d.base == nil || g.downloading {
		d.mu.Unlock()
		return
	}
	g.downloading = true
	d.wg.Add(1)
	d.mu.Unlock()

	workers := d.cfg.Sync.DownloadWorkers
	if workers <= 0 {
		workers = 1
	}

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			g.downloading = false
			d.mu.Unlock()
		}()

		var group errgroup.Group
		group.SetLimit(workers)
		for _, playlistID := range playlists {
			group.Go(func() error {
				d.downloadPlaylist(g, playlistID)
				return nil
			})
		}
		_ = group.Wait()
	}()
}

func (d *Daemon) downloadPlaylist(g *generation, playlistID string) {
	var last download.Progress
	for progress := range d.pipeline.DownloadPlaylist(g.ctx, playlistID) {
		last = progress
		if !d.recordProgress(g, progress) {
			break
		}
	}

	if !d.current(g) {
		d.logger.Debug("discarding download result from stale generation",
			logging.Generation(g.id),
			logging.PlaylistID(playlistID),
		)
		return
	}

	if last.Failed > 0 {
		logging.WarnWithContext(d.logger, "playlist download incomplete", "playlist_download_incomplete",
			logging.PlaylistID(playlistID),
			logging.Int("failed", last.Failed),
			logging.Int("finished", last.FinishedCount),
			logging.Int("total", last.TotalCount),
			logging.Impact("regions play the assets that are available"),
			logging.ErrorHint("the next sync retries missing assets"),
		)
	}

	d.activateRegions(g, playlistID)
	d.evaluate(g.ctx, "download_complete")
}

func (d *Daemon) recordProgress(g *generation, progress download.Progress) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != g {
		return false
	}
	g.downloads[progress.PlaylistID] = progress
	return true
}

// activateRegions starts sessions for regions bound to playlistID that were
// held back at rebuild time.
func (d *Daemon) activateRegions(g *generation, playlistID string) {
	for _, region := range g.layout.Ordered() {
		if region.PlaylistID != playlistID {
			continue
		}
		d.mu.Lock()
		if d.gen != g || g.started[region.ID] {
			d.mu.Unlock()
			continue
		}
		g.started[region.ID] = true
		d.mu.Unlock()

		if d.scheduler.Update(g.ctx, g.id, region) {
			d.logger.Info("region started",
				logging.RegionID(region.ID),
				logging.PlaylistID(playlistID),
				logging.Generation(g.id),
			)
		}
	}
}

// resumeCached restores playback of the last applied layout before the first
// sync completes.
func (d *Daemon) resumeCached(ctx context.Context) {
	lay, ok := d.prefs.Layout()
	if !ok {
		return
	}
	if _, err := d.store.Device(ctx); err != nil {
		return
	}
	d.rebuild(lay, "cached")
}

func (d *Daemon) downloadSnapshot() []download.Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == nil {
		return nil
	}
	out := make([]download.Progress, 0, len(d.gen.downloads))
	for _, progress := range d.gen.downloads {
		out = append(out, progress)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaylistID < out[j].PlaylistID })
	return out
}
