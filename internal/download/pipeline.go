package download

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/config"
	"signage/internal/logging"
)

// ErrPartial wraps a per-asset failure. The pass continues with the next asset.
var ErrPartial = errors.New("asset download failed")

// Options tunes a Pipeline.
type Options struct {
	// Interval is the minimum spacing between non-forced snapshots.
	Interval time.Duration
	// EMAAlpha weighs new rate samples; 0 < alpha <= 1.
	EMAAlpha float64
	// MinFreeBytes is kept free on the assets volume.
	MinFreeBytes int64
	VerifyHash   bool
	Clock        func() time.Time
}

// Pipeline downloads playlist assets on demand.
type Pipeline struct {
	store  *catalog.Store
	assets *assetstore.Store
	logger *slog.Logger
	opts   Options
}

// New builds a Pipeline.
func New(store *catalog.Store, assets *assetstore.Store, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}
	if opts.EMAAlpha <= 0 || opts.EMAAlpha > 1 {
		opts.EMAAlpha = 0.2
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		store:  store,
		assets: assets,
		logger: logging.NewComponentLogger(logger, "download"),
		opts:   opts,
	}
}

// NewFromConfig builds a Pipeline from the download section of cfg.
func NewFromConfig(cfg *config.Config, store *catalog.Store, assets *assetstore.Store, logger *slog.Logger) *Pipeline {
	return New(store, assets, logger, Options{
		Interval:     cfg.ProgressInterval(),
		EMAAlpha:     cfg.Download.EMAAlpha,
		MinFreeBytes: int64(cfg.Download.MinFreeMiB) << 20,
		VerifyHash:   cfg.Download.VerifyHash,
	})
}

// DownloadPlaylist returns a sequence that, each time it is ranged over,
// runs one pass over the playlist's missing assets and yields progress
// snapshots. Nothing happens until the sequence is ranged. Breaking out of
// the range or cancelling ctx stops the transfer in flight.
func (p *Pipeline) DownloadPlaylist(ctx context.Context, playlistID string) iter.Seq[Progress] {
	return func(yield func(Progress) bool) {
		passCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		pass := &pass{
			Pipeline: p,
			ctx:      passCtx,
			cancel:   cancel,
			yield:    yield,
			snapshot: Progress{PlaylistID: playlistID, ETASeconds: -1},
			sampler:  logging.NewProgressSampler(25),
			logger:   logging.WithContext(ctx, p.logger).With(logging.PlaylistID(playlistID)),
		}
		pass.run()
	}
}

// pass holds the counters of one ranged iteration.
type pass struct {
	*Pipeline
	ctx     context.Context
	cancel  context.CancelFunc
	yield   func(Progress) bool
	stopped bool
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	snapshot Progress
	rate     float64
	lastEmit time.Time
	lastTick time.Time
}

func (s *pass) run() {
	playlistID := s.snapshot.PlaylistID
	entries, err := s.store.Entries(s.ctx, playlistID)
	if err != nil {
		s.snapshot.Err = fmt.Errorf("load playlist %s: %w", playlistID, err)
		s.finish()
		return
	}

	pending := s.pending(entries)
	s.snapshot.TotalCount = len(pending)
	for _, asset := range pending {
		s.snapshot.TotalBytes += asset.SizeBytes
	}
	s.lastTick = s.opts.Clock()
	if !s.emit(true) {
		return
	}

	for _, asset := range pending {
		if s.stopped || s.ctx.Err() != nil {
			return
		}
		s.download(asset)
		if s.stopped || s.ctx.Err() != nil {
			return
		}
	}
	s.finish()
}

// pending returns the distinct assets that need a download, in first
// appearance order.
func (s *pass) pending(entries []catalog.Entry) []catalog.Asset {
	seen := make(map[string]struct{}, len(entries))
	var out []catalog.Asset
	for _, entry := range entries {
		asset := entry.Asset
		if _, dup := seen[asset.ID]; dup {
			continue
		}
		seen[asset.ID] = struct{}{}
		ok, err := assetstore.CheckLocal(asset)
		if ok {
			continue
		}
		if err != nil {
			s.logger.Info("cached asset file is stale; downloading again",
				logging.AssetID(asset.ID),
				logging.Error(err),
				logging.EventType("asset_stale"),
				logging.Alert("cache_mismatch"),
			)
		}
		out = append(out, asset)
	}
	return out
}

func (s *pass) download(asset catalog.Asset) {
	// Another region may have fetched the asset since the pass started.
	if current, err := s.store.AssetByID(s.ctx, asset.ID); err == nil {
		if ok, _ := assetstore.CheckLocal(current); ok {
			contributed := current.SizeBytes
			if contributed <= 0 {
				contributed, _ = assetstore.FileSize(current.LocalPath)
			}
			s.addBytes(contributed)
			s.snapshot.FinishedCount++
			s.emit(true)
			return
		}
		asset = current
	}

	s.snapshot.CurrentAssetID = asset.ID
	dest := s.assets.PathFor(asset)
	if err := s.assets.EnsureSpace(asset.SizeBytes, s.opts.MinFreeBytes); err != nil {
		s.fail(asset, err)
		s.emit(true)
		return
	}

	var (
		read      int64
		announced = asset.HasDeclaredSize()
		expected  = asset.SizeBytes
		first     = true
	)
	_, err := s.assets.Fetch(s.ctx, asset, s.opts.VerifyHash, func(n, contentLength int64) {
		if s.stopped {
			return
		}
		now := s.opts.Clock()
		if first {
			if !announced && contentLength > 0 && contentLength >= n {
				s.snapshot.TotalBytes += contentLength
				expected = contentLength
				announced = true
			}
			first = false
		}
		delta := n - read
		if delta < 0 {
			delta = 0
		}
		read = n
		s.addBytes(delta)

		elapsed := now.Sub(s.lastTick)
		if elapsed < time.Millisecond {
			elapsed = time.Millisecond
		}
		s.rate = smooth(s.rate, float64(delta)/elapsed.Seconds(), s.opts.EMAAlpha)
		s.lastTick = now
		s.emit(false)
	})
	if s.stopped || s.ctx.Err() != nil {
		return
	}

	if err != nil && s.acceptExisting(asset, dest, expected) {
		s.logger.Debug("transfer failed but destination is complete",
			logging.AssetID(asset.ID),
			logging.Error(err),
		)
		err = nil
	}
	if err == nil {
		err = s.store.SetDownloaded(s.ctx, asset.ID, dest, s.opts.Clock())
	}
	if err != nil {
		s.fail(asset, err)
	} else {
		s.snapshot.FinishedCount++
		s.logger.Debug("asset downloaded",
			logging.AssetID(asset.ID),
			logging.Int64("bytes", read),
		)
	}
	s.emit(true)
}

// acceptExisting treats a failed transfer as success when the destination
// already holds a complete copy, typically written by a concurrent pass.
// Assets with a declared digest are only accepted through a verified fetch.
func (s *pass) acceptExisting(asset catalog.Asset, dest string, expected int64) bool {
	if s.opts.VerifyHash && asset.Hash != "" {
		return false
	}
	size, ok := assetstore.FileSize(dest)
	if !ok {
		return false
	}
	if expected > 0 {
		return size == expected
	}
	return size > 0
}

func (s *pass) fail(asset catalog.Asset, err error) {
	s.snapshot.Failed++
	s.snapshot.Err = fmt.Errorf("%w: %s: %w", ErrPartial, asset.ID, err)
	logging.WarnWithContext(s.logger, "asset download failed", "asset_download_failed",
		logging.AssetID(asset.ID),
		logging.Error(err),
		logging.ErrorHint(failureHint(err)),
		logging.Impact("item is skipped during playback until a later pass succeeds"),
	)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, assetstore.ErrInsufficientSpace):
		return "free space on the assets volume or lower download.min_free_mib"
	case errors.Is(err, assetstore.ErrHashMismatch):
		return "the server copy does not match its published hash"
	default:
		return "check network connectivity and the asset url"
	}
}

func (s *pass) addBytes(n int64) {
	s.snapshot.BytesDownloaded += n
	if s.snapshot.TotalBytes < s.snapshot.BytesDownloaded {
		s.snapshot.TotalBytes = s.snapshot.BytesDownloaded
	}
}

func (s *pass) finish() {
	s.snapshot.CurrentAssetID = ""
	s.snapshot.Final = true
	s.emit(true)
	s.logger.Info("download pass finished",
		logging.Int("finished", s.snapshot.FinishedCount),
		logging.Int("total", s.snapshot.TotalCount),
		logging.Int("failed", s.snapshot.Failed),
		logging.Int64("bytes", s.snapshot.BytesDownloaded),
		logging.EventType("download_pass_finished"),
	)
}

// emit yields a snapshot when forced or when the throttle interval elapsed.
// It reports false once the consumer stopped ranging.
func (s *pass) emit(force bool) bool {
	if s.stopped {
		return false
	}
	now := s.opts.Clock()
	if !force && now.Sub(s.lastEmit) < s.opts.Interval {
		return true
	}
	snap := s.snapshot
	snap.RateBytesPerSec = s.rate
	snap.ETASeconds = ETA(snap.TotalBytes, snap.BytesDownloaded, s.rate)
	snap.Percent = Percent(snap.BytesDownloaded, snap.TotalBytes, snap.FinishedCount, snap.TotalCount)
	snap.Done = snap.FinishedCount >= snap.TotalCount
	s.lastEmit = now

	if s.sampler.ShouldLog(snap.Percent, snap.CurrentAssetID) && !snap.Final {
		s.logger.Debug("download progress",
			logging.AssetID(snap.CurrentAssetID),
			logging.Float64("percent", snap.Percent),
			logging.Float64("rate_bps", snap.RateBytesPerSec),
			logging.Float64("eta_seconds", snap.ETASeconds),
		)
	}

	if !s.yield(snap) {
		s.stopped = true
		s.cancel()
		return false
	}
	return true
}
