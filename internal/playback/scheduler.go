package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signage/internal/assetstore"
	"signage/internal/config"
	"signage/internal/layout"
	"signage/internal/logging"
)

// Options tunes the scheduler's timing.
type Options struct {
	// MissingPause is slept before skipping an item whose file is absent or
	// whose playback failed.
	MissingPause time.Duration
	// AwaitPause is the rescan interval while a region has nothing playable.
	AwaitPause time.Duration
	// DwellUnit scales DurationSec; one second outside tests.
	DwellUnit time.Duration
}

// OptionsFromConfig maps the playback section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MissingPause: cfg.MissingItemPause(),
		AwaitPause:   cfg.AwaitContentPause(),
		DwellUnit:    time.Second,
	}
}

// Scheduler owns the region sessions of the current generation.
type Scheduler struct {
	admission *Admission
	source    ItemSource
	factory   RendererFactory
	observer  Observer
	logger    *slog.Logger
	opts      Options

	mu         sync.Mutex
	generation atomic.Uint64
	sessions   map[string]*session
}

// New builds a Scheduler. A nil observer discards events.
func New(admission *Admission, source ItemSource, factory RendererFactory, observer Observer, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if opts.MissingPause <= 0 {
		opts.MissingPause = 250 * time.Millisecond
	}
	if opts.AwaitPause <= 0 {
		opts.AwaitPause = 5 * time.Second
	}
	if opts.DwellUnit <= 0 {
		opts.DwellUnit = time.Second
	}
	return &Scheduler{
		admission: admission,
		source:    source,
		factory:   factory,
		observer:  observer,
		logger:    logging.NewComponentLogger(logger, "playback"),
		opts:      opts,
		sessions:  make(map[string]*session),
	}
}

// Generation returns the generation of the running sessions.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// Start tears down every running session and starts one per region under
// generation gen. Generations must increase; an older gen is ignored.
func (s *Scheduler) Start(ctx context.Context, gen uint64, regions []layout.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.generation.Load() {
		s.logger.Debug("ignoring stale generation", logging.Generation(gen))
		return false
	}
	s.teardownLocked()
	s.generation.Store(gen)
	for _, region := range regions {
		s.startLocked(ctx, gen, region)
	}
	s.logger.Info("playback generation started",
		logging.Generation(gen),
		logging.Int("regions", len(regions)),
		logging.EventType("generation_started"),
	)
	return true
}

// Update replaces a single region's session within the current generation.
// It returns false when gen is not the current generation.
func (s *Scheduler) Update(ctx context.Context, gen uint64, region layout.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() {
		return false
	}
	if existing, ok := s.sessions[region.ID]; ok {
		existing.teardown()
		delete(s.sessions, region.ID)
	}
	s.startLocked(ctx, gen, region)
	return true
}

// Stop tears down every session.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// States reports every session sorted by region id.
func (s *Scheduler) States() []RegionStatus {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]RegionStatus, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out
}

func (s *Scheduler) teardownLocked() {
	for id, sess := range s.sessions {
		sess.teardown()
		delete(s.sessions, id)
	}
}

func (s *Scheduler) startLocked(ctx context.Context, gen uint64, region layout.Region) {
	renderer := s.factory(region)
	runCtx, cancel := context.WithCancel(logging.WithGeneration(logging.WithRegion(ctx, region.ID), gen))
	sess := &session{
		scheduler:  s,
		region:     region,
		generation: gen,
		renderer:   renderer,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger: s.logger.With(
			logging.RegionID(region.ID),
			logging.PlaylistID(region.PlaylistID),
			logging.Generation(gen),
		),
	}
	s.sessions[region.ID] = sess
	if region.Idle() {
		sess.setState(StateIdle)
		renderer.Idle()
		close(sess.done)
		return
	}
	sess.setState(StateAwaitingContent)
	go sess.run(runCtx)
}

// session is one region's playback loop.
type session struct {
	scheduler  *Scheduler
	region     layout.Region
	generation uint64
	renderer   Renderer
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	current string
	permit  bool
}

func (ss *session) setState(state State) {
	ss.mu.Lock()
	ss.state = state
	if state != StatePlaying {
		ss.current = ""
	}
	ss.mu.Unlock()
}

func (ss *session) setCurrent(assetID string) {
	ss.mu.Lock()
	ss.current = assetID
	ss.mu.Unlock()
}

func (ss *session) status() RegionStatus {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return RegionStatus{
		RegionID:       ss.region.ID,
		PlaylistID:     ss.region.PlaylistID,
		State:          ss.state,
		Generation:     ss.generation,
		CurrentAssetID: ss.current,
		VideoPermit:    ss.permit,
	}
}

func (ss *session) hasPermit() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.permit
}

func (ss *session) acquire() {
	if ss.hasPermit() {
		return
	}
	if ss.scheduler.admission.TryAcquireFor(ss.holder()) {
		ss.mu.Lock()
		ss.permit = true
		ss.mu.Unlock()
		ss.logger.Debug("video permit acquired")
		return
	}
	ss.logger.Debug("no video permit available; playing images only")
}

// holder names the session in the admission queue.
func (ss *session) holder() string {
	return fmt.Sprintf("%s@%d", ss.region.ID, ss.generation)
}

// withdraw releases any held permit and leaves the admission queue.
func (ss *session) withdraw() {
	ss.scheduler.admission.Withdraw(ss.holder())
	ss.release()
}

func (ss *session) release() {
	ss.mu.Lock()
	held := ss.permit
	ss.permit = false
	ss.mu.Unlock()
	if held {
		ss.scheduler.admission.Release()
	}
}

// teardown cancels the loop, waits for it to exit, then detaches the
// renderer. The permit is released by the loop itself.
func (ss *session) teardown() {
	ss.cancel()
	<-ss.done
	ss.renderer.Detach()
	ss.setState(StateStopped)
}

func (ss *session) run(ctx context.Context) {
	defer close(ss.done)
	defer ss.withdraw()

	for ctx.Err() == nil {
		items, err := ss.load(ctx)
		if err != nil && ctx.Err() == nil {
			ss.logger.Warn("failed to load playlist items",
				logging.Error(err),
				logging.EventType("playlist_load_failed"),
				logging.ErrorHint("check the catalog database"),
			)
		}

		if anyVideo(items) {
			ss.acquire()
		} else {
			ss.withdraw()
		}
		if !ss.hasPermit() {
			items = imagesOnly(items)
		}

		if !anyPresent(items) {
			ss.setState(StateAwaitingContent)
			ss.renderer.Idle()
			if !sleep(ctx, ss.scheduler.opts.AwaitPause) {
				return
			}
			continue
		}

		ss.setState(StatePlaying)
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			if _, ok := assetstore.FileSize(item.LocalPath); !ok {
				ss.logger.Debug("asset file missing; skipping", logging.AssetID(item.AssetID))
				if !sleep(ctx, ss.scheduler.opts.MissingPause) {
					return
				}
				continue
			}
			if err := ss.play(ctx, item); err != nil {
				if !sleep(ctx, ss.scheduler.opts.MissingPause) {
					return
				}
			}
		}
		// Hand the permit over at the end of a cycle when other regions wait.
		if ss.hasPermit() && ss.scheduler.admission.Contended() {
			ss.release()
			ss.logger.Debug("video permit yielded to waiting region")
		}
	}
}

func (ss *session) load(ctx context.Context) ([]Item, error) {
	entries, err := ss.scheduler.source.Entries(ctx, ss.region.PlaylistID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		items = append(items, itemFromEntry(entry))
	}
	return items, nil
}

// play renders one item and reports the playback error, if any. Cancellation
// is not an error.
func (ss *session) play(ctx context.Context, item Item) error {
	ss.setCurrent(item.AssetID)
	event := Event{
		Generation: ss.generation,
		RunID:      uuid.NewString(),
		RegionID:   ss.region.ID,
		PlaylistID: ss.region.PlaylistID,
		ItemID:     item.ItemID,
		AssetID:    item.AssetID,
		MediaType:  item.MediaType,
		Video:      item.Video,
		StartedAt:  time.Now(),
	}
	ss.notify(func(o Observer) { o.AssetStarted(event) })

	var err error
	if item.Video {
		err = ss.renderer.PlayVideo(ctx, item)
	} else {
		err = ss.renderer.ShowImage(ctx, item)
		if err == nil {
			sleep(ctx, dwell(item.DurationSec, ss.scheduler.opts.DwellUnit))
		}
	}
	if err != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: %s %s: %w", ErrPlayback, item.Kind(), item.AssetID, err)
		logging.WarnWithContext(ss.logger, "item playback failed; advancing", "playback_item_failed",
			logging.AssetID(item.AssetID),
			logging.Error(err),
			logging.ErrorHint("check the media file and renderer"),
			logging.Impact("item skipped for this cycle"),
		)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	event.EndedAt = time.Now()
	event.Err = err
	ss.notify(func(o Observer) { o.AssetEnded(event) })
	return err
}

// notify drops events from sessions that no longer belong to the current
// generation.
func (ss *session) notify(fn func(Observer)) {
	if ss.scheduler.generation.Load() != ss.generation {
		return
	}
	fn(ss.scheduler.observer)
}

func dwell(durationSec int, unit time.Duration) time.Duration {
	if durationSec < 1 {
		durationSec = 1
	}
	return time.Duration(durationSec) * unit
}

func anyVideo(items []Item) bool {
	for _, item := range items {
		if item.Video {
			return true
		}
	}
	return false
}

func anyPresent(items []Item) bool {
	for _, item := range items {
		if _, ok := assetstore.FileSize(item.LocalPath); ok {
			return true
		}
	}
	return false
}

func imagesOnly(items []Item) []Item {
	out := items[:0:0]
	for _, item := range items {
		if !item.Video {
			out = append(out, item)
		}
	}
	return out
}

// sleep waits for d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
