// Package analytics records what each region played. Every item shown opens
// a run; while the run is open, samples are written once per tick interval
// and a final sample closes it.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signage/internal/catalog"
	"signage/internal/logging"
	"signage/internal/playback"
)

// ErrUnknownRun is returned by Attach for runs that are not open.
var ErrUnknownRun = errors.New("analytics: unknown run")

// Sink persists play events. *catalog.Store satisfies it.
type Sink interface {
	RecordPlayEvent(ctx context.Context, event catalog.PlayEvent) (bool, error)
}

// Run is an open play run.
type Run struct {
	ID         string
	RegionID   string
	PlaylistID string
	AssetID    string
	MediaType  string
	StartedAt  time.Time
	LastTick   int64
	attrs      string
}

// Recorder implements playback.Observer.
type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	runs map[string]*Run

	cancel context.CancelFunc
	done   chan struct{}
}

var _ playback.Observer = (*Recorder)(nil)

// New builds a Recorder sampling every interval.
func New(sink Sink, logger *slog.Logger, interval time.Duration) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Recorder{
		sink:     sink,
		logger:   logging.NewComponentLogger(logger, "analytics"),
		interval: interval,
		now:      time.Now,
		runs:     make(map[string]*Run),
	}
}

// SetClock overrides the time source.
func (r *Recorder) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Start launches the sampling ticker. It is a no-op when already running.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sample(ctx)
			}
		}
	}()
}

// Stop halts the ticker. Open runs stay open.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// AssetStarted opens a run for the region, closing any run it still had.
func (r *Recorder) AssetStarted(ev playback.Event) {
	runID := ev.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := ev.StartedAt
	if started.IsZero() {
		started = r.now()
	}
	run := &Run{
		ID:         runID,
		RegionID:   ev.RegionID,
		PlaylistID: ev.PlaylistID,
		AssetID:    ev.AssetID,
		MediaType:  mediaType(ev),
		StartedAt:  started,
	}

	r.mu.Lock()
	previous := r.runs[ev.RegionID]
	r.runs[ev.RegionID] = run
	r.mu.Unlock()

	ctx := context.Background()
	if previous != nil {
		r.record(ctx, previous, catalog.PlayEventEnd, r.tickAt(previous, started), started)
	}
	r.record(ctx, run, catalog.PlayEventStart, 0, started)
}

// AssetEnded writes the final sample and closes the run.
func (r *Recorder) AssetEnded(ev playback.Event) {
	r.mu.Lock()
	run, ok := r.runs[ev.RegionID]
	if !ok || (ev.RunID != "" && run.ID != ev.RunID) {
		r.mu.Unlock()
		return
	}
	delete(r.runs, ev.RegionID)
	r.mu.Unlock()

	ended := ev.EndedAt
	if ended.IsZero() {
		ended = r.now()
	}
	r.record(context.Background(), run, catalog.PlayEventEnd, r.tickAt(run, ended), ended)
}

// Attach sets the attribute document carried by the run's later samples.
// attrs must marshal to JSON.
func (r *Recorder) Attach(runID string, attrs any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("analytics: encode attributes: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == runID {
			run.attrs = string(data)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
}

// Sample writes one sample per open run whose tick has not been recorded.
func (r *Recorder) Sample(ctx context.Context) {
	now := r.now()
	r.mu.Lock()
	var due []*Run
	var ticks []int64
	for _, run := range r.runs {
		tick := r.tickAt(run, now)
		if tick <= run.LastTick {
			continue
		}
		run.LastTick = tick
		due = append(due, run)
		ticks = append(ticks, tick)
	}
	r.mu.Unlock()

	for i, run := range due {
		r.record(ctx, run, catalog.PlayEventSample, ticks[i], now)
	}
}

// Active returns the open runs sorted by region.
func (r *Recorder) Active() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out
}

func (r *Recorder) tickAt(run *Run, at time.Time) int64 {
	elapsed := at.Sub(run.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / r.interval)
}

func (r *Recorder) record(ctx context.Context, run *Run, kind catalog.PlayEventKind, tick int64, at time.Time) {
	r.mu.Lock()
	attrs := run.attrs
	r.mu.Unlock()
	inserted, err := r.sink.RecordPlayEvent(ctx, catalog.PlayEvent{
		RunID:          run.ID,
		Kind:           kind,
		Tick:           tick,
		RegionID:       run.RegionID,
		PlaylistID:     run.PlaylistID,
		AssetID:        run.AssetID,
		MediaType:      run.MediaType,
		AttributesJSON: attrs,
		RecordedAt:     at,
	})
	if err != nil {
		r.logger.Warn("failed to record play event",
			logging.String("run_id", run.ID),
			logging.String("kind", string(kind)),
			logging.Error(err),
			logging.EventType("play_event_failed"),
			logging.Impact("analytics sample lost"),
		)
		return
	}
	if !inserted {
		r.logger.Debug("duplicate play event ignored", logging.String("run_id", run.ID), logging.Int64("tick", tick))
	}
}

func mediaType(ev playback.Event) string {
	if ev.MediaType != "" {
		return ev.MediaType
	}
	if ev.Video {
		return "video"
	}
	return "image"
}
