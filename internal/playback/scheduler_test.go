package playback_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signage/internal/catalog"
	"signage/internal/layout"
	"signage/internal/playback"
	"signage/internal/testsupport"
)

type recorder struct {
	mu           sync.Mutex
	images       map[string][]string
	videos       map[string][]string
	activeVideo  int
	maxVideo     int
	detached     map[string]int
	videoErr     error
	imageErr     error
	videoLatency time.Duration
}

func newRecorder() *recorder {
	return &recorder{
		images:       map[string][]string{},
		videos:       map[string][]string{},
		detached:     map[string]int{},
		videoLatency: 5 * time.Millisecond,
	}
}

func (r *recorder) factory(region layout.Region) playback.Renderer {
	return &fakeRenderer{rec: r, region: region.ID}
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, ids := range r.images {
		total += len(ids)
	}
	for _, ids := range r.videos {
		total += len(ids)
	}
	return total
}

func (r *recorder) snapshot() (images, videos map[string][]string, maxVideo int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	images = map[string][]string{}
	videos = map[string][]string{}
	for k, v := range r.images {
		images[k] = append([]string(nil), v...)
	}
	for k, v := range r.videos {
		videos[k] = append([]string(nil), v...)
	}
	return images, videos, r.maxVideo
}

type fakeRenderer struct {
	rec    *recorder
	region string
}

func (f *fakeRenderer) ShowImage(_ context.Context, item playback.Item) error {
	f.rec.mu.Lock()
	f.rec.images[f.region] = append(f.rec.images[f.region], item.AssetID)
	fail := f.rec.imageErr
	f.rec.mu.Unlock()
	return fail
}

func (f *fakeRenderer) PlayVideo(ctx context.Context, item playback.Item) error {
	f.rec.mu.Lock()
	f.rec.videos[f.region] = append(f.rec.videos[f.region], item.AssetID)
	f.rec.activeVideo++
	if f.rec.activeVideo > f.rec.maxVideo {
		f.rec.maxVideo = f.rec.activeVideo
	}
	latency, fail := f.rec.videoLatency, f.rec.videoErr
	f.rec.mu.Unlock()
	defer func() {
		f.rec.mu.Lock()
		f.rec.activeVideo--
		f.rec.mu.Unlock()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(latency):
	}
	return fail
}

func (f *fakeRenderer) Idle() {}

func (f *fakeRenderer) Detach() {
	f.rec.mu.Lock()
	f.rec.detached[f.region]++
	f.rec.mu.Unlock()
}

type eventLog struct {
	mu      sync.Mutex
	started []playback.Event
	ended   []playback.Event
}

func (e *eventLog) AssetStarted(ev playback.Event) {
	e.mu.Lock()
	e.started = append(e.started, ev)
	e.mu.Unlock()
}

func (e *eventLog) AssetEnded(ev playback.Event) {
	e.mu.Lock()
	e.ended = append(e.ended, ev)
	e.mu.Unlock()
}

func (e *eventLog) endedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ended)
}

var fastOptions = playback.Options{
	MissingPause: time.Millisecond,
	AwaitPause:   5 * time.Millisecond,
	DwellUnit:    time.Millisecond,
}

type fixture struct {
	store *catalog.Store
	dir   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return fixture{store: testsupport.MustOpenStore(t, cfg), dir: cfg.Paths.AssetsDir}
}

// materialize writes a file for the asset and records it in the catalog.
func (f fixture) materialize(t *testing.T, asset catalog.Asset, ext string) {
	t.Helper()
	path := filepath.Join(f.dir, asset.ID+ext)
	testsupport.WriteFile(t, path, 16)
	require.NoError(t, f.store.SetDownloaded(context.Background(), asset.ID, path, time.Now()))
}

func TestAdmissionNeverExceedsCapacity(t *testing.T) {
	admission := playback.NewAdmission(2)
	require.True(t, admission.TryAcquire())
	require.True(t, admission.TryAcquire())
	require.False(t, admission.TryAcquire())
	require.Equal(t, 2, admission.InUse())
	admission.Release()
	require.True(t, admission.TryAcquire())
	require.Equal(t, 2, admission.Capacity())

	require.Equal(t, 1, playback.NewAdmission(0).Capacity())
}

func TestAdmissionServesQueuedHoldersFirst(t *testing.T) {
	admission := playback.NewAdmission(1)
	require.True(t, admission.TryAcquireFor("a"))
	require.False(t, admission.TryAcquireFor("b"))
	require.True(t, admission.Contended())

	admission.Release()
	// a is not queued and b is, so the free permit is b's.
	require.False(t, admission.TryAcquireFor("a"))
	require.True(t, admission.TryAcquireFor("b"))
	require.True(t, admission.Contended())

	admission.Withdraw("a")
	require.False(t, admission.Contended())
	admission.Release()
	require.True(t, admission.TryAcquire())
	require.Equal(t, 1, admission.InUse())
}

func TestSecondVideoRegionPlaysImagesOnly(t *testing.T) {
	f := newFixture(t)
	video1 := catalog.Asset{ID: "v1", MediaType: "video/mp4", RemoteURL: "v1"}
	video2 := catalog.Asset{ID: "v2", MediaType: "video/mp4", RemoteURL: "v2"}
	image := catalog.Asset{ID: "img", MediaType: "image/png", RemoteURL: "img"}
	testsupport.SeedPlaylist(t, f.store, "PA", video1, image)
	testsupport.SeedPlaylist(t, f.store, "PB", video2, image)
	f.materialize(t, video1, ".mp4")
	f.materialize(t, video2, ".mp4")
	f.materialize(t, image, ".png")

	rec := newRecorder()
	admission := playback.NewAdmission(1)
	sched := playback.New(admission, f.store, rec.factory, nil, nil, fastOptions)
	sched.Start(context.Background(), 1, []layout.Region{
		{ID: "a", PlaylistID: "PA"},
		{ID: "b", PlaylistID: "PB", Z: 1},
	})

	var mu sync.Mutex
	maxHeld := 0
	require.Eventually(t, func() bool {
		held := 0
		for _, state := range sched.States() {
			if state.VideoPermit {
				held++
			}
		}
		mu.Lock()
		maxHeld = max(maxHeld, held)
		mu.Unlock()
		images, _, _ := rec.snapshot()
		return len(images["a"]) >= 2 && len(images["b"]) >= 2
	}, 3*time.Second, time.Millisecond)

	sched.Stop()
	_, _, maxVideo := rec.snapshot()
	require.LessOrEqual(t, maxVideo, 1)
	mu.Lock()
	require.LessOrEqual(t, maxHeld, 1)
	mu.Unlock()
	require.Zero(t, admission.InUse())
}

func TestVideoPermitRotatesUnderContention(t *testing.T) {
	f := newFixture(t)
	video1 := catalog.Asset{ID: "v1", MediaType: "video/mp4", RemoteURL: "v1"}
	video2 := catalog.Asset{ID: "v2", MediaType: "video/mp4", RemoteURL: "v2"}
	image := catalog.Asset{ID: "img", MediaType: "image/png", RemoteURL: "img"}
	testsupport.SeedPlaylist(t, f.store, "PA", video1, image)
	testsupport.SeedPlaylist(t, f.store, "PB", video2, image)
	f.materialize(t, video1, ".mp4")
	f.materialize(t, video2, ".mp4")
	f.materialize(t, image, ".png")

	rec := newRecorder()
	admission := playback.NewAdmission(1)
	sched := playback.New(admission, f.store, rec.factory, nil, nil, fastOptions)
	sched.Start(context.Background(), 1, []layout.Region{
		{ID: "a", PlaylistID: "PA"},
		{ID: "b", PlaylistID: "PB", Z: 1},
	})

	// Both regions get decoder time even though only one permit exists.
	require.Eventually(t, func() bool {
		_, videos, _ := rec.snapshot()
		return len(videos["a"]) >= 2 && len(videos["b"]) >= 2
	}, 5*time.Second, 5*time.Millisecond)

	sched.Stop()
	_, _, maxVideo := rec.snapshot()
	require.Equal(t, 1, maxVideo)
	require.Zero(t, admission.InUse())
	require.False(t, admission.Contended())
}

func TestFailingItemsPauseBeforeRetrying(t *testing.T) {
	f := newFixture(t)
	image := catalog.Asset{ID: "broken", RemoteURL: "broken.png"}
	testsupport.SeedPlaylist(t, f.store, "P", image)
	f.materialize(t, image, ".png")

	rec := newRecorder()
	rec.imageErr = errors.New("corrupt image")
	opts := fastOptions
	opts.MissingPause = 20 * time.Millisecond
	events := &eventLog{}
	sched := playback.New(playback.NewAdmission(1), f.store, rec.factory, events, nil, opts)
	sched.Start(context.Background(), 1, []layout.Region{{ID: "main", PlaylistID: "P"}})

	time.Sleep(200 * time.Millisecond)
	sched.Stop()

	calls := rec.calls()
	require.GreaterOrEqual(t, calls, 1)
	require.LessOrEqual(t, calls, 15, "renderer called %d times in 200ms", calls)
	events.mu.Lock()
	defer events.mu.Unlock()
	require.NotEmpty(t, events.ended)
	require.ErrorIs(t, events.ended[0].Err, playback.ErrPlayback)
}

func TestMissingItemsAreSkipped(t *testing.T) {
	f := newFixture(t)
	missing := catalog.Asset{ID: "gone", RemoteURL: "gone.png"}
	present := catalog.Asset{ID: "here", RemoteURL: "here.png"}
	testsupport.SeedPlaylist(t, f.store, "P", missing, present)
	f.materialize(t, present, ".png")

	rec := newRecorder()
	events := &eventLog{}
	sched := playback.New(playback.NewAdmission(1), f.store, rec.factory, events, nil, fastOptions)
	sched.Start(context.Background(), 1, []layout.Region{{ID: "main", PlaylistID: "P"}})

	require.Eventually(t, func() bool { return events.endedCount() >= 3 }, 3*time.Second, 5*time.Millisecond)
	sched.Stop()

	images, _, _ := rec.snapshot()
	for _, id := range images["main"] {
		require.Equal(t, "here", id)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	for _, ev := range events.ended {
		require.Equal(t, "here", ev.AssetID)
		require.Equal(t, uint64(1), ev.Generation)
		require.NotEmpty(t, ev.RunID)
	}
}

func TestRegionAwaitsContentUntilFilesArrive(t *testing.T) {
	f := newFixture(t)
	asset := catalog.Asset{ID: "late", RemoteURL: "late.png"}
	testsupport.SeedPlaylist(t, f.store, "P", asset)

	rec := newRecorder()
	sched := playback.New(playback.NewAdmission(1), f.store, rec.factory, nil, nil, fastOptions)
	sched.Start(context.Background(), 1, []layout.Region{{ID: "main", PlaylistID: "P"}, {ID: "empty"}})
	defer sched.Stop()

	require.Eventually(t, func() bool {
		states := sched.States()
		return len(states) == 2 && states[1].State == playback.StateAwaitingContent
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, playback.StateIdle, sched.States()[0].State)

	f.materialize(t, asset, ".png")
	require.Eventually(t, func() bool {
		images, _, _ := rec.snapshot()
		return len(images["main"]) > 0
	}, 3*time.Second, 5*time.Millisecond)
}

func TestStartTearsDownPreviousGeneration(t *testing.T) {
	f := newFixture(t)
	video := catalog.Asset{ID: "v", MediaType: "video/webm", RemoteURL: "v"}
	testsupport.SeedPlaylist(t, f.store, "P", video)
	f.materialize(t, video, ".webm")

	rec := newRecorder()
	rec.videoLatency = time.Hour
	admission := playback.NewAdmission(1)
	events := &eventLog{}
	sched := playback.New(admission, f.store, rec.factory, events, nil, fastOptions)

	sched.Start(context.Background(), 1, []layout.Region{{ID: "main", PlaylistID: "P"}})
	require.Eventually(t, func() bool { return admission.InUse() == 1 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	rec.videoLatency = time.Millisecond
	rec.mu.Unlock()
	require.True(t, sched.Start(context.Background(), 2, []layout.Region{{ID: "main", PlaylistID: "P"}}))

	rec.mu.Lock()
	require.Equal(t, 1, rec.detached["main"])
	rec.mu.Unlock()
	require.Equal(t, uint64(2), sched.Generation())
	require.LessOrEqual(t, admission.InUse(), 1)

	require.False(t, sched.Start(context.Background(), 1, nil))
	require.False(t, sched.Update(context.Background(), 1, layout.Region{ID: "main", PlaylistID: "P"}))
	require.True(t, sched.Update(context.Background(), 2, layout.Region{ID: "main", PlaylistID: "P"}))

	sched.Stop()
	require.Zero(t, admission.InUse())
	require.Empty(t, sched.States())
}

func TestVideoErrorAdvancesPlaylist(t *testing.T) {
	f := newFixture(t)
	video := catalog.Asset{ID: "v", RemoteURL: "https://cdn/v.mp4"}
	image := catalog.Asset{ID: "i", RemoteURL: "https://cdn/i.png"}
	testsupport.SeedPlaylist(t, f.store, "P", video, image)
	f.materialize(t, video, ".mp4")
	f.materialize(t, image, ".png")

	rec := newRecorder()
	rec.videoErr = errors.New("decoder crashed")
	events := &eventLog{}
	sched := playback.New(playback.NewAdmission(1), f.store, rec.factory, events, nil, fastOptions)
	sched.Start(context.Background(), 1, []layout.Region{{ID: "main", PlaylistID: "P"}})

	require.Eventually(t, func() bool { return events.endedCount() >= 2 }, 3*time.Second, 5*time.Millisecond)
	sched.Stop()

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Equal(t, "v", events.ended[0].AssetID)
	require.ErrorIs(t, events.ended[0].Err, playback.ErrPlayback)
	require.Equal(t, "i", events.ended[1].AssetID)
	require.NoError(t, events.ended[1].Err)
}
