package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signage/internal/analytics"
	"signage/internal/catalog"
	"signage/internal/playback"
	"signage/internal/testsupport"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRecorderSamplesOncePerTick(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	clk := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	rec := analytics.New(store, nil, 10*time.Second)
	rec.SetClock(clk.now)

	rec.AssetStarted(playback.Event{RunID: "run-1", RegionID: "main", PlaylistID: "P", AssetID: "a1", Video: true, StartedAt: clk.t})
	require.Len(t, rec.Active(), 1)

	clk.advance(4 * time.Second)
	rec.Sample(ctx) // tick 0 already covered by the start event
	clk.advance(7 * time.Second)
	rec.Sample(ctx) // tick 1
	clk.advance(2 * time.Second)
	rec.Sample(ctx) // still tick 1
	require.NoError(t, rec.Attach("run-1", map[string]int{"viewers": 2}))
	clk.advance(10 * time.Second)
	rec.Sample(ctx) // tick 2

	rec.AssetEnded(playback.Event{RunID: "run-1", RegionID: "main", EndedAt: clk.t})
	require.Empty(t, rec.Active())
	require.ErrorIs(t, rec.Attach("run-1", nil), analytics.ErrUnknownRun)

	events, err := store.PlayEvents(ctx, 20)
	require.NoError(t, err)
	kinds := map[catalog.PlayEventKind][]int64{}
	for _, ev := range events {
		require.Equal(t, "run-1", ev.RunID)
		require.Equal(t, "video", ev.MediaType)
		kinds[ev.Kind] = append(kinds[ev.Kind], ev.Tick)
	}
	require.Equal(t, []int64{0}, kinds[catalog.PlayEventStart])
	require.ElementsMatch(t, []int64{1, 2}, kinds[catalog.PlayEventSample])
	require.Equal(t, []int64{2}, kinds[catalog.PlayEventEnd])

	var withAttrs int
	for _, ev := range events {
		if ev.AttributesJSON != "" {
			require.JSONEq(t, `{"viewers":2}`, ev.AttributesJSON)
			withAttrs++
		}
	}
	require.Equal(t, 2, withAttrs)
}

func TestRecorderClosesPreviousRunOnRegion(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := analytics.New(store, nil, time.Second)

	start := time.Now()
	rec.AssetStarted(playback.Event{RegionID: "r", AssetID: "a", StartedAt: start})
	rec.AssetStarted(playback.Event{RegionID: "r", AssetID: "b", StartedAt: start.Add(3 * time.Second)})

	active := rec.Active()
	require.Len(t, active, 1)
	require.Equal(t, "b", active[0].AssetID)
	require.NotEmpty(t, active[0].ID)

	// A stale end for another run leaves the open run alone.
	rec.AssetEnded(playback.Event{RunID: "other", RegionID: "r"})
	require.Len(t, rec.Active(), 1)

	events, err := store.PlayEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestRecorderStartStop(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := analytics.New(store, nil, 5*time.Millisecond)
	rec.Start(context.Background())
	rec.Start(context.Background())
	rec.AssetStarted(playback.Event{RegionID: "r", AssetID: "a"})

	require.Eventually(t, func() bool {
		events, err := store.PlayEvents(context.Background(), 10)
		return err == nil && len(events) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	rec.Stop()
	rec.Stop()
}
