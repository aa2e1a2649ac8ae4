package playback

import (
	"context"
	"errors"
	"time"

	"signage/internal/catalog"
	"signage/internal/layout"
)

// ErrPlayback wraps renderer failures. A failed item is treated as ended.
var ErrPlayback = errors.New("playback failed")

// State is a region session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingContent
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingContent:
		return "awaiting_content"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Item is one playable playlist position resolved against the catalog.
type Item struct {
	ItemID      string
	PlaylistID  string
	AssetID     string
	MediaType   string
	LocalPath   string
	DurationSec int
	Video       bool
}

func itemFromEntry(entry catalog.Entry) Item {
	return Item{
		ItemID:      entry.Item.ID,
		PlaylistID:  entry.Item.PlaylistID,
		AssetID:     entry.Asset.ID,
		MediaType:   entry.Asset.MediaType,
		LocalPath:   entry.Asset.LocalPath,
		DurationSec: entry.Item.DurationSec,
		Video:       entry.Asset.IsVideo(),
	}
}

// Kind returns "video" or "image".
func (i Item) Kind() string {
	if i.Video {
		return "video"
	}
	return "image"
}

// Renderer draws one region. Implementations live outside this package.
type Renderer interface {
	// ShowImage displays an image and returns once it is on screen.
	ShowImage(ctx context.Context, item Item) error
	// PlayVideo blocks until the clip ends, fails, or ctx is cancelled.
	PlayVideo(ctx context.Context, item Item) error
	// Idle clears the region.
	Idle()
	// Detach releases the surface; the renderer is not used afterwards.
	Detach()
}

// RendererFactory creates the renderer for a region.
type RendererFactory func(region layout.Region) Renderer

// ItemSource reads playlist entries. *catalog.Store satisfies it.
type ItemSource interface {
	Entries(ctx context.Context, playlistID string) ([]catalog.Entry, error)
}

// Event describes the start or end of one item on one region.
type Event struct {
	Generation uint64
	RunID      string
	RegionID   string
	PlaylistID string
	ItemID     string
	AssetID    string
	MediaType  string
	Video      bool
	StartedAt  time.Time
	// EndedAt and Err are set on AssetEnded only.
	EndedAt time.Time
	Err     error
}

// Observer receives item boundaries. Calls come from region goroutines and
// must not block for long.
type Observer interface {
	AssetStarted(Event)
	AssetEnded(Event)
}

// RegionStatus is a point-in-time view of one region session.
type RegionStatus struct {
	RegionID       string
	PlaylistID     string
	State          State
	Generation     uint64
	CurrentAssetID string
	VideoPermit    bool
}

type nopObserver struct{}

func (nopObserver) AssetStarted(Event) {}
func (nopObserver) AssetEnded(Event)   {}
