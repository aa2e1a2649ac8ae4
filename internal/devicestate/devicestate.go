// Package devicestate derives the device's coarse operating state from
// connectivity, pairing and how much of the assigned content is cached.
package devicestate

import (
	"context"
	"errors"
	"fmt"

	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/layout"
)

// State is the device's operating state.
type State int

const (
	UnpairedOffline State = iota
	UnpairedOnline
	PairedNoAssignment
	PairedPreparing
	PairedPartial
	PairedReady
	PairedOfflineReady
	PairedOfflineNoCache
)

var names = map[State]string{
	UnpairedOffline:      "unpaired_offline",
	UnpairedOnline:       "unpaired_online",
	PairedNoAssignment:   "paired_no_assignment",
	PairedPreparing:      "paired_preparing",
	PairedPartial:        "paired_partial",
	PairedReady:          "paired_ready",
	PairedOfflineReady:   "paired_offline_ready",
	PairedOfflineNoCache: "paired_offline_no_cache",
}

func (s State) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return "unknown"
}

// Coarse returns an operator-facing description without error detail.
func (s State) Coarse() string {
	switch s {
	case UnpairedOffline:
		return "Not paired. Connect to the network to pair this screen."
	case UnpairedOnline:
		return "Waiting to be paired."
	case PairedNoAssignment:
		return "Paired. No content assigned to this screen."
	case PairedPreparing:
		return "Preparing content."
	case PairedPartial:
		return "Playing available content; some items are still downloading."
	case PairedReady:
		return "Playing."
	case PairedOfflineReady:
		return "Offline. Playing cached content."
	case PairedOfflineNoCache:
		return "Offline. No cached content available."
	default:
		return "Unknown state."
	}
}

// Playable reports whether the state allows regions to show content.
func (s State) Playable() bool {
	return s == PairedPartial || s == PairedReady || s == PairedOfflineReady
}

// Completeness summarizes cache coverage of the assigned playlists.
type Completeness struct {
	Assigned bool
	Required int
	Local    int
}

// Missing is the number of required assets without a usable local file.
func (c Completeness) Missing() int {
	if c.Local >= c.Required {
		return 0
	}
	return c.Required - c.Local
}

// AnyLocal reports whether at least one required asset is cached.
func (c Completeness) AnyLocal() bool {
	return c.Local > 0
}

// Inputs bundles everything Evaluate looks at.
type Inputs struct {
	Online       bool
	Paired       bool
	Completeness Completeness
}

// Evaluate maps inputs to a state. It is pure.
func Evaluate(in Inputs) State {
	c := in.Completeness
	switch {
	case !in.Paired && !in.Online:
		return UnpairedOffline
	case !in.Paired:
		return UnpairedOnline
	case !c.Assigned && in.Online:
		return PairedNoAssignment
	case !c.Assigned:
		return PairedOfflineNoCache
	case in.Online && !c.AnyLocal():
		return PairedPreparing
	case in.Online && c.Missing() > 0:
		return PairedPartial
	case in.Online:
		return PairedReady
	case c.AnyLocal():
		return PairedOfflineReady
	default:
		return PairedOfflineNoCache
	}
}

// Reader is the catalog surface the evaluator reads.
type Reader interface {
	Device(ctx context.Context) (catalog.Device, error)
	Entries(ctx context.Context, playlistID string) ([]catalog.Entry, error)
}

// ComputeCompleteness counts the distinct assets of the given playlists and
// how many of them have a present file of the declared size.
func ComputeCompleteness(ctx context.Context, reader Reader, playlistIDs []string) (Completeness, error) {
	c := Completeness{Assigned: len(playlistIDs) > 0}
	seen := make(map[string]struct{})
	for _, id := range playlistIDs {
		entries, err := reader.Entries(ctx, id)
		if err != nil {
			return c, fmt.Errorf("read playlist %s: %w", id, err)
		}
		for _, entry := range entries {
			if _, dup := seen[entry.Asset.ID]; dup {
				continue
			}
			seen[entry.Asset.ID] = struct{}{}
			c.Required++
			if ok, _ := assetstore.CheckLocal(entry.Asset); ok {
				c.Local++
			}
		}
	}
	return c, nil
}

// Assess gathers inputs from the catalog and the applied layout, then
// evaluates them. A device record means the device is paired.
func Assess(ctx context.Context, reader Reader, applied layout.Layout, online bool) (State, Inputs, error) {
	in := Inputs{Online: online}
	_, err := reader.Device(ctx)
	switch {
	case err == nil:
		in.Paired = true
	case errors.Is(err, catalog.ErrNotFound):
	default:
		return Evaluate(in), in, fmt.Errorf("read device: %w", err)
	}
	if in.Paired {
		completeness, err := ComputeCompleteness(ctx, reader, applied.AssignedPlaylists())
		if err != nil {
			return Evaluate(in), in, err
		}
		in.Completeness = completeness
	}
	return Evaluate(in), in, nil
}
