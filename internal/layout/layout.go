// Package layout describes the display canvas and the regions drawn on it.
package layout

import "sort"

// DefaultFit is the fit mode used when the server omits one.
const DefaultFit = "cover"

// Design is the design canvas the region geometry is expressed in.
type Design struct {
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	BgColor string `json:"bgColor,omitempty" yaml:"bgColor,omitempty"`
}

// Region is a fixed rectangle bound to zero or one playlist.
type Region struct {
	ID         string `json:"id" yaml:"id"`
	X          int    `json:"x" yaml:"x"`
	Y          int    `json:"y" yaml:"y"`
	W          int    `json:"w" yaml:"w"`
	H          int    `json:"h" yaml:"h"`
	Z          int    `json:"z,omitempty" yaml:"z,omitempty"`
	Fit        string `json:"fit,omitempty" yaml:"fit,omitempty"`
	PlaylistID string `json:"playlistId,omitempty" yaml:"playlistId,omitempty"`
}

// Idle reports whether the region has no playlist.
func (r Region) Idle() bool {
	return r.PlaylistID == ""
}

// Layout is the design canvas plus its regions.
type Layout struct {
	Design  Design   `json:"design" yaml:"design"`
	Regions []Region `json:"regions" yaml:"regions"`
}

// Ordered returns the regions sorted by z-order, then id, so lower layers
// start first.
func (l Layout) Ordered() []Region {
	out := append([]Region(nil), l.Regions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		if out[i].Fit == "" {
			out[i].Fit = DefaultFit
		}
	}
	return out
}

// AssignedPlaylists returns the distinct playlist ids bound to regions, in
// region order.
func (l Layout) AssignedPlaylists() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, region := range l.Ordered() {
		if region.Idle() {
			continue
		}
		if _, ok := seen[region.PlaylistID]; ok {
			continue
		}
		seen[region.PlaylistID] = struct{}{}
		ids = append(ids, region.PlaylistID)
	}
	return ids
}
