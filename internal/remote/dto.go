package remote

import (
	"strings"

	"signage/internal/layout"
)

// Config is the device configuration document.
type Config struct {
	Paired    bool          `json:"paired" yaml:"paired"`
	Screen    *Screen       `json:"screen,omitempty" yaml:"screen,omitempty"`
	Layout    layout.Layout `json:"layout" yaml:"layout"`
	Playlists []Playlist    `json:"playlists" yaml:"playlists"`
	Version   string        `json:"version,omitempty" yaml:"version,omitempty"`
}

// Screen is the server's record of the physical display.
type Screen struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Resolution Resolution `json:"resolution" yaml:"resolution"`
}

// Resolution is a pixel size.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Playlist is an ordered list of items.
type Playlist struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Items []Item `json:"items" yaml:"items"`
}

// Item is one playlist position.
type Item struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Asset       Asset  `json:"asset" yaml:"asset"`
	DurationSec *int   `json:"durationSec,omitempty" yaml:"durationSec,omitempty"`
}

// Asset describes a media file. URL is usually a short-lived signed link.
type Asset struct {
	ID        string `json:"id" yaml:"id"`
	URL       string `json:"url" yaml:"url"`
	Title     string `json:"title" yaml:"title"`
	MediaType string `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
	Bytes     *int64 `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Hash      string `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// IsPaired reports whether the document describes a paired device. A paired
// flag without a screen record is treated as unpaired.
func (c Config) IsPaired() bool {
	return c.Paired && c.Screen != nil
}

// ReferencedPlaylists returns the ids of playlists carried by the document in
// document order.
func (c Config) ReferencedPlaylists() []string {
	ids := make([]string, 0, len(c.Playlists))
	for _, p := range c.Playlists {
		ids = append(ids, p.ID)
	}
	return ids
}

// Duration returns the declared dwell, or fallback when absent or not positive.
func (i Item) Duration(fallback int) int {
	if i.DurationSec == nil || *i.DurationSec <= 0 {
		return fallback
	}
	return *i.DurationSec
}

// Size returns the declared byte size, or zero when unknown.
func (a Asset) Size() int64 {
	if a.Bytes == nil || *a.Bytes < 0 {
		return 0
	}
	return *a.Bytes
}

func (c *Config) normalize() {
	for pi := range c.Playlists {
		c.Playlists[pi].ID = strings.TrimSpace(c.Playlists[pi].ID)
		for ii := range c.Playlists[pi].Items {
			asset := &c.Playlists[pi].Items[ii].Asset
			asset.ID = strings.TrimSpace(asset.ID)
			asset.Hash = strings.ToLower(strings.TrimSpace(asset.Hash))
		}
	}
	for ri := range c.Layout.Regions {
		c.Layout.Regions[ri].PlaylistID = strings.TrimSpace(c.Layout.Regions[ri].PlaylistID)
	}
}
