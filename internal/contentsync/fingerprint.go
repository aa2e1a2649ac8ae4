package contentsync

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"signage/internal/layout"
	"signage/internal/remote"
)

// Fingerprint hashes the identity-relevant fields of a configuration
// document. Asset URLs are signed and rotate on every fetch, so they are left
// out; strings are NFC-normalized so equivalent encodings compare equal.
func Fingerprint(cfg remote.Config) string {
	h := sha1.New()
	w := fingerprintWriter{h: h}

	w.field("paired", strconv.FormatBool(cfg.IsPaired()))
	if cfg.Screen != nil {
		w.field("screen.id", cfg.Screen.ID)
		w.field("screen.name", cfg.Screen.Name)
		w.int("screen.width", cfg.Screen.Resolution.Width)
		w.int("screen.height", cfg.Screen.Resolution.Height)
	}
	w.int("design.width", cfg.Layout.Design.Width)
	w.int("design.height", cfg.Layout.Design.Height)
	w.field("design.bg", cfg.Layout.Design.BgColor)
	for _, region := range cfg.Layout.Regions {
		w.region(region)
	}
	for _, playlist := range cfg.Playlists {
		w.field("playlist.id", playlist.ID)
		w.field("playlist.name", playlist.Name)
		for idx, item := range playlist.Items {
			w.int("item.order", idx)
			w.field("item.asset", item.Asset.ID)
			w.field("item.media_type", item.Asset.MediaType)
			w.field("item.title", item.Asset.Title)
			w.field("item.bytes", strconv.FormatInt(item.Asset.Size(), 10))
			w.field("item.hash", item.Asset.Hash)
			w.int("item.duration", item.Duration(0))
		}
	}
	w.field("version", cfg.Version)
	return hex.EncodeToString(h.Sum(nil))
}

type fingerprintWriter struct {
	h hash.Hash
}

// field writes a length-prefixed key/value pair so adjacent values cannot
// run together.
func (w fingerprintWriter) field(key, value string) {
	value = norm.NFC.String(value)
	fmt.Fprintf(w.h, "%s=%d:%s;", key, len(value), value)
}

func (w fingerprintWriter) int(key string, value int) {
	w.field(key, strconv.Itoa(value))
}

func (w fingerprintWriter) region(r layout.Region) {
	fit := r.Fit
	if fit == "" {
		fit = layout.DefaultFit
	}
	w.field("region.id", r.ID)
	w.int("region.x", r.X)
	w.int("region.y", r.Y)
	w.int("region.w", r.W)
	w.int("region.h", r.H)
	w.int("region.z", r.Z)
	w.field("region.fit", fit)
	w.field("region.playlist", r.PlaylistID)
}
