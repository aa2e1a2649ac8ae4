package catalog

import (
	"strconv"
	"strings"
	"time"
)

// DefaultDurationSec is the image dwell used when the server omits durationSec.
const DefaultDurationSec = 10

// Asset is one media file referenced by playlists.
type Asset struct {
	ID        string
	MediaType string
	RemoteURL string
	Title     string
	// LocalPath is empty until the download pipeline materializes the file.
	LocalPath string
	// SizeBytes is the server-declared size; zero means unknown.
	SizeBytes    int64
	Hash         string
	DownloadedAt *time.Time
	UpdatedAt    time.Time
}

// HasDeclaredSize reports whether the server declared a size for the asset.
func (a Asset) HasDeclaredSize() bool {
	return a.SizeBytes > 0
}

// IsVideo reports whether the asset should be played through a video decoder.
func (a Asset) IsVideo() bool {
	if strings.Contains(strings.ToLower(a.MediaType), "video") {
		return true
	}
	path := strings.ToLower(a.LocalPath)
	if path == "" {
		path = strings.ToLower(a.RemoteURL)
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}
	for _, ext := range []string{".mp4", ".webm", ".m4v", ".mov", ".mkv"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Playlist is a named, ordered list of items.
type Playlist struct {
	ID        string
	Name      string
	ItemCount int
	UpdatedAt time.Time
}

// PlaylistItem binds an asset to a position in a playlist.
type PlaylistItem struct {
	ID          string
	PlaylistID  string
	AssetID     string
	OrderIndex  int
	DurationSec int
}

// Entry is a playlist item joined with its asset.
type Entry struct {
	Item  PlaylistItem
	Asset Asset
}

// Device is the paired device record.
type Device struct {
	ID         string
	ScreenID   string
	ScreenName string
	Width      int
	Height     int
	PairedAt   *time.Time
	UpdatedAt  time.Time
}

// PlayEventKind distinguishes run boundaries from periodic samples.
type PlayEventKind string

const (
	PlayEventStart  PlayEventKind = "start"
	PlayEventSample PlayEventKind = "sample"
	PlayEventEnd    PlayEventKind = "end"
)

// PlayEvent records one analytics sample for a playback run.
type PlayEvent struct {
	ID             int64
	RunID          string
	Kind           PlayEventKind
	Tick           int64
	RegionID       string
	PlaylistID     string
	AssetID        string
	MediaType      string
	AttributesJSON string
	RecordedAt     time.Time
}

// Stats summarizes catalog contents.
type Stats struct {
	Devices         int
	Playlists       int
	Items           int
	Assets          int
	LocalAssets     int
	DeclaredBytes   int64
	DownloadedBytes int64
	PlayEvents      int
}

// DatabaseHealth describes the catalog database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	Error            string
}

// ItemID derives the stable playlist item key.
func ItemID(playlistID, assetID string, index int) string {
	return playlistID + ":" + assetID + ":" + strconv.Itoa(index)
}
