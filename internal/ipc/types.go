package ipc

import (
	"encoding/json"
	"time"
)

// StartRequest starts daemon services.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon services and asks the process to exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SyncSummary describes the last sync pass.
type SyncSummary struct {
	Outcome          string    `json:"outcome"`
	Error            string    `json:"error,omitempty"`
	At               time.Time `json:"at"`
	DurationMillis   int64     `json:"duration_ms"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Playlists        int       `json:"playlists"`
	Items            int       `json:"items"`
	RemovedPlaylists int       `json:"removed_playlists"`
	RemovedAssets    int       `json:"removed_assets"`
}

// RegionStatus is one region session.
type RegionStatus struct {
	RegionID       string `json:"region_id"`
	PlaylistID     string `json:"playlist_id,omitempty"`
	State          string `json:"state"`
	Generation     uint64 `json:"generation"`
	CurrentAssetID string `json:"current_asset_id,omitempty"`
	VideoPermit    bool   `json:"video_permit"`
}

// DownloadStatus is the last progress snapshot of one playlist.
type DownloadStatus struct {
	PlaylistID      string  `json:"playlist_id"`
	CurrentAssetID  string  `json:"current_asset_id,omitempty"`
	Finished        int     `json:"finished"`
	Total           int     `json:"total"`
	Failed          int     `json:"failed"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	TotalBytes      int64   `json:"total_bytes"`
	RateBytesPerSec float64 `json:"rate_bytes_per_sec"`
	ETASeconds      float64 `json:"eta_seconds"`
	Percent         float64 `json:"percent"`
	Done            bool    `json:"done"`
}

// PlayRun is an open analytics run for one region.
type PlayRun struct {
	RunID      string    `json:"run_id"`
	RegionID   string    `json:"region_id"`
	PlaylistID string    `json:"playlist_id"`
	AssetID    string    `json:"asset_id"`
	MediaType  string    `json:"media_type"`
	StartedAt  time.Time `json:"started_at"`
	LastTick   int64     `json:"last_tick"`
}

// CatalogStats mirrors catalog row counts.
type CatalogStats struct {
	Devices         int   `json:"devices"`
	Playlists       int   `json:"playlists"`
	Items           int   `json:"items"`
	Assets          int   `json:"assets"`
	LocalAssets     int   `json:"local_assets"`
	DeclaredBytes   int64 `json:"declared_bytes"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
	PlayEvents      int   `json:"play_events"`
}

// Problem is a recent warning or error from the daemon log.
type Problem struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	EventType string    `json:"event_type,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running        bool             `json:"running"`
	PID            int              `json:"pid"`
	DeviceID       string           `json:"device_id"`
	Generation     uint64           `json:"generation"`
	State          string           `json:"state"`
	StateMessage   string           `json:"state_message"`
	Playable       bool             `json:"playable"`
	Paired         bool             `json:"paired"`
	Online         bool             `json:"online"`
	OnlineKnown    bool             `json:"online_known"`
	LastProbe      time.Time        `json:"last_probe"`
	RequiredAssets int              `json:"required_assets"`
	LocalAssets    int              `json:"local_assets"`
	LastSync       *SyncSummary     `json:"last_sync,omitempty"`
	Regions        []RegionStatus   `json:"regions"`
	Downloads      []DownloadStatus `json:"downloads"`
	PlayRuns       []PlayRun        `json:"play_runs,omitempty"`
	VideoSessions  int              `json:"video_sessions"`
	VideoCapacity  int              `json:"video_capacity"`
	Catalog        CatalogStats     `json:"catalog"`
	CatalogPath    string           `json:"catalog_path"`
	AssetsDir      string           `json:"assets_dir"`
	LockPath       string           `json:"lock_path"`
	Problems       []Problem        `json:"problems,omitempty"`
}

// SyncNowRequest runs a sync pass.
type SyncNowRequest struct{}

// SyncNowResponse reports the pass outcome.
type SyncNowResponse struct {
	Summary SyncSummary `json:"summary"`
}

// PushRequest injects a server push message by name.
type PushRequest struct {
	Message string `json:"message"`
}

// PushResponse reports whether the message was recognized and delivered.
type PushResponse struct {
	Accepted bool `json:"accepted"`
}

// AttachRequest sets the attribute document of an open play run.
type AttachRequest struct {
	RunID      string          `json:"run_id"`
	Attributes json.RawMessage `json:"attributes"`
}

// AttachResponse reports whether the run accepted the attributes.
type AttachResponse struct {
	Attached bool `json:"attached"`
}

// DatabaseHealthRequest fetches catalog diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse contains catalog diagnostics.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
