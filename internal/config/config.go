package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"signage/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	AssetsDir  string `toml:"assets_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Server describes the content server the device pulls its configuration from.
type Server struct {
	BaseURL        string `toml:"base_url"`
	DeviceID       string `toml:"device_id"`
	RequestTimeout int    `toml:"request_timeout"`
	// ConfigFile replaces the HTTP source with a local YAML or JSON document.
	ConfigFile string `toml:"config_file"`
}

// Sync controls how often the device reconciles with the server.
type Sync struct {
	PollInterval    int `toml:"poll_interval"`
	DownloadWorkers int `toml:"download_workers"`
	ProbeInterval   int `toml:"probe_interval"`
}

// Download tunes the asset download pipeline.
type Download struct {
	ProgressIntervalMillis int     `toml:"progress_interval_ms"`
	EMAAlpha               float64 `toml:"ema_alpha"`
	MinFreeMiB             int     `toml:"min_free_mib"`
	VerifyHash             bool    `toml:"verify_hash"`
}

// Playback contains region scheduler settings.
type Playback struct {
	MaxVideoSessions     int `toml:"max_video_sessions"`
	MissingItemPauseMS   int `toml:"missing_item_pause_ms"`
	DefaultDurationSec   int `toml:"default_duration_sec"`
	AwaitContentPauseSec int `toml:"await_content_pause_sec"`
}

// Analytics controls play-event sampling.
type Analytics struct {
	Enabled             bool `toml:"enabled"`
	TickIntervalSeconds int  `toml:"tick_interval_seconds"`
	RetentionDays       int  `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	StateChanges   bool   `toml:"state_changes"`
	SyncErrors     bool   `toml:"sync_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for the signage device.
//
// Configuration sections by subsystem:
//   - Paths: data, asset cache, logs and control socket
//   - Server: content server endpoint and device identity
//   - Sync: polling, download worker pool and connectivity probing
//   - Download: progress cadence, rate smoothing and disk guards
//   - Playback: video decoder budget and item timing
//   - Analytics: play-event sampling interval
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Sync          Sync          `toml:"sync"`
	Download      Download      `toml:"download"`
	Playback      Playback      `toml:"playback"`
	Analytics     Analytics     `toml:"analytics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("signage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AssetsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create socket directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogPath returns the sqlite catalog location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// PrefsPath returns the bbolt preferences file location.
func (c *Config) PrefsPath() string {
	return filepath.Join(c.Paths.DataDir, "prefs.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "signaged.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "signaged.pid")
}

// RequestTimeout returns the server request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// PollInterval returns the periodic sync interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

// ProbeInterval returns the connectivity probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Sync.ProbeInterval) * time.Second
}

// ProgressInterval returns the minimum spacing between download progress snapshots.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Download.ProgressIntervalMillis) * time.Millisecond
}

// MissingItemPause returns how long a region waits before skipping an absent or
// failed item.
func (c *Config) MissingItemPause() time.Duration {
	return time.Duration(c.Playback.MissingItemPauseMS) * time.Millisecond
}

// AwaitContentPause returns how often a region with nothing playable rescans its playlist.
func (c *Config) AwaitContentPause() time.Duration {
	return time.Duration(c.Playback.AwaitContentPauseSec) * time.Second
}

// AnalyticsTick returns the analytics sampling interval.
func (c *Config) AnalyticsTick() time.Duration {
	return time.Duration(c.Analytics.TickIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
