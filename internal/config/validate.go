package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"server.request_timeout":        c.Server.RequestTimeout,
		"sync.poll_interval":            c.Sync.PollInterval,
		"sync.download_workers":         c.Sync.DownloadWorkers,
		"sync.probe_interval":           c.Sync.ProbeInterval,
		"playback.max_video_sessions":   c.Playback.MaxVideoSessions,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateAnalytics(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.ConfigFile != "" {
		return nil
	}
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got %q", c.Server.BaseURL)
	}
	if parsed.Host == "" {
		return errors.New("server.base_url must include a host")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.EMAAlpha <= 0 || c.Download.EMAAlpha > 1 {
		return errors.New("download.ema_alpha must be in (0, 1]")
	}
	if c.Download.MinFreeMiB < 0 {
		return errors.New("download.min_free_mib must be >= 0")
	}
	return nil
}

func (c *Config) validateAnalytics() error {
	if !c.Analytics.Enabled {
		return nil
	}
	if c.Analytics.TickIntervalSeconds <= 0 {
		return errors.New("analytics.tick_interval_seconds must be positive when analytics.enabled is true")
	}
	if c.Analytics.RetentionDays < 0 {
		return errors.New("analytics.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format must be console, json or auto, got %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	for component, level := range c.Logging.ComponentLevels {
		if !validLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: unknown level %q", component, level)
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
