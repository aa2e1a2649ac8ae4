package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeDownload()
	c.normalizePlayback()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetsDir) == "" {
		c.Paths.AssetsDir = defaultAssetsDir
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return fmt.Errorf("paths.assets_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() error {
	if value, ok := os.LookupEnv("SIGNAGE_SERVER_URL"); ok && strings.TrimSpace(value) != "" {
		c.Server.BaseURL = value
	}
	if value, ok := os.LookupEnv("SIGNAGE_DEVICE_ID"); ok && strings.TrimSpace(value) != "" {
		c.Server.DeviceID = value
	}
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaultServerURL
	}
	c.Server.DeviceID = strings.TrimSpace(c.Server.DeviceID)
	if strings.TrimSpace(c.Server.ConfigFile) != "" {
		var err error
		if c.Server.ConfigFile, err = expandPath(strings.TrimSpace(c.Server.ConfigFile)); err != nil {
			return fmt.Errorf("server.config_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeDownload() {
	if c.Download.ProgressIntervalMillis <= 0 {
		c.Download.ProgressIntervalMillis = defaultProgressIntervalMillis
	}
	if c.Download.EMAAlpha == 0 {
		c.Download.EMAAlpha = defaultEMAAlpha
	}
}

func (c *Config) normalizePlayback() {
	if c.Playback.MissingItemPauseMS <= 0 {
		c.Playback.MissingItemPauseMS = defaultMissingItemPauseMS
	}
	if c.Playback.DefaultDurationSec <= 0 {
		c.Playback.DefaultDurationSec = defaultDurationSec
	}
	if c.Playback.AwaitContentPauseSec <= 0 {
		c.Playback.AwaitContentPauseSec = defaultAwaitContentPauseSec
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level

	if len(c.Logging.ComponentLevels) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentLevels))
		for component, lvl := range c.Logging.ComponentLevels {
			key := strings.ToLower(strings.TrimSpace(component))
			value := strings.ToLower(strings.TrimSpace(lvl))
			if key == "" || value == "" {
				continue
			}
			normalized[key] = value
		}
		c.Logging.ComponentLevels = normalized
	}
}
