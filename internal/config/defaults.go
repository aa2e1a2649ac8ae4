package config

const (
	defaultConfigPath             = "~/.config/signage/config.toml"
	defaultDataDir                = "~/.local/share/signage"
	defaultAssetsDir              = "~/.local/share/signage/assets"
	defaultLogDir                 = "~/.local/share/signage/logs"
	defaultSocketPath             = "~/.local/share/signage/signaged.sock"
	defaultServerURL              = "http://127.0.0.1:8080"
	defaultRequestTimeout         = 20
	defaultPollInterval           = 300
	defaultDownloadWorkers        = 2
	defaultProbeInterval          = 30
	defaultProgressIntervalMillis = 200
	defaultEMAAlpha               = 0.2
	defaultMinFreeMiB             = 256
	defaultMaxVideoSessions       = 1
	defaultMissingItemPauseMS     = 250
	defaultDurationSec            = 10
	defaultAwaitContentPauseSec   = 5
	defaultAnalyticsTickSeconds   = 10
	defaultAnalyticsRetentionDays = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			AssetsDir:  defaultAssetsDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Server: Server{
			BaseURL:        defaultServerURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Sync: Sync{
			PollInterval:    defaultPollInterval,
			DownloadWorkers: defaultDownloadWorkers,
			ProbeInterval:   defaultProbeInterval,
		},
		Download: Download{
			ProgressIntervalMillis: defaultProgressIntervalMillis,
			EMAAlpha:               defaultEMAAlpha,
			MinFreeMiB:             defaultMinFreeMiB,
			VerifyHash:             true,
		},
		Playback: Playback{
			MaxVideoSessions:     defaultMaxVideoSessions,
			MissingItemPauseMS:   defaultMissingItemPauseMS,
			DefaultDurationSec:   defaultDurationSec,
			AwaitContentPauseSec: defaultAwaitContentPauseSec,
		},
		Analytics: Analytics{
			Enabled:             true,
			TickIntervalSeconds: defaultAnalyticsTickSeconds,
			RetentionDays:       defaultAnalyticsRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			StateChanges:   true,
			SyncErrors:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
