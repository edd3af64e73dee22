package config

const (
	defaultCacheDir          = "~/.local/share/tapearc/cache"
	defaultBrowseDir         = "~/.local/share/tapearc/browse"
	defaultPSEDir            = "~/.local/share/tapearc/pse"
	defaultLogDir            = "~/.local/share/tapearc/logs"
	defaultRecorderName      = "tapearc"
	defaultMinDiskGiB        = 20
	defaultPageSizeFrames    = int64(45000) // 30 minutes at 25 fps
	defaultCaptureDevice     = "/dev/sdi0"
	defaultIngestFormat      = "D10-50"
	defaultSourceDevice      = "/dev/ttyS0"
	defaultBackupDevice      = "/dev/ttyS1"
	defaultMaxBatchGiB       = 360
	defaultMinBatchGiB       = 300
	defaultMaxFiles          = 99
	defaultNtfyTimeout       = 10
	defaultWatchReadyTimeout = 10
	defaultEventRetryCount   = 10
	defaultEventRetryDelayMS = 500
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			BrowseDir: defaultBrowseDir,
			PSEDir:    defaultPSEDir,
			LogDir:    defaultLogDir,
		},
		Recorder: Recorder{
			Name:           defaultRecorderName,
			MinDiskGiB:     defaultMinDiskGiB,
			PageSizeFrames: defaultPageSizeFrames,
		},
		Capture: Capture{
			Device:        defaultCaptureDevice,
			IngestFormat:  defaultIngestFormat,
			BrowseEnabled: true,
			PSEEnabled:    true,
		},
		VTR: VTR{
			SourceDevice: defaultSourceDevice,
			BackupDevice: defaultBackupDevice,
		},
		Export: Export{
			MaxBatchGiB: defaultMaxBatchGiB,
			MinBatchGiB: defaultMinBatchGiB,
			MaxFiles:    defaultMaxFiles,
		},
		Notify: Notify{
			NtfyRequestTimeout: defaultNtfyTimeout,
		},
		Workflow: Workflow{
			WatchReadyTimeout: defaultWatchReadyTimeout,
			EventRetryCount:   defaultEventRetryCount,
			EventRetryDelayMS: defaultEventRetryDelayMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
