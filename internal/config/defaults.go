package config

const (
	defaultSessionDir           = "~/.local/share/bookforge/tts-sessions"
	defaultOutputDir            = "~/audiobooks"
	defaultLogDir               = "~/.local/share/bookforge/logs"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultDevice               = "cpu"
	defaultTTSEngine            = "kokoro"
	defaultMaxConcurrentJobs    = 2
	defaultStdoutThrottleMillis = 500
	defaultStderrThrottleMillis = 1000
	defaultHeartbeatSeconds     = 5
	defaultMetadataTool         = "auto"
	defaultMetadataTimeoutSecs  = 120
	defaultStaleMaxAgeHours     = 24
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SessionDir: defaultSessionDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Engine: Engine{
			Device:            defaultDevice,
			TTSEngine:         defaultTTSEngine,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
		},
		Progress: Progress{
			StdoutThrottleMillis: defaultStdoutThrottleMillis,
			StderrThrottleMillis: defaultStderrThrottleMillis,
			HeartbeatSeconds:     defaultHeartbeatSeconds,
		},
		Metadata: Metadata{
			Tool:           defaultMetadataTool,
			TimeoutSeconds: defaultMetadataTimeoutSecs,
		},
		Staging: Staging{
			StaleMaxAgeHours: defaultStaleMaxAgeHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
