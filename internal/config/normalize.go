package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeProgress()
	c.normalizeMetadata()
	c.normalizeStaging()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SessionDir, err = expandPath(c.Paths.SessionDir); err != nil {
		return fmt.Errorf("paths.session_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	projects := make([]string, 0, len(c.Paths.ProjectDirs))
	for _, dir := range c.Paths.ProjectDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("paths.project_dirs: %w", err)
		}
		projects = append(projects, expanded)
	}
	c.Paths.ProjectDirs = projects
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	c.Engine.Device = strings.TrimSpace(c.Engine.Device)
	if c.Engine.Device == "" {
		c.Engine.Device = defaultDevice
	}
	c.Engine.TTSEngine = strings.TrimSpace(c.Engine.TTSEngine)
	if c.Engine.TTSEngine == "" {
		c.Engine.TTSEngine = defaultTTSEngine
	}
	c.Engine.WSLDistro = strings.TrimSpace(c.Engine.WSLDistro)
	if c.Engine.MaxConcurrentJobs <= 0 {
		c.Engine.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
}

func (c *Config) normalizeProgress() {
	if c.Progress.StdoutThrottleMillis <= 0 {
		c.Progress.StdoutThrottleMillis = defaultStdoutThrottleMillis
	}
	if c.Progress.StderrThrottleMillis <= 0 {
		c.Progress.StderrThrottleMillis = defaultStderrThrottleMillis
	}
	if c.Progress.HeartbeatSeconds <= 0 {
		c.Progress.HeartbeatSeconds = defaultHeartbeatSeconds
	}
}

func (c *Config) normalizeMetadata() {
	c.Metadata.Tool = strings.ToLower(strings.TrimSpace(c.Metadata.Tool))
	if c.Metadata.Tool == "" {
		c.Metadata.Tool = defaultMetadataTool
	}
	if c.Metadata.TimeoutSeconds <= 0 {
		c.Metadata.TimeoutSeconds = defaultMetadataTimeoutSecs
	}
}

func (c *Config) normalizeStaging() {
	if c.Staging.StaleMaxAgeHours <= 0 {
		c.Staging.StaleMaxAgeHours = defaultStaleMaxAgeHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
