package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.SessionDir == "" {
		return errors.New("paths.session_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	switch c.Engine.Device {
	case "cpu", "cuda", "mps":
	default:
		return fmt.Errorf("engine.device must be one of cpu, cuda, mps (got %q)", c.Engine.Device)
	}
	if c.Engine.StallTimeoutSecs < 0 {
		return errors.New("engine.stall_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateMetadata() error {
	switch c.Metadata.Tool {
	case "auto", "tone", "m4b-tool", "none":
		return nil
	default:
		return fmt.Errorf("metadata.tool must be one of auto, tone, m4b-tool, none (got %q)", c.Metadata.Tool)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
}
