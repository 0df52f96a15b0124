package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the loaded configuration. It returns an *InvalidConfigError
// naming the first offending key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return invalid("storage.db_path: required")
	}

	if d, err := time.ParseDuration(c.Triage.Pace); err != nil {
		return invalid(fmt.Sprintf("triage.pace: %v", err))
	} else if d < 0 {
		return invalid("triage.pace: must not be negative")
	}

	if c.Learning.QueueSize < 0 {
		return invalid("learning.queue_size: must be >= 0")
	}

	if c.Drafter.Timeout != "" {
		if d, err := time.ParseDuration(c.Drafter.Timeout); err != nil {
			return invalid(fmt.Sprintf("drafter.timeout: %v", err))
		} else if d < 0 {
			return invalid("drafter.timeout: must not be negative")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("logging.level: unknown level %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return invalid(fmt.Sprintf("logging.format: must be json or console, got %q", c.Logging.Format))
	}

	return nil
}

func invalid(msg string) error {
	return &InvalidConfigError{
		Message: msg,
		Hint:    "Run 'mailtriage config show' to inspect the effective configuration",
	}
}
