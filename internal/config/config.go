/*
Package config handles loading and saving mailtriage configuration.

Configuration is stored as YAML in ~/.mailtriage/config.yaml. Every key can
be overridden with a MAILTRIAGE_ environment variable, where the first
underscore separates the section from the field:

	MAILTRIAGE_STORAGE_DB_PATH   -> storage.db_path
	MAILTRIAGE_TRIAGE_PACE       -> triage.pace
	MAILTRIAGE_LOGGING_LEVEL     -> logging.level

Schema:

	storage:
	  db_path: ~/.mailtriage/triage.db
	search:
	  index_path: ""            # empty keeps the reply index in memory
	triage:
	  pace: 1.5s
	  signature: "Best,\nDerek"
	  turnaround: "1-2 business days"
	  defaults:
	    availability: "Tuesday or Thursday afternoon"
	learning:
	  async: false
	  queue_size: 256
	drafter:
	  command: ""               # e.g. ~/bin/llm-drafter; empty uses templates only
	  args: []
	  timeout: 60s
	logging:
	  level: info
	  format: console
	metrics:
	  textfile: ""
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the root configuration structure.
type Config struct {
	Storage  StorageConfig  `koanf:"storage" yaml:"storage"`
	Search   SearchConfig   `koanf:"search" yaml:"search"`
	Triage   TriageConfig   `koanf:"triage" yaml:"triage"`
	Learning LearningConfig `koanf:"learning" yaml:"learning"`
	Drafter  DrafterConfig  `koanf:"drafter" yaml:"drafter"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DBPath string `koanf:"db_path" yaml:"db_path"`
}

// SearchConfig locates the reply-history index.
type SearchConfig struct {
	// IndexPath is the on-disk Bleve index; empty means in-memory.
	IndexPath string `koanf:"index_path" yaml:"index_path"`
}

// TriageConfig controls drafting.
type TriageConfig struct {
	// Pace is the minimum delay between messages in a batch, as a Go duration.
	Pace string `koanf:"pace" yaml:"pace"`

	// Signature fills the {signature} template variable.
	Signature string `koanf:"signature" yaml:"signature"`

	// Turnaround fills the {turnaround} template variable.
	Turnaround string `koanf:"turnaround" yaml:"turnaround"`

	// Defaults fills any other template variable by name.
	Defaults map[string]string `koanf:"defaults" yaml:"defaults,omitempty"`
}

// PaceInterval parses Pace, falling back to the default when unset.
func (t TriageConfig) PaceInterval() time.Duration {
	d, err := time.ParseDuration(t.Pace)
	if err != nil || d < 0 {
		return DefaultPace
	}
	return d
}

// LearningConfig controls the learning loop.
type LearningConfig struct {
	// Async runs advisory learning steps on a background worker.
	Async     bool `koanf:"async" yaml:"async"`
	QueueSize int  `koanf:"queue_size" yaml:"queue_size"`
}

// DrafterConfig names an external program that composes reply bodies.
// With no command, drafts are the filled templates.
type DrafterConfig struct {
	Command string            `koanf:"command" yaml:"command"`
	Args    []string          `koanf:"args" yaml:"args,omitempty"`
	Env     map[string]string `koanf:"env" yaml:"env,omitempty"`

	// Timeout bounds one compose request, as a Go duration.
	Timeout string `koanf:"timeout" yaml:"timeout"`
}

// TimeoutDuration parses Timeout; zero means the composer default.
func (d DrafterConfig) TimeoutDuration() time.Duration {
	t, err := time.ParseDuration(d.Timeout)
	if err != nil || t < 0 {
		return 0
	}
	return t
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	// Textfile, when set, receives a Prometheus text dump after each command.
	Textfile string `koanf:"textfile" yaml:"textfile"`
}

// Defaults.
const (
	DefaultPace       = 1500 * time.Millisecond
	DefaultQueueSize  = 256
	DefaultTurnaround = "1-2 business days"
	DefaultSignature  = "Best regards"
)

// NewConfig creates a configuration with defaults applied.
func NewConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		if dir, err := DefaultDir(); err == nil {
			cfg.Storage.DBPath = filepath.Join(dir, "triage.db")
		}
	}
	if cfg.Triage.Pace == "" {
		cfg.Triage.Pace = DefaultPace.String()
	}
	if cfg.Triage.Signature == "" {
		cfg.Triage.Signature = DefaultSignature
	}
	if cfg.Triage.Turnaround == "" {
		cfg.Triage.Turnaround = DefaultTurnaround
	}
	if cfg.Learning.QueueSize == 0 {
		cfg.Learning.QueueSize = DefaultQueueSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// TemplateValues merges the configured template variables, with Signature
// and Turnaround overriding same-named entries in Defaults.
func (c *Config) TemplateValues() map[string]string {
	values := make(map[string]string, len(c.Triage.Defaults)+2)
	for k, v := range c.Triage.Defaults {
		values[k] = v
	}
	if c.Triage.Signature != "" {
		values["signature"] = c.Triage.Signature
	}
	if c.Triage.Turnaround != "" {
		values["turnaround"] = c.Triage.Turnaround
	}
	return values
}

// DefaultDir returns ~/.mailtriage.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mailtriage"), nil
}

// GetDefaultConfigPath returns the path to ~/.mailtriage/config.yaml.
func GetDefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
