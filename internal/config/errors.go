package config

import "fmt"

// PermissionError represents a permission-related config error
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string // Suggested fix command
	Details string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		msg += e.Details + "\n"
	}
	msg += "Fix: " + e.Fix
	return msg
}

// ConfigNotFoundError represents missing config file
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\nHint: %s", e.Path, e.Hint)
}

// InvalidConfigError represents malformed config
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
}

func (e *InvalidConfigError) Error() string {
	msg := "invalid config"
	if e.Path != "" {
		msg += ": " + e.Path
	}
	msg += "\n"
	if e.Message != "" {
		msg += e.Message + "\n"
	}
	if e.Hint != "" {
		msg += "Hint: " + e.Hint
	}
	return msg
}
