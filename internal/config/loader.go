package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAILTRIAGE_"

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads YAML from path, then applies environment overrides and defaults.
//
// Precedence (highest first): MAILTRIAGE_* environment variables, the YAML
// file, built-in defaults. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	return load(path, false)
}

// LoadStrict is LoadFrom but fails with *ConfigNotFoundError when the file is missing.
func LoadStrict(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, strict bool) (*Config, error) {
	k := koanf.New(".")

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, &InvalidConfigError{
				Path:    path,
				Message: fmt.Sprintf("YAML parse error: %v", err),
				Hint:    "Restore from .bak file if available",
			}
		}
	case errors.Is(err, os.ErrNotExist):
		if strict {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'mailtriage config init' to create configuration",
			}
		}
	case os.IsPermission(err):
		return nil, &PermissionError{
			Path:    path,
			Op:      "read",
			Fix:     getReadPermissionFix(path),
			Details: getPermissionDetails(path),
		}
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &InvalidConfigError{Path: path, Message: err.Error()}
	}

	applyDefaults(&cfg)
	cfg.Storage.DBPath = ExpandHome(cfg.Storage.DBPath)
	cfg.Search.IndexPath = ExpandHome(cfg.Search.IndexPath)
	cfg.Metrics.Textfile = ExpandHome(cfg.Metrics.Textfile)
	cfg.Drafter.Command = ExpandHome(cfg.Drafter.Command)

	if err := cfg.Validate(); err != nil {
		var ice *InvalidConfigError
		if errors.As(err, &ice) {
			ice.Path = path
		}
		return nil, err
	}

	return &cfg, nil
}

// envKey maps MAILTRIAGE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s > Properties > Security > Edit permissions", path)
	default:
		return fmt.Sprintf("Run: chmod 600 %s", path)
	}
}

// getPermissionDetails reports the current file mode.
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
