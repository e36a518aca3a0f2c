package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// priority order, exactly as the teacher's koanf.go does for its own
// config.yaml (first file found wins).
var DefaultConfigPaths = []string{
	"bankmirror.yaml",
	"bankmirror.yml",
	"/etc/bankmirror/bankmirror.yaml",
}

// ConfigPathEnvVar overrides the search above with an explicit path.
const ConfigPathEnvVar = "BANKMIRROR_CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Providers: nil,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config using Koanf's layered sources, in the teacher's
// order: defaults, then an optional YAML file, then environment variables
// (highest priority), then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("BANKMIRROR_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applySyncIntervalDefault(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// applySyncIntervalDefault fills in a provider's SyncInterval when the
// config omits it; koanf's zero-value unmarshal can't distinguish "file
// said 0" from "file said nothing" for a scalar like this, so the default
// is applied by hand after unmarshaling, same as the teacher does for the
// handful of fields its structs.Provider layering can't express (see
// koanf.go's processSliceFields doing similar post-processing).
func applySyncIntervalDefault(cfg *Config) {
	for i := range cfg.Providers {
		if cfg.Providers[i].SyncInterval == 0 {
			cfg.Providers[i].SyncInterval = 15 * time.Minute
		}
		if cfg.Providers[i].MonthStrategy == "" {
			cfg.Providers[i].MonthStrategy = MonthStrategyPerMonth
		}
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc only recognizes BANKMIRROR_LOG_LEVEL/BANKMIRROR_LOG_FORMAT
// as top-level overrides; per-provider fields come from the config file,
// since there is no fixed set of provider names to build an env mapping
// table for (unlike the teacher's single-tenant Config).
func envTransformFunc(key string) string {
	switch key {
	case "BANKMIRROR_LOG_LEVEL":
		return "logging.level"
	case "BANKMIRROR_LOG_FORMAT":
		return "logging.format"
	default:
		return ""
	}
}
