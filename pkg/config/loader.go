package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables providing config overrides.
const (
	EnvServerHost   = "DRAFTFLOW_HOST"
	EnvServerPort   = "DRAFTFLOW_PORT"
	EnvDatabasePath = "DRAFTFLOW_DB"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Load reads configuration from a YAML file, applies defaults for unset
// fields, applies environment overrides, and validates the result. A missing
// file is not an error; defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Fall through to defaults.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = envOr(EnvServerHost, cfg.Server.Host)
	if portStr := os.Getenv(EnvServerPort); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
		}
	}
	cfg.Storage.DatabasePath = envOr(EnvDatabasePath, cfg.Storage.DatabasePath)
	cfg.Agents.OllamaHost = envOr(EnvOllamaHost, cfg.Agents.OllamaHost)
}
