package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
// used by Load.
const EnvConfigPath = "WIREFRAME_CONFIG"

// DefaultPath is the config file Load reads when EnvConfigPath is unset.
const DefaultPath = "wireframe.yaml"

// Load builds the configuration from the file named by WIREFRAME_CONFIG, or
// wireframe.yaml in the working directory when present, falling back to
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg := Default()
			if err := cfg.applyEnv(nil); err != nil {
				return nil, err
			}
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		path = DefaultPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads a YAML config file on top of the defaults, then applies
// environment overrides and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.applyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields tagged with `env`. A nil environ reads the
// process environment.
func (c *Config) applyEnv(environ map[string]string) error {
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}
