package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the acq-cli settings. Values from the configuration
// file are overridden by command-line flags.
type Config struct {
	ConfigFile  string `yaml:"-"`
	LogLevel    string `yaml:"log_level"`
	CapturePath string `yaml:"capture_path"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "warn",
		CapturePath: "acq-cli.db",
	}
}

// Load merges the YAML file at path into the config.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
