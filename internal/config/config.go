// Package config loads the process configuration from an optional YAML
// file with environment overrides. Environment always wins so deployments
// can keep secrets out of the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
}

const (
	envDatabaseURL = "PARTYREG_DATABASE_URL"
	envHTTPAddr    = "PARTYREG_HTTP_ADDR"
	envLogLevel    = "PARTYREG_LOG_LEVEL"
)

// Load reads path (when non-empty and present), applies environment
// overrides and validates the result. A missing file is only an error when
// the caller named one explicitly.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(envDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(envHTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("config: database_url is required (set " + envDatabaseURL + " or the config file)")
	}
	return cfg, nil
}
