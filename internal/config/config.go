// Package config loads the client configuration from
// ~/.placer/config.yml, with environment variable overrides for the
// values people want to inject from scripts.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is everything the client needs to talk to the placesharer
// backend. The token is the opaque bearer credential from logging in
// on the web app; the client never inspects it.
type Config struct {
	ServerURL string `yaml:"server_url" validate:"required,url"`
	Token     string `yaml:"token" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

// Dir returns the config directory (~/.placer).
func Dir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".placer")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yml")
}

// Load reads the config file at path and applies PLACER_SERVER and
// PLACER_TOKEN overrides. A missing file is fine as long as the
// overrides supply the required values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if server := os.Getenv("PLACER_SERVER"); server != "" {
		cfg.ServerURL = server
	}
	if token := os.Getenv("PLACER_TOKEN"); token != "" {
		cfg.Token = token
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
