// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hjson/hjson-go/v4"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path. Files ending
// in .toml are parsed as TOML, everything else as HJSON.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse to an intermediate map so both formats share the json tags
	var raw map[string]interface{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	} else {
		if err := hjson.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse hjson: %w", err)
		}
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// FindConfig searches for a config file in the current directory.
// It looks for parley.hjson first, then parley.json, then parley.toml.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"parley.hjson",
		"parley.json",
		"parley.toml",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for parley.hjson, parley.json, parley.toml)")
}

// defaultStoragePath returns the per-user directory sessions are kept in.
func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(dir, "parley")
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}

	// Chat defaults
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = "/api/chat"
	}
	if cfg.Chat.Origin == "" {
		cfg.Chat.Origin = "http://127.0.0.1:8080"
	}
	if cfg.Chat.Persona == "" {
		cfg.Chat.Persona = "default"
	}
	if cfg.Chat.PingInterval == "" {
		cfg.Chat.PingInterval = "30s"
	}

	// Reconnect defaults
	if cfg.Reconnect.BaseDelay == "" {
		cfg.Reconnect.BaseDelay = "1s"
	}
	if cfg.Reconnect.MaxDelay == "" {
		cfg.Reconnect.MaxDelay = "30s"
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 5
	}
	if cfg.Reconnect.StopDelay == "" {
		cfg.Reconnect.StopDelay = "100ms"
	}

	// Session defaults
	if cfg.Sessions.Max == 0 {
		cfg.Sessions.Max = 50
	}
	if cfg.Sessions.ConnectTimeout == "" {
		cfg.Sessions.ConnectTimeout = "5s"
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case "sqlite":
			cfg.Storage.Path = filepath.Join(defaultStoragePath(), "parley.db")
		case "file":
			cfg.Storage.Path = defaultStoragePath()
		}
	}
	if cfg.Storage.MaxBytes == 0 {
		cfg.Storage.MaxBytes = 5 << 20
	}

	// Scroll defaults
	if cfg.Scroll.SaveDebounce == "" {
		cfg.Scroll.SaveDebounce = "200ms"
	}

	// API defaults
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = cfg.Chat.Origin
	}
	if cfg.API.Timeout == "" {
		cfg.API.Timeout = "30s"
	}

	// Events defaults
	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 1000
	}

	// Dev server defaults
	if cfg.DevServer.Host == "" {
		cfg.DevServer.Host = "127.0.0.1"
	}
	if cfg.DevServer.Port == 0 {
		cfg.DevServer.Port = 8080
	}
	if cfg.DevServer.StepDelay == "" {
		cfg.DevServer.StepDelay = "150ms"
	}
	if cfg.DevServer.User == "" {
		cfg.DevServer.User = "devserver"
	}
}
