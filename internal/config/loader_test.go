// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	configContent := `{
		version: "1.0"
		chat: {
			base_url: "/api/chat"
			origin: "https://chat.example.com"
			persona: "expert"
			show_thinking: false
		}
		reconnect: {
			base_delay: "500ms"
			max_attempts: 3
		}
		storage: {
			backend: "sqlite"
			path: "/tmp/parley.db"
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, "https://chat.example.com", cfg.Chat.Origin)
	assert.Equal(t, "expert", cfg.Chat.Persona)
	assert.False(t, cfg.Chat.ThinkingEnabled())
	assert.Equal(t, "500ms", cfg.Reconnect.BaseDelay)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/parley.db", cfg.Storage.Path)
}

func TestLoader_Load_HJSONFeatures(t *testing.T) {
	// Test HJSON-specific features: comments, unquoted keys, trailing commas
	configContent := `{
		// This is a comment
		version: "1.0"

		# Hash comment
		chat: {
			persona: terse
			origin: "http://localhost:9000",
		}
		sessions: {
			clear_after_days: 30,
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "terse", cfg.Chat.Persona)
	assert.Equal(t, "http://localhost:9000", cfg.Chat.Origin)
	assert.Equal(t, 30, cfg.Sessions.ClearAfterDays)
}

func TestLoader_Load_TOML(t *testing.T) {
	configContent := `
version = "1.0"

[chat]
origin = "https://chat.example.com"
show_thinking = true

[scroll]
save_debounce = "300ms"
auto_scroll = false

[events.history]
max_events = 250
`
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.toml")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0644))

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Chat.Origin)
	assert.True(t, cfg.Chat.ThinkingEnabled())
	assert.Equal(t, "300ms", cfg.Scroll.SaveDebounce)
	assert.False(t, cfg.Scroll.IsAutoScroll())
	assert.Equal(t, 250, cfg.Events.History.MaxEvents)
	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL, "api defaults to the chat origin")
}

func TestLoader_Load_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.toml")
	require.NoError(t, os.WriteFile(path, []byte("[chat\norigin ="), 0644))

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse toml")
}

func TestLoader_Load_Defaults(t *testing.T) {
	configContent := `{
		version: "1.0"
	}`

	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), writeTestConfig(t, configContent))
	require.NoError(t, err)

	// Check defaults are applied
	assert.Equal(t, "/api/chat", cfg.Chat.BaseURL)
	assert.Equal(t, "default", cfg.Chat.Persona)
	assert.True(t, cfg.Chat.ThinkingEnabled())
	assert.Equal(t, "1s", cfg.Reconnect.BaseDelay)
	assert.Equal(t, "30s", cfg.Reconnect.MaxDelay)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "100ms", cfg.Reconnect.StopDelay)
	assert.Equal(t, 50, cfg.Sessions.Max)
	assert.Equal(t, "5s", cfg.Sessions.ConnectTimeout)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.True(t, cfg.Storage.IsWatching())
	assert.Equal(t, "200ms", cfg.Scroll.SaveDebounce)
	assert.True(t, cfg.Scroll.IsAutoScroll())
	assert.Equal(t, 8080, cfg.DevServer.Port)
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, NewValidator().Validate(Default()))
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load(context.Background(), "/nonexistent/path/config.hjson")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoader_Load_InvalidHJSON(t *testing.T) {
	configContent := `{
		version: "1.0"
		invalid json here {{{
	}`

	loader := NewLoader()
	path := writeTestConfig(t, configContent)
	_, err := loader.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestLoader_FindConfig(t *testing.T) {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	defer os.Chdir(originalWd)
	os.Chdir(dir)

	loader := NewLoader()

	// No config file exists
	_, err := loader.FindConfig()
	assert.Error(t, err)

	// TOML is the last candidate
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parley.toml"), []byte(``), 0644))
	path, err := loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "parley.toml")

	// JSON is preferred over TOML
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parley.json"), []byte(`{}`), 0644))
	path, err = loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "parley.json")

	// HJSON is preferred over everything
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parley.hjson"), []byte(`{}`), 0644))
	path, err = loader.FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "parley.hjson")
}

func TestStorageConfig_IsWatching_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      StorageConfig
		expected bool
	}{
		{"file default", StorageConfig{Backend: "file"}, true},
		{"sqlite default", StorageConfig{Backend: "sqlite"}, false},
		{"explicit off", StorageConfig{Backend: "file", Watch: boolPtr(false)}, false},
		{"explicit on", StorageConfig{Backend: "sqlite", Watch: boolPtr(true)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.IsWatching())
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		def      string
		expected string
	}{
		{"500ms", "100ms", "500ms"},
		{"1m", "100ms", "1m"},
		{"", "100ms", "100ms"},
		{"invalid", "100ms", "100ms"},
		{"0", "100ms", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			defDur := mustParseDuration(tt.def)
			result := ParseDuration(tt.input, defDur)
			assert.Equal(t, mustParseDuration(tt.expected), result)
		})
	}
}

// Helper functions

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := writeTestConfig(t, content)
	loader := NewLoader()
	cfg, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	return cfg
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func boolPtr(b bool) *bool {
	return &b
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}
