// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON and TOML configuration loading.
package config

import (
	"time"
)

// Config is the root configuration structure for Parley.
type Config struct {
	Version   string          `json:"version"`
	Chat      ChatConfig      `json:"chat"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Sessions  SessionsConfig  `json:"sessions"`
	Storage   StorageConfig   `json:"storage"`
	Scroll    ScrollConfig    `json:"scroll"`
	API       APIConfig       `json:"api"`
	Events    EventsConfig    `json:"events"`
	DevServer DevServerConfig `json:"devserver"`
}

// ChatConfig configures the streaming chat endpoint.
type ChatConfig struct {
	BaseURL      string `json:"base_url"` // Relative paths resolve against origin
	Origin       string `json:"origin"`
	Persona      string `json:"persona"`
	ShowThinking *bool  `json:"show_thinking"`
	PingInterval string `json:"ping_interval"` // "0" disables keepalive pings
}

// ThinkingEnabled returns whether thinking steps are requested.
func (c *ChatConfig) ThinkingEnabled() bool {
	if c.ShowThinking == nil {
		return true
	}
	return *c.ShowThinking
}

// ReconnectConfig configures the reconnect backoff.
type ReconnectConfig struct {
	BaseDelay   string `json:"base_delay"`
	MaxDelay    string `json:"max_delay"`
	MaxAttempts int    `json:"max_attempts"`
	StopDelay   string `json:"stop_delay"` // Wait between stop and reconnect
}

// SessionsConfig configures the session store.
type SessionsConfig struct {
	Max            int    `json:"max"`
	ConnectTimeout string `json:"connect_timeout"`  // How long a new session waits to send its first message
	ClearAfterDays int    `json:"clear_after_days"` // 0 keeps sessions forever
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	Backend  string `json:"backend"` // file, sqlite or memory
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes"`
	Watch    *bool  `json:"watch"` // Reload when another process rewrites the state
}

// IsWatching returns whether external state changes are reloaded.
func (s *StorageConfig) IsWatching() bool {
	if s.Watch == nil {
		return s.Backend == "file"
	}
	return *s.Watch
}

// ScrollConfig configures the scroll-follow controller.
type ScrollConfig struct {
	SaveDebounce string `json:"save_debounce"`
	AutoScroll   *bool  `json:"auto_scroll"`
}

// IsAutoScroll returns whether new messages scroll the viewport.
func (s *ScrollConfig) IsAutoScroll() bool {
	if s.AutoScroll == nil {
		return true
	}
	return *s.AutoScroll
}

// APIConfig configures the REST services used for sharing and metadata.
type APIConfig struct {
	BaseURL string `json:"base_url"` // Defaults to chat.origin
	Timeout string `json:"timeout"`
}

// EventsConfig configures the notification bus.
type EventsConfig struct {
	History EventsHistoryConfig `json:"history"`
}

// EventsHistoryConfig configures event history retention.
type EventsHistoryConfig struct {
	MaxEvents int `json:"max_events"`
}

// DevServerConfig configures the local development backend.
type DevServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	StepDelay string `json:"step_delay"` // Pause between streamed thinking steps
	User      string `json:"user"`       // Reported as the author of shared conversations
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
