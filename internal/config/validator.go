// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateRequired(cfg, errs)
	v.validateChat(cfg, errs)
	v.validateReconnect(cfg, errs)
	v.validateSessions(cfg, errs)
	v.validateStorage(cfg, errs)
	v.validateAPI(cfg, errs)
	v.validateDevServer(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateRequired(cfg *Config, errs *ValidationError) {
	if cfg.Version == "" {
		errs.Add("version", "is required")
	}
}

func (v *Validator) validateChat(cfg *Config, errs *ValidationError) {
	if cfg.Chat.Origin != "" {
		u, err := url.Parse(cfg.Chat.Origin)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs.Add("chat.origin", "must be an absolute http or https URL")
		}
	}
	if cfg.Chat.BaseURL != "" {
		u, err := url.Parse(cfg.Chat.BaseURL)
		if err != nil {
			errs.Add("chat.base_url", fmt.Sprintf("invalid URL: %v", err))
		} else if u.IsAbs() {
			switch u.Scheme {
			case "http", "https", "ws", "wss":
			default:
				errs.Add("chat.base_url", fmt.Sprintf("unsupported scheme '%s'", u.Scheme))
			}
		}
	}
}

func (v *Validator) validateReconnect(cfg *Config, errs *ValidationError) {
	if cfg.Reconnect.MaxAttempts < 0 {
		errs.Add("reconnect.max_attempts", "must not be negative")
	}
	base := ParseDuration(cfg.Reconnect.BaseDelay, time.Second)
	maxDelay := ParseDuration(cfg.Reconnect.MaxDelay, 30*time.Second)
	if base > maxDelay {
		errs.Add("reconnect.base_delay", "must not exceed reconnect.max_delay")
	}
}

func (v *Validator) validateSessions(cfg *Config, errs *ValidationError) {
	if cfg.Sessions.Max < 0 {
		errs.Add("sessions.max", "must not be negative")
	}
	if cfg.Sessions.ClearAfterDays < 0 {
		errs.Add("sessions.clear_after_days", "must not be negative")
	}
}

func (v *Validator) validateStorage(cfg *Config, errs *ValidationError) {
	switch cfg.Storage.Backend {
	case "", "file", "sqlite", "memory":
	default:
		errs.Add("storage.backend", fmt.Sprintf("invalid backend '%s' (must be file, sqlite or memory)", cfg.Storage.Backend))
	}
	if cfg.Storage.MaxBytes < 0 {
		errs.Add("storage.max_bytes", "must not be negative")
	}
	if cfg.Storage.Backend == "memory" && cfg.Storage.Watch != nil && *cfg.Storage.Watch {
		errs.Add("storage.watch", "is not supported with the memory backend")
	}
}

func (v *Validator) validateAPI(cfg *Config, errs *ValidationError) {
	if cfg.API.BaseURL == "" {
		return
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Host == "" {
		errs.Add("api.base_url", "must be an absolute URL")
	}
}

func (v *Validator) validateDevServer(cfg *Config, errs *ValidationError) {
	if cfg.DevServer.Port < 0 || cfg.DevServer.Port > 65535 {
		errs.Add("devserver.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := map[string]string{
		"chat.ping_interval":       cfg.Chat.PingInterval,
		"reconnect.base_delay":     cfg.Reconnect.BaseDelay,
		"reconnect.max_delay":      cfg.Reconnect.MaxDelay,
		"reconnect.stop_delay":     cfg.Reconnect.StopDelay,
		"sessions.connect_timeout": cfg.Sessions.ConnectTimeout,
		"scroll.save_debounce":     cfg.Scroll.SaveDebounce,
		"api.timeout":              cfg.API.Timeout,
		"devserver.step_delay":     cfg.DevServer.StepDelay,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration '%s'", value))
			continue
		}
		if d < 0 {
			errs.Add(field, "must not be negative")
		}
	}
}
