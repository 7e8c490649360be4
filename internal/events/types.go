// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the notification bus that carries engine state
// changes (connection, sessions, messages, scroll intents) to front ends.
package events

import (
	"context"
	"time"
)

// Event represents an immutable notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Handler processes received events.
type Handler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// Filter for querying recent events.
type Filter struct {
	Types     []string // Event type patterns (supports wildcards)
	SessionID string
	Since     time.Time
	Limit     int
}

// Event types published by the engine.
const (
	// Connection events
	ConnectionState = "connection.state"
	ConnectionError = "connection.error"

	// Conversation events
	MessageAppended  = "message.appended"
	MessageUpdated   = "message.updated"
	ThinkingProgress = "thinking.progress"
	ThinkingCleared  = "thinking.cleared"
	TypingChanged    = "typing.changed"

	// Session events
	SessionCreated   = "session.created"
	SessionSwitched  = "session.switched"
	SessionDeleted   = "session.deleted"
	SessionForked    = "session.forked"
	SessionsEvicted  = "session.evicted"
	SessionsRestored = "session.restored"
	SessionShared    = "session.shared"
	SettingsChanged  = "settings.changed"

	// Scroll events
	ScrollIntent = "scroll.intent"

	// Persistence events
	PersistFailed = "persist.failed"

	// Server metadata
	PromptsRefreshed = "prompts.refreshed"
)
