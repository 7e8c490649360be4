// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session holds the multi-conversation store: creation, switching,
// forking, eviction and persistence of chat sessions.
package session

import (
	"time"

	"github.com/wingedpig/parley/internal/chat"
)

// Type classifies where a session came from.
type Type string

const (
	TypeOwn        Type = "own"
	TypeShared     Type = "shared"
	TypeSharedByMe Type = "shared_by_me"
	TypeForked     Type = "forked"
)

// IsShared reports whether sessions of this type are read-only views of a
// shared conversation.
func (t Type) IsShared() bool {
	return t == TypeShared || t == TypeSharedByMe
}

const (
	// MaxSessions bounds the number of stored sessions.
	MaxSessions = 50

	// StorageKey is the key the persisted state is written under.
	StorageKey = "parley-chat-storage"
)

// Session is one conversation thread.
type Session struct {
	ID             string         `json:"id"`
	Type           Type           `json:"type"`
	SharedID       string         `json:"shared_id,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	SharedBy       string         `json:"shared_by,omitempty"`
	Messages       []chat.Message `json:"messages"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ScrollPosition *float64       `json:"scroll_position,omitempty"`
}

// LastActivity is the timestamp of the last message, or UpdatedAt for a
// session without messages.
func (s *Session) LastActivity() time.Time {
	if n := len(s.Messages); n > 0 && !s.Messages[n-1].Timestamp.IsZero() {
		return s.Messages[n-1].Timestamp
	}
	return s.UpdatedAt
}

// IsBlank reports whether the session is an unused OWN session.
func (s *Session) IsBlank() bool {
	return s.Type == TypeOwn && len(s.Messages) == 0 && s.SharedID == ""
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Messages = chat.CloneMessages(s.Messages)
	if s.ScrollPosition != nil {
		p := *s.ScrollPosition
		out.ScrollPosition = &p
	}
	return out
}

// Options seed a new session.
type Options struct {
	ID        string
	SharedID  string
	ParentID  string
	SharedBy  string
	Messages  []chat.Message
	CreatedAt time.Time
}

// SharedMetadata describes a conversation loaded from the share service.
type SharedMetadata struct {
	CreatedAt time.Time
	ParentID  string
	SharedBy  string
}

// Metadata is a partial session update; nil fields are left unchanged.
type Metadata struct {
	Type           *Type
	SharedID       *string
	ParentID       *string
	ScrollPosition *float64
}

// Settings are user preferences persisted with the sessions.
type Settings struct {
	Persona      string `json:"persona"`
	ShowThinking bool   `json:"show_thinking"`
	AutoScroll   bool   `json:"auto_scroll"`

	// ClientID identifies this installation when submitting ratings.
	ClientID string `json:"client_id,omitempty"`
}

// DefaultSettings returns the settings used before the user changes any.
func DefaultSettings() Settings {
	return Settings{Persona: "default", ShowThinking: true, AutoScroll: true}
}

// State is the persisted subset of the store.
type State struct {
	Sessions        []Session `json:"sessions"`
	ActiveSessionID string    `json:"active_session_id"`
	Settings        Settings  `json:"settings"`
}

// Stats summarizes the store contents.
type Stats struct {
	Sessions int
	Messages int
	Oldest   time.Time
	Newest   time.Time
}
