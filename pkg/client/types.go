// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"time"
)

// Message is one entry of a shared conversation as stored by the service.
type Message struct {
	// ID is the client-side message id. Older conversations may omit it.
	ID string `json:"id,omitempty"`

	// Type is the message kind ("user", "assistant", "thinking_step", "error").
	Type string `json:"type"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`

	// Data carries thinking step details for "thinking_step" messages.
	Data json.RawMessage `json:"data,omitempty"`

	// PageContext is the page context active when the message was sent.
	PageContext json.RawMessage `json:"pageContext,omitempty"`

	// ConversationID links a message to the conversation it was loaded from.
	ConversationID string `json:"conversationId,omitempty"`
}

// Conversation is a shared conversation.
type Conversation struct {
	// ID is the shared conversation id.
	ID string `json:"id"`

	// User is who shared the conversation.
	User string `json:"user"`

	// CreatedAt is when the conversation was shared.
	CreatedAt time.Time `json:"created_at"`

	// ParentID is the conversation this one was forked from, if any.
	ParentID string `json:"parent_id,omitempty"`

	// Messages is the shared transcript.
	Messages []Message `json:"messages"`
}

// ShareMetadata describes the context a conversation was shared from.
type ShareMetadata struct {
	Persona     string          `json:"persona,omitempty"`
	PageContext json.RawMessage `json:"pageContext,omitempty"`
	SharedAt    time.Time       `json:"sharedAt"`
}

// ShareRequest publishes a conversation.
type ShareRequest struct {
	Messages []Message     `json:"messages"`
	Metadata ShareMetadata `json:"metadata"`

	// ParentID links a fork to the conversation it was derived from.
	ParentID string `json:"parent_id,omitempty"`
}

// Prompt is one entry in the server's prompt catalog.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// Persona is an assistant personality the server offers.
type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Rating is feedback on one session.
type Rating struct {
	// Rating is the score from 1 to 5.
	Rating int `json:"rating"`

	// ClientID identifies the installation submitting the rating.
	ClientID string `json:"clientId,omitempty"`

	// Metadata carries session metrics.
	Metadata RatingMetadata `json:"metadata"`
}

// RatingMetadata summarizes the rated session.
type RatingMetadata struct {
	SessionType      string    `json:"sessionType"`
	MessageCount     int       `json:"messageCount"`
	UserMessages     int       `json:"userMessages"`
	AssistantReplies int       `json:"assistantMessages"`
	ThinkingSteps    int       `json:"thinkingSteps"`
	Timestamp        time.Time `json:"timestamp"`
}
