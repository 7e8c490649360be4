// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package chat defines chat messages and the streaming wire protocol
// spoken with the assistant backend.
package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what produced a message.
type Kind string

const (
	KindUser         Kind = "user"
	KindAssistant    Kind = "assistant"
	KindThinkingStep Kind = "thinking_step"
	KindError        Kind = "error"
	KindSystem       Kind = "system"
)

// ThinkingData is one intermediate reasoning or tool-use step.
type ThinkingData struct {
	StepNumber  int             `json:"step_number"`
	Iteration   int             `json:"iteration"`
	Thought     string          `json:"thought,omitempty"`
	Action      string          `json:"action,omitempty"`
	ActionInput json.RawMessage `json:"action_input,omitempty"`
	Observation string          `json:"observation,omitempty"`
	Complete    bool            `json:"complete"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// Key returns the reconciliation key of the step.
func (d ThinkingData) Key() StepKey {
	return StepKey{StepNumber: d.StepNumber, Iteration: d.Iteration}
}

// Merge returns d overlaid with the fields set in update. Step number and
// iteration are kept from d.
func (d ThinkingData) Merge(update ThinkingData) ThinkingData {
	out := d
	if update.Thought != "" {
		out.Thought = update.Thought
	}
	if update.Action != "" {
		out.Action = update.Action
	}
	if len(update.ActionInput) > 0 {
		out.ActionInput = append(json.RawMessage(nil), update.ActionInput...)
	}
	if update.Observation != "" {
		out.Observation = update.Observation
	}
	if update.Timestamp != "" {
		out.Timestamp = update.Timestamp
	}
	out.Complete = d.Complete || update.Complete
	return out
}

// StepKey scopes a thinking step to the turn it belongs to.
type StepKey struct {
	StepNumber int
	Iteration  int
}

// Message is a single entry in a session's conversation.
type Message struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"type"`
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	Data           *ThinkingData     `json:"data,omitempty"`
	ToolsUsed      []string          `json:"tools_used,omitempty"`
	Visualizations []json.RawMessage `json:"visualizations,omitempty"`
	PageContext    json.RawMessage   `json:"page_context,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(kind Kind, content string) Message {
	return Message{
		ID:        "msg_" + uuid.New().String(),
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewThinkingMessage creates a finalized THINKING_STEP message stamped with
// the step's own timestamp when it carries one.
func NewThinkingMessage(data ThinkingData) Message {
	msg := NewMessage(KindThinkingStep, "")
	msg.Timestamp = Timestamp(data.Timestamp)
	d := data
	msg.Data = &d
	return msg
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Data != nil {
		d := *m.Data
		d.ActionInput = append(json.RawMessage(nil), m.Data.ActionInput...)
		out.Data = &d
	}
	if m.ToolsUsed != nil {
		out.ToolsUsed = append([]string(nil), m.ToolsUsed...)
	}
	if m.Visualizations != nil {
		out.Visualizations = make([]json.RawMessage, len(m.Visualizations))
		for i, v := range m.Visualizations {
			out.Visualizations[i] = append(json.RawMessage(nil), v...)
		}
	}
	if m.PageContext != nil {
		out.PageContext = append(json.RawMessage(nil), m.PageContext...)
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
