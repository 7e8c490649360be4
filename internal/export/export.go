// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package export writes session transcripts in portable formats.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/session"
)

// Exporter writes one session transcript.
type Exporter interface {
	Export(sess session.Session, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, yaml, md)", format)
	}
}

// batchExporter writes several sessions as one document.
type batchExporter interface {
	ExportAll(sessions []session.Session, w io.Writer) error
}

// Export writes sessions to w in format. JSON and YAML produce a single
// list; the other formats concatenate one transcript per session.
func Export(w io.Writer, sessions []session.Session, format string) error {
	exp, err := NewExporter(format)
	if err != nil {
		return err
	}
	if b, ok := exp.(batchExporter); ok {
		return b.ExportAll(sessions, w)
	}
	for i, sess := range sessions {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := exp.Export(sess, w); err != nil {
			return fmt.Errorf("failed to export session %s: %w", sess.ID, err)
		}
	}
	return nil
}

func newTranscripts(sessions []session.Session) []Transcript {
	out := make([]Transcript, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, NewTranscript(sess))
	}
	return out
}

// Transcript is the exported form of a session.
type Transcript struct {
	ID        string    `json:"id" yaml:"id"`
	Type      string    `json:"type" yaml:"type"`
	SharedID  string    `json:"shared_id,omitempty" yaml:"shared_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	SharedBy  string    `json:"shared_by,omitempty" yaml:"shared_by,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Messages  []Entry   `json:"messages" yaml:"messages"`
}

// Entry is one exported message.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	Type      string    `json:"type" yaml:"type"`
	Content   string    `json:"content,omitempty" yaml:"content,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Step      *Step     `json:"step,omitempty" yaml:"step,omitempty"`
	ToolsUsed []string  `json:"tools_used,omitempty" yaml:"tools_used,omitempty"`
}

// Step is an exported thinking step.
type Step struct {
	Number      int    `json:"number" yaml:"number"`
	Turn        int    `json:"turn" yaml:"turn"`
	Thought     string `json:"thought,omitempty" yaml:"thought,omitempty"`
	Action      string `json:"action,omitempty" yaml:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty" yaml:"action_input,omitempty"`
	Observation string `json:"observation,omitempty" yaml:"observation,omitempty"`
}

// NewTranscript converts a session to its exported form.
func NewTranscript(sess session.Session) Transcript {
	t := Transcript{
		ID:        sess.ID,
		Type:      string(sess.Type),
		SharedID:  sess.SharedID,
		ParentID:  sess.ParentID,
		SharedBy:  sess.SharedBy,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Messages:  make([]Entry, 0, len(sess.Messages)),
	}
	for _, m := range sess.Messages {
		t.Messages = append(t.Messages, newEntry(m))
	}
	return t
}

func newEntry(m chat.Message) Entry {
	e := Entry{
		ID:        m.ID,
		Type:      string(m.Kind),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		ToolsUsed: m.ToolsUsed,
	}
	if m.Data != nil {
		e.Step = &Step{
			Number:      m.Data.StepNumber,
			Turn:        m.Data.Iteration,
			Thought:     m.Data.Thought,
			Action:      m.Data.Action,
			Observation: m.Data.Observation,
		}
		if len(m.Data.ActionInput) > 0 {
			e.Step.ActionInput = string(m.Data.ActionInput)
		}
	}
	return e
}

// JSONExporter exports sessions as pretty-printed JSON.
type JSONExporter struct{}

// Export writes sess as JSON.
func (e *JSONExporter) Export(sess session.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewTranscript(sess))
}

// ExportAll writes sessions as a JSON array.
func (e *JSONExporter) ExportAll(sessions []session.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newTranscripts(sessions))
}

// Extension returns the file extension for this format.
func (e *JSONExporter) Extension() string {
	return "json"
}

// JSONLExporter exports one message per line.
type JSONLExporter struct{}

// Export writes each message of sess as a JSON line.
func (e *JSONLExporter) Export(sess session.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, entry := range NewTranscript(sess).Messages {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

// Extension returns the file extension for this format.
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
