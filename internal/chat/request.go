// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// HistoryEntry is one prior exchange sent along with a request.
type HistoryEntry struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	PageContext json.RawMessage `json:"page_context"`
}

// Request is the outbound frame for a user turn.
type Request struct {
	Message      string          `json:"message"`
	ChatHistory  []HistoryEntry  `json:"chat_history"`
	ShowThinking bool            `json:"show_thinking"`
	Persona      string          `json:"persona"`
	PageContext  json.RawMessage `json:"page_context"`
	TurnID       int             `json:"turn_id"`
}

// Encode marshals the request, writing null for an absent page context.
func (r Request) Encode() ([]byte, error) {
	if len(r.PageContext) == 0 {
		r.PageContext = json.RawMessage("null")
	}
	if r.ChatHistory == nil {
		r.ChatHistory = []HistoryEntry{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// FormatHistory converts session messages to the chat_history wire form.
// Only user and assistant messages are included.
func FormatHistory(msgs []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		var role string
		switch m.Kind {
		case KindUser:
			role = "user"
		case KindAssistant:
			role = "assistant"
		default:
			continue
		}
		pc := m.PageContext
		if len(pc) == 0 {
			pc = json.RawMessage("null")
		}
		out = append(out, HistoryEntry{
			Role:        role,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			PageContext: pc,
		})
	}
	return out
}

// WebSocketURL derives the streaming endpoint from the configured base URL.
// A relative base is resolved against origin. The secure scheme is used when
// the base or the origin is https.
func WebSocketURL(base, origin string) (string, error) {
	if base == "" {
		base = "/api/chat"
	}

	o, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	secure := o.Scheme == "https" || o.Scheme == "wss"

	var u *url.URL
	if strings.HasPrefix(base, "/") {
		if o.Host == "" {
			return "", fmt.Errorf("relative base url %q needs an origin", base)
		}
		u = &url.URL{Scheme: o.Scheme, Host: o.Host, Path: base}
	} else {
		u, err = url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme == "https" || u.Scheme == "wss" {
			secure = true
		}
	}

	if secure {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream"
	return u.String(), nil
}
