// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound frame types.
const (
	FrameThinkingStep  = "thinking_step"
	FrameFinalResponse = "final_response"
	FrameError         = "error"
)

// MaxContentLength bounds a single outbound message.
const MaxContentLength = 10000

var (
	// ErrEmptyMessage is returned for blank outbound content.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrMessageTooLong is returned when content exceeds MaxContentLength.
	ErrMessageTooLong = fmt.Errorf("message is too long (max %d characters)", MaxContentLength)
)

// Frame is one inbound websocket frame.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// FinalResponseData is the payload of a final_response frame.
type FinalResponseData struct {
	Response       string            `json:"response"`
	ToolsUsed      []string          `json:"tools_used,omitempty"`
	Visualizations []json.RawMessage `json:"visualizations,omitempty"`
	Timestamp      string            `json:"timestamp,omitempty"`
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Event is a decoded inbound frame.
type Event interface {
	isEvent()
}

// ThinkingProgress is an in-progress thinking step.
type ThinkingProgress struct {
	Step ThinkingData
}

// ThinkingComplete is a finalized thinking step.
type ThinkingComplete struct {
	Step ThinkingData
}

// FinalResponse is the assistant's answer for a turn.
type FinalResponse struct {
	Turn int
	Data FinalResponseData
}

// ErrorResponse is a backend-reported failure for a turn.
type ErrorResponse struct {
	Turn int
	Data ErrorData
}

// Unknown is a frame with an unrecognized type.
type Unknown struct {
	Type string
}

func (ThinkingProgress) isEvent() {}
func (ThinkingComplete) isEvent() {}
func (FinalResponse) isEvent()    {}
func (ErrorResponse) isEvent()    {}
func (Unknown) isEvent()          {}

// ParseFrame parses the envelope of an inbound frame.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("parse frame: missing type")
	}
	return f, nil
}

// Decode parses raw and tags the result with turn. Thinking steps get their
// iteration set to turn so steps from different turns never collide.
func Decode(raw []byte, turn int) (Event, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, err
	}

	switch f.Type {
	case FrameThinkingStep:
		var step ThinkingData
		if err := unmarshalData(f, &step); err != nil {
			return nil, err
		}
		step.Iteration = turn
		if step.Complete {
			return ThinkingComplete{Step: step}, nil
		}
		return ThinkingProgress{Step: step}, nil

	case FrameFinalResponse:
		var data FinalResponseData
		if err := unmarshalData(f, &data); err != nil {
			return nil, err
		}
		return FinalResponse{Turn: turn, Data: data}, nil

	case FrameError:
		var data ErrorData
		if err := unmarshalData(f, &data); err != nil {
			return nil, err
		}
		return ErrorResponse{Turn: turn, Data: data}, nil

	default:
		return Unknown{Type: f.Type}, nil
	}
}

func unmarshalData(f Frame, v interface{}) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("parse %s data: %w", f.Type, err)
	}
	return nil
}

// Timestamp parses a wire timestamp, falling back to now.
func Timestamp(s string) time.Time {
	if s != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// ValidateContent checks outbound message content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if len([]rune(content)) > MaxContentLength {
		return ErrMessageTooLong
	}
	return nil
}
