// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wingedpig/parley/internal/chat"
)

// Commands understood by the scripted assistant.
const (
	CommandError = "/error"
	CommandDrop  = "/drop"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamConn serializes writes to one client socket.
type streamConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *streamConn) writeFrame(frameType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(chat.Frame{Type: frameType, Data: raw})
}

func (c *streamConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// stream upgrades the request and answers each chat request with scripted
// thinking steps followed by a final response.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("devserver: upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	c := &streamConn{conn: ws}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Read requests into a channel so a slow reply never stalls pong handling.
	requests := make(chan chat.Request, 10)
	go func() {
		defer cancel()
		defer close(requests)
		for {
			var req chat.Request
			if err := ws.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("devserver: read failed: %v", err)
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range requests {
		if strings.TrimSpace(req.Message) == CommandDrop {
			// Close the transport without a close frame.
			ws.UnderlyingConn().Close()
			return
		}
		if err := s.reply(ctx, c, req); err != nil {
			if ctx.Err() == nil {
				log.Printf("devserver: reply failed: %v", err)
			}
			return
		}
	}
}

// reply streams the scripted answer for one request.
func (s *Server) reply(ctx context.Context, c *streamConn, req chat.Request) error {
	now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }

	if err := chat.ValidateContent(req.Message); err != nil {
		return c.writeFrame(chat.FrameError, chat.ErrorData{Error: err.Error(), Timestamp: now()})
	}
	if strings.TrimSpace(req.Message) == CommandError {
		return c.writeFrame(chat.FrameError, chat.ErrorData{Error: "the assistant failed to answer", Timestamp: now()})
	}

	if req.ShowThinking {
		for _, step := range s.script(req) {
			progress := chat.ThinkingData{StepNumber: step.StepNumber, Thought: step.Thought, Timestamp: now()}
			if err := c.writeFrame(chat.FrameThinkingStep, progress); err != nil {
				return err
			}
			if err := s.pause(ctx); err != nil {
				return err
			}
			step.Complete = true
			step.Timestamp = now()
			if err := c.writeFrame(chat.FrameThinkingStep, step); err != nil {
				return err
			}
		}
	}

	if err := s.pause(ctx); err != nil {
		return err
	}
	return c.writeFrame(chat.FrameFinalResponse, chat.FinalResponseData{
		Response:  s.answer(req),
		ToolsUsed: []string{"history_lookup"},
		Timestamp: now(),
	})
}

func (s *Server) pause(ctx context.Context) error {
	if s.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// script returns the thinking steps for req. Step numbers restart at 1 on
// every request.
func (s *Server) script(req chat.Request) []chat.ThinkingData {
	input, _ := json.Marshal(map[string]interface{}{
		"query":   req.Message,
		"persona": req.Persona,
	})
	return []chat.ThinkingData{
		{
			StepNumber:  1,
			Thought:     "Reviewing the conversation so far",
			Action:      "history_lookup",
			ActionInput: input,
			Observation: fmt.Sprintf("%d messages in history", len(req.ChatHistory)),
		},
		{
			StepNumber: 2,
			Thought:    "Drafting a reply",
		},
	}
}

func (s *Server) answer(req chat.Request) string {
	persona := req.Persona
	if persona == "" {
		persona = "default"
	}
	return fmt.Sprintf("[%s] You said: %s", persona, req.Message)
}
