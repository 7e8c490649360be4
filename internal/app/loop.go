// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"log"
	"time"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/conn"
	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/scroll"
)

const promptsTimeout = 10 * time.Second

// loop applies connection events in delivery order until the manager is
// closed.
func (app *App) loop() {
	defer close(app.loopDone)
	for ev := range app.conn.Events() {
		app.handleConnEvent(ev)
	}
}

func (app *App) handleConnEvent(ev conn.Event) {
	switch ev.Kind {
	case conn.EventState:
		app.publish(events.ConnectionState, "", map[string]interface{}{"state": ev.State.String()})
		if ev.State == conn.Connected {
			app.refreshPrompts()
		}

	case conn.EventFrame:
		app.handleFrame(ev.Data)

	case conn.EventClosed:
		if app.debug {
			log.Printf("app: connection closed with code %d", ev.Code)
		}
		app.clearResponding()

	case conn.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		log.Printf("app: connection error: %s", msg)
		app.publish(events.ConnectionError, "", map[string]interface{}{"error": app.conn.Error()})
	}
}

// handleFrame decodes one inbound frame and applies it to the active
// session.
func (app *App) handleFrame(raw []byte) {
	app.mu.RLock()
	turn := app.turn
	app.mu.RUnlock()

	if app.debug {
		log.Printf("app: frame (turn %d): %s", turn, raw)
	}

	ev, err := chat.Decode(raw, turn)
	if err != nil {
		log.Printf("app: dropping frame: %v", err)
		return
	}

	activeID := app.sessions.ActiveID()

	switch e := ev.(type) {
	case chat.ThinkingProgress:
		step := e.Step
		app.mu.Lock()
		app.thinking = &step
		wasTyping := app.typing
		app.typing = true
		app.mu.Unlock()
		if !wasTyping {
			app.publishTyping(true)
		}
		app.publish(events.ThinkingProgress, activeID, map[string]interface{}{
			"step_number": step.StepNumber,
			"iteration":   step.Iteration,
			"thought":     step.Thought,
		})

	case chat.ThinkingComplete:
		app.clearThinking()
		msg, appended, ok := app.sessions.UpsertThinkingStep(e.Step)
		if !ok {
			return
		}
		if appended {
			app.messageAppended(activeID, msg)
		} else {
			app.publish(events.MessageUpdated, activeID, map[string]interface{}{"message_id": msg.ID})
		}

	case chat.FinalResponse:
		app.mu.RLock()
		pageContext := app.turnContext
		app.mu.RUnlock()
		app.clearResponding()

		msg := chat.NewMessage(chat.KindAssistant, e.Data.Response)
		msg.Timestamp = chat.Timestamp(e.Data.Timestamp)
		msg.ToolsUsed = e.Data.ToolsUsed
		msg.Visualizations = e.Data.Visualizations
		msg.PageContext = pageContext
		if app.sessions.AddMessage(msg) {
			app.messageAppended(activeID, msg)
		}

	case chat.ErrorResponse:
		app.clearResponding()
		app.conn.SetError(e.Data.Error)
		msg := chat.NewMessage(chat.KindError, e.Data.Error)
		msg.Timestamp = chat.Timestamp(e.Data.Timestamp)
		if app.sessions.AddMessage(msg) {
			app.messageAppended(activeID, msg)
		}
		app.publish(events.ConnectionError, "", map[string]interface{}{"error": e.Data.Error})

	case chat.Unknown:
		log.Printf("app: ignoring unrecognized frame type %q", e.Type)
	}
}

// messageAppended notifies listeners and forwards the scroll decision for
// the session the controller is tracking.
func (app *App) messageAppended(sessionID string, msg chat.Message) {
	app.publish(events.MessageAppended, sessionID, map[string]interface{}{
		"message_id": msg.ID,
		"type":       string(msg.Kind),
	})
	if sessionID != app.scroll.SessionID() {
		return
	}
	app.publishIntent(sessionID, app.scroll.MessageAppended(msg))
}

func (app *App) publishIntent(sessionID string, intent scroll.Intent) {
	if intent.Kind == scroll.None {
		return
	}
	payload := map[string]interface{}{"kind": intent.Kind.String()}
	switch intent.Kind {
	case scroll.Offset:
		payload["offset"] = intent.Offset
	case scroll.MessageTop:
		payload["message_id"] = intent.MessageID
	}
	app.publish(events.ScrollIntent, sessionID, payload)
}

func (app *App) publishTyping(typing bool) {
	app.publish(events.TypingChanged, app.sessions.ActiveID(), map[string]interface{}{"typing": typing})
}

func (app *App) clearThinking() {
	app.mu.Lock()
	had := app.thinking != nil
	app.thinking = nil
	app.mu.Unlock()
	if had {
		app.publish(events.ThinkingCleared, app.sessions.ActiveID(), nil)
	}
}

// clearResponding drops the typing indicator and any in-progress step.
func (app *App) clearResponding() {
	app.clearThinking()
	app.mu.Lock()
	wasTyping := app.typing
	app.typing = false
	app.mu.Unlock()
	if wasTyping {
		app.publishTyping(false)
	}
}

// refreshPrompts reloads the prompt catalog in the background.
func (app *App) refreshPrompts() {
	app.bg.Add(1)
	go func() {
		defer app.bg.Done()
		ctx, cancel := context.WithTimeout(app.bgCtx, promptsTimeout)
		defer cancel()

		prompts, err := app.api.Prompts.List(ctx)
		if err != nil {
			if app.bgCtx.Err() == nil {
				log.Printf("app: failed to refresh prompts: %v", err)
			}
			return
		}
		app.mu.Lock()
		app.prompts = prompts
		app.mu.Unlock()
		app.publish(events.PromptsRefreshed, "", map[string]interface{}{"count": len(prompts)})
	}()
}
