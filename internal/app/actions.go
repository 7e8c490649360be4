// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/config"
	"github.com/wingedpig/parley/internal/conn"
	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/scroll"
	"github.com/wingedpig/parley/internal/session"
	"github.com/wingedpig/parley/pkg/client"
)

// SendMessage appends a USER message to the active session and sends it
// with the session's history. A shared session is forked first so the
// shared transcript is never modified. Nothing is appended when the socket
// is not open.
func (app *App) SendMessage(content string, pageContext json.RawMessage) error {
	if err := chat.ValidateContent(content); err != nil {
		return err
	}
	if app.conn.State() != conn.Connected {
		app.conn.SetError(conn.ErrNotConnected.Error())
		return conn.ErrNotConnected
	}

	if fork, forked := app.sessions.ForkActiveSession(); forked {
		app.publish(events.SessionForked, fork.ID, map[string]interface{}{"parent_id": fork.ParentID})
		app.syncScroll()
	}

	activeID := app.sessions.ActiveID()
	if activeID == "" {
		return ErrSessionNotFound
	}
	settings := app.sessions.Settings()

	app.mu.Lock()
	app.turn++
	turn := app.turn
	app.turnContext = append(json.RawMessage(nil), pageContext...)
	app.thinking = nil
	app.typing = true
	app.mu.Unlock()

	msg := chat.NewMessage(chat.KindUser, content)
	msg.PageContext = pageContext
	if app.sessions.AddMessage(msg) {
		app.messageAppended(activeID, msg)
	}
	app.publishTyping(true)

	// The history sent ends with the message just appended.
	sess, _ := app.sessions.Session(activeID)
	data, err := chat.Request{
		Message:      content,
		ChatHistory:  chat.FormatHistory(sess.Messages),
		ShowThinking: settings.ShowThinking,
		Persona:      settings.Persona,
		PageContext:  pageContext,
		TurnID:       turn,
	}.Encode()
	if err != nil {
		app.clearResponding()
		return err
	}

	if err := app.conn.Send(data); err != nil {
		app.conn.SetError(err.Error())
		app.clearResponding()
		return err
	}
	return nil
}

// StartNewSession activates a blank session. When initial is not empty it
// waits for the socket to open and sends it as the first message.
func (app *App) StartNewSession(ctx context.Context, initial string) (session.Session, error) {
	before := app.sessions.Len()
	sess := app.sessions.StartNewSession()
	app.clearResponding()
	if app.sessions.Len() > before {
		app.publish(events.SessionCreated, sess.ID, nil)
	}
	app.publish(events.SessionSwitched, sess.ID, nil)
	app.syncScroll()

	if strings.TrimSpace(initial) == "" {
		return sess, nil
	}

	timeout := config.ParseDuration(app.config.Sessions.ConnectTimeout, 5*time.Second)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if app.conn.State() == conn.Disconnected {
		if err := app.conn.Connect(); err != nil {
			return sess, err
		}
	}
	if err := app.conn.AwaitConnected(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return sess, ErrConnectTimeout
		}
		return sess, err
	}
	return sess, app.SendMessage(initial, nil)
}

// StopGeneration abandons the in-flight answer by reconnecting.
func (app *App) StopGeneration() {
	app.conn.Stop()
	app.clearResponding()
}

// Connect opens the socket after the retry budget ran out.
func (app *App) Connect() error {
	return app.conn.Connect()
}

// Disconnect closes the socket without reconnecting.
func (app *App) Disconnect() {
	app.conn.Disconnect()
}

// SwitchSession activates an existing session.
func (app *App) SwitchSession(id string) error {
	if _, ok := app.sessions.Session(id); !ok {
		return ErrSessionNotFound
	}
	app.sessions.SwitchSession(id)
	app.publish(events.SessionSwitched, id, nil)
	app.syncScroll()
	return nil
}

// DeleteSession removes a session. It reports false for an unknown id.
func (app *App) DeleteSession(id string) bool {
	if _, ok := app.sessions.Session(id); !ok {
		return false
	}
	wasActive := app.sessions.DeleteSession(id)
	app.publish(events.SessionDeleted, id, nil)
	if wasActive {
		app.clearResponding()
		app.publish(events.SessionSwitched, app.sessions.ActiveID(), nil)
		app.syncScroll()
	}
	return true
}

// ForkActiveSession copies a shared active session into an editable one.
func (app *App) ForkActiveSession() (session.Session, bool) {
	fork, forked := app.sessions.ForkActiveSession()
	if forked {
		app.publish(events.SessionForked, fork.ID, map[string]interface{}{"parent_id": fork.ParentID})
		app.syncScroll()
	}
	return fork, forked
}

// ClearOldSessions removes sessions idle for more than days and returns how
// many were removed.
func (app *App) ClearOldSessions(days int) int {
	prevActive := app.sessions.ActiveID()
	n := app.sessions.ClearOldSessions(days)
	if n > 0 {
		app.publish(events.SessionsEvicted, "", map[string]interface{}{"count": n})
	}
	if app.sessions.ActiveID() != prevActive {
		app.clearResponding()
		app.syncScroll()
	}
	return n
}

// ClearAllSessions replaces every session with one blank session.
func (app *App) ClearAllSessions() session.Session {
	sess := app.sessions.ClearAllSessions()
	app.clearResponding()
	app.publish(events.SessionsEvicted, "", map[string]interface{}{"all": true})
	app.syncScroll()
	return sess
}

// ClearMessages empties the active session.
func (app *App) ClearMessages() {
	app.sessions.ClearMessages()
	app.clearResponding()
}

// UpdateSettings changes the persisted settings.
func (app *App) UpdateSettings(fn func(*session.Settings)) session.Settings {
	s := app.sessions.UpdateSettings(fn)
	app.scroll.SetAutoScroll(s.AutoScroll)
	app.publish(events.SettingsChanged, "", map[string]interface{}{
		"persona":       s.Persona,
		"show_thinking": s.ShowThinking,
		"auto_scroll":   s.AutoScroll,
	})
	return s
}

// ViewportSettled reports the viewport once the front end has applied the
// last scroll intent for the active session.
func (app *App) ViewportSettled(m scroll.Metrics) {
	app.scroll.Settled(m)
}

// UserScrolled reports a user-originated scroll of the active session.
func (app *App) UserScrolled(m scroll.Metrics) {
	app.scroll.UserScrolled(m)
}

// Following reports whether the viewport tracks new content.
func (app *App) Following() bool {
	return app.scroll.Following()
}

// syncScroll seeds the scroll controller when the active session changed.
func (app *App) syncScroll() {
	sess, ok := app.sessions.ActiveSession()
	if !ok || sess.ID == app.scroll.SessionID() {
		return
	}
	app.publishIntent(sess.ID, app.scroll.SwitchSession(sess))
}

// ActiveSession returns a copy of the active session.
func (app *App) ActiveSession() (session.Session, bool) {
	return app.sessions.ActiveSession()
}

// Session returns a copy of the session with id.
func (app *App) Session(id string) (session.Session, bool) {
	return app.sessions.Session(id)
}

// Sessions returns copies of every session, most recently active first.
func (app *App) Sessions() []session.Session {
	return app.sessions.Sessions()
}

// Stats summarizes stored sessions.
func (app *App) Stats() session.Stats {
	return app.sessions.Stats()
}

// Settings returns the persisted settings.
func (app *App) Settings() session.Settings {
	return app.sessions.Settings()
}

// ConnectionState returns the socket state.
func (app *App) ConnectionState() conn.State {
	return app.conn.State()
}

// ConnectionError returns the connection-level error text.
func (app *App) ConnectionError() string {
	return app.conn.Error()
}

// Typing reports whether an answer is being generated.
func (app *App) Typing() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.typing
}

// Thinking returns the in-progress thinking step, if any.
func (app *App) Thinking() (chat.ThinkingData, bool) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.thinking == nil {
		return chat.ThinkingData{}, false
	}
	return *app.thinking, true
}

// Turn returns the turn of the most recent message. It continues from the
// highest turn found in stored sessions.
func (app *App) Turn() int {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.turn
}

// Prompts returns the prompt catalog fetched on the last connect.
func (app *App) Prompts() []client.Prompt {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]client.Prompt(nil), app.prompts...)
}

// Personas fetches the personas offered by the service.
func (app *App) Personas(ctx context.Context) ([]client.Persona, error) {
	return app.api.Personas.List(ctx)
}
