// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scroll decides whether the conversation viewport follows new
// content.
package scroll

import (
	"sync"
	"time"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/session"
	"github.com/wingedpig/parley/internal/watcher"
)

// DefaultSaveDelay is how long a scroll position must be stable before it
// is saved.
const DefaultSaveDelay = 200 * time.Millisecond

// Metrics describe the viewport at one instant.
type Metrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// AtBottom reports whether the viewport shows the end of the content: there
// is no overflow, or the bottom edge is within one pixel of it.
func (m Metrics) AtBottom() bool {
	if m.ScrollHeight <= m.ClientHeight {
		return true
	}
	return m.ScrollHeight-m.ScrollTop-m.ClientHeight <= 1
}

// Kind of scroll intent.
type Kind int

const (
	None Kind = iota
	Bottom
	Top
	Offset
	MessageTop
)

func (k Kind) String() string {
	switch k {
	case Bottom:
		return "bottom"
	case Top:
		return "top"
	case Offset:
		return "offset"
	case MessageTop:
		return "message_top"
	default:
		return "none"
	}
}

// Intent tells the front end where to move the viewport.
type Intent struct {
	Kind      Kind
	Offset    float64
	MessageID string
}

// PositionSaver stores a session's scroll offset. *session.Store
// satisfies it.
type PositionSaver interface {
	SetScrollPosition(id string, offset float64) bool
}

// Controller tracks the follow flag for the active session.
type Controller struct {
	saver     PositionSaver
	debouncer *watcher.Debouncer

	mu          sync.Mutex
	sessionID   string
	sessionType session.Type
	following   bool
	autoScroll  bool
}

// NewController creates a controller saving offsets through saver after
// saveDelay of quiet.
func NewController(saver PositionSaver, saveDelay time.Duration) *Controller {
	if saveDelay <= 0 {
		saveDelay = DefaultSaveDelay
	}
	return &Controller{
		saver:      saver,
		debouncer:  watcher.NewDebouncer(saveDelay),
		following:  true,
		autoScroll: true,
	}
}

// SetAutoScroll enables or disables scrolling on new messages.
func (c *Controller) SetAutoScroll(enabled bool) {
	c.mu.Lock()
	c.autoScroll = enabled
	c.mu.Unlock()
}

// Following reports whether the viewport tracks the tail.
func (c *Controller) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.following
}

// SessionID returns the session the controller is tracking.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SwitchSession seeds the follow flag for sess. A restored offset leaves
// following off until Settled reports the laid-out viewport.
func (c *Controller) SwitchSession(sess session.Session) Intent {
	c.mu.Lock()
	prev := c.sessionID
	c.sessionID = sess.ID
	c.sessionType = sess.Type
	c.mu.Unlock()

	// Keep the previous session's last position.
	if prev != "" && prev != sess.ID {
		c.debouncer.Flush(prev)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case len(sess.Messages) == 0:
		c.following = true
		return Intent{Kind: None}
	case sess.ScrollPosition != nil:
		c.following = false
		return Intent{Kind: Offset, Offset: *sess.ScrollPosition}
	case sess.Type == session.TypeShared:
		c.following = false
		return Intent{Kind: Top}
	default:
		c.following = true
		return Intent{Kind: Bottom}
	}
}

// UserScrolled records a user-originated scroll.
func (c *Controller) UserScrolled(m Metrics) {
	c.mu.Lock()
	c.following = m.AtBottom()
	id := c.sessionID
	c.mu.Unlock()

	if id == "" || c.saver == nil {
		return
	}
	offset := m.ScrollTop
	c.debouncer.Debounce(id, func() {
		c.saver.SetScrollPosition(id, offset)
	})
}

// Settled reports the viewport after the front end applied an intent. It
// updates the follow flag without saving the offset.
func (c *Controller) Settled(m Metrics) {
	c.mu.Lock()
	c.following = m.AtBottom()
	c.mu.Unlock()
}

// MessageAppended decides how to react to msg being appended to the active
// session.
func (c *Controller) MessageAppended(msg chat.Message) Intent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionType == session.TypeShared {
		return Intent{Kind: None}
	}

	if msg.Kind == chat.KindUser {
		c.following = true
		if !c.autoScroll {
			return Intent{Kind: None}
		}
		return Intent{Kind: Bottom}
	}

	if !c.following || !c.autoScroll {
		return Intent{Kind: None}
	}
	switch msg.Kind {
	case chat.KindAssistant, chat.KindThinkingStep:
		return Intent{Kind: MessageTop, MessageID: msg.ID}
	default:
		return Intent{Kind: Bottom}
	}
}

// Flush saves any pending scroll position immediately.
func (c *Controller) Flush() {
	c.debouncer.Flush(c.SessionID())
}

// Close cancels any pending save.
func (c *Controller) Close() {
	c.debouncer.Stop()
}
