// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package scroll

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/session"
)

type savedPositions struct {
	mu    sync.Mutex
	calls map[string][]float64
}

func (s *savedPositions) SetScrollPosition(id string, offset float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string][]float64)
	}
	s.calls[id] = append(s.calls[id], offset)
	return true
}

func (s *savedPositions) get(id string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.calls[id]...)
}

func withMessages(id string, t session.Type, n int) session.Session {
	sess := session.Session{ID: id, Type: t}
	for i := 0; i < n; i++ {
		sess.Messages = append(sess.Messages, chat.NewMessage(chat.KindUser, "m"))
	}
	return sess
}

func TestMetrics_AtBottom(t *testing.T) {
	tests := []struct {
		name string
		m    Metrics
		want bool
	}{
		{"no overflow", Metrics{ScrollTop: 0, ScrollHeight: 100, ClientHeight: 200}, true},
		{"exactly at bottom", Metrics{ScrollTop: 800, ScrollHeight: 1000, ClientHeight: 200}, true},
		{"within one pixel", Metrics{ScrollTop: 799.2, ScrollHeight: 1000, ClientHeight: 200}, true},
		{"two pixels up", Metrics{ScrollTop: 798, ScrollHeight: 1000, ClientHeight: 200}, false},
		{"top", Metrics{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 200}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.AtBottom())
		})
	}
}

func TestController_SwitchSession(t *testing.T) {
	c := NewController(nil, 0)
	defer c.Close()

	t.Run("saved offset at bottom", func(t *testing.T) {
		sess := withMessages("a", session.TypeOwn, 3)
		pos := 800.0
		sess.ScrollPosition = &pos
		intent := c.SwitchSession(sess)
		assert.Equal(t, Intent{Kind: Offset, Offset: 800}, intent)
		assert.False(t, c.Following(), "waits for the laid-out viewport")

		c.Settled(Metrics{ScrollTop: 800, ScrollHeight: 1000, ClientHeight: 200})
		assert.True(t, c.Following())
	})

	t.Run("saved offset mid-conversation", func(t *testing.T) {
		sess := withMessages("b", session.TypeOwn, 3)
		pos := 100.0
		sess.ScrollPosition = &pos
		intent := c.SwitchSession(sess)
		assert.Equal(t, Offset, intent.Kind)

		c.Settled(Metrics{ScrollTop: 100, ScrollHeight: 1000, ClientHeight: 200})
		assert.False(t, c.Following())
	})

	t.Run("shared without offset starts at top", func(t *testing.T) {
		intent := c.SwitchSession(withMessages("c", session.TypeShared, 2))
		assert.Equal(t, Top, intent.Kind)
		assert.False(t, c.Following())
	})

	t.Run("own without offset starts at bottom", func(t *testing.T) {
		intent := c.SwitchSession(withMessages("d", session.TypeForked, 2))
		assert.Equal(t, Bottom, intent.Kind)
		assert.True(t, c.Following())
	})

	t.Run("empty session follows", func(t *testing.T) {
		c.UserScrolled(Metrics{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 200})
		intent := c.SwitchSession(session.Session{ID: "e", Type: session.TypeOwn})
		assert.Equal(t, None, intent.Kind)
		assert.True(t, c.Following())
	})
}

func TestController_MessageAppended(t *testing.T) {
	c := NewController(nil, 0)
	defer c.Close()
	c.SwitchSession(withMessages("a", session.TypeOwn, 1))

	assistant := chat.NewMessage(chat.KindAssistant, "answer")
	assert.Equal(t, Intent{Kind: MessageTop, MessageID: assistant.ID}, c.MessageAppended(assistant))

	step := chat.NewThinkingMessage(chat.ThinkingData{StepNumber: 1, Complete: true})
	assert.Equal(t, MessageTop, c.MessageAppended(step).Kind)

	assert.Equal(t, Bottom, c.MessageAppended(chat.NewMessage(chat.KindError, "oops")).Kind)

	// Reading history: new answers do not yank the viewport.
	c.UserScrolled(Metrics{ScrollTop: 10, ScrollHeight: 1000, ClientHeight: 200})
	assert.False(t, c.Following())
	assert.Equal(t, None, c.MessageAppended(assistant).Kind)

	// Sending re-engages following.
	assert.Equal(t, Bottom, c.MessageAppended(chat.NewMessage(chat.KindUser, "q")).Kind)
	assert.True(t, c.Following())
	assert.Equal(t, MessageTop, c.MessageAppended(assistant).Kind)
}

func TestController_SharedNeverAutoScrolls(t *testing.T) {
	c := NewController(nil, 0)
	defer c.Close()
	c.SwitchSession(withMessages("s", session.TypeShared, 1))
	c.UserScrolled(Metrics{ScrollTop: 800, ScrollHeight: 1000, ClientHeight: 200})
	require.True(t, c.Following())

	assert.Equal(t, None, c.MessageAppended(chat.NewMessage(chat.KindAssistant, "a")).Kind)
	assert.Equal(t, None, c.MessageAppended(chat.NewMessage(chat.KindUser, "q")).Kind)
}

func TestController_AutoScrollDisabled(t *testing.T) {
	c := NewController(nil, 0)
	defer c.Close()
	c.SwitchSession(withMessages("a", session.TypeOwn, 1))
	c.SetAutoScroll(false)

	assert.Equal(t, None, c.MessageAppended(chat.NewMessage(chat.KindAssistant, "a")).Kind)
	assert.Equal(t, None, c.MessageAppended(chat.NewMessage(chat.KindUser, "q")).Kind)
	assert.True(t, c.Following())
}

func TestController_UserScrollSavesDebounced(t *testing.T) {
	saver := &savedPositions{}
	c := NewController(saver, 20*time.Millisecond)
	defer c.Close()
	c.SwitchSession(withMessages("a", session.TypeOwn, 5))

	for _, top := range []float64{100, 200, 300} {
		c.UserScrolled(Metrics{ScrollTop: top, ScrollHeight: 1000, ClientHeight: 200})
	}

	assert.Eventually(t, func() bool {
		return len(saver.get("a")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{300}, saver.get("a"))
}

func TestController_SwitchFlushesPreviousSession(t *testing.T) {
	saver := &savedPositions{}
	c := NewController(saver, time.Hour)
	defer c.Close()

	c.SwitchSession(withMessages("a", session.TypeOwn, 5))
	c.UserScrolled(Metrics{ScrollTop: 42, ScrollHeight: 1000, ClientHeight: 200})
	c.SwitchSession(withMessages("b", session.TypeOwn, 5))

	assert.Equal(t, []float64{42}, saver.get("a"))
}

func TestController_CloseCancelsPendingSave(t *testing.T) {
	saver := &savedPositions{}
	c := NewController(saver, 20*time.Millisecond)
	c.SwitchSession(withMessages("a", session.TypeOwn, 5))
	c.UserScrolled(Metrics{ScrollTop: 42, ScrollHeight: 1000, ClientHeight: 200})
	c.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, saver.get("a"))
}

func TestController_RestoredOffsetIgnoresPreviousViewport(t *testing.T) {
	saver := &savedPositions{}
	c := NewController(saver, 10*time.Millisecond)
	defer c.Close()

	// A long session scrolled to its bottom.
	c.SwitchSession(withMessages("long", session.TypeOwn, 50))
	c.UserScrolled(Metrics{ScrollTop: 4800, ScrollHeight: 5000, ClientHeight: 200})
	require.True(t, c.Following())

	// The next session was left at its own bottom, which is far above the
	// previous session's.
	short := withMessages("short", session.TypeOwn, 3)
	pos := 300.0
	short.ScrollPosition = &pos
	assert.Equal(t, Intent{Kind: Offset, Offset: 300}, c.SwitchSession(short))
	assert.False(t, c.Following())

	c.Settled(Metrics{ScrollTop: 300, ScrollHeight: 500, ClientHeight: 200})
	assert.True(t, c.Following())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, saver.get("short"), "settling does not save the offset")
}
