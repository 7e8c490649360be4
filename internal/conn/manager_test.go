// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer upgrades every request and hands the socket to handle.
func testServer(t *testing.T, handle func(n int, c *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(int(count.Add(1)), c)
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(_ int, c *websocket.Conn) {
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func fastBackoff(attempts int) Backoff {
	return Backoff{BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, MaxAttempts: attempts}
}

// waitFor consumes events until match returns true.
func waitFor(t *testing.T, m *Manager, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-m.Events():
			require.True(t, ok, "events channel closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for connection event")
			return Event{}
		}
	}
}

func isState(s State) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == EventState && ev.State == s }
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for n, d := range want {
		assert.Equal(t, d, b.Delay(n), "attempt %d", n)
	}

	assert.True(t, b.Allows(4))
	assert.False(t, b.Allows(5))
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	m := NewManager(Config{URL: "ws://127.0.0.1:1/stream"})
	defer m.Close()

	assert.ErrorIs(t, m.Send([]byte(`{}`)), ErrNotConnected)
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, ErrNotConnected.Error(), m.Error())
}

func TestManager_ConnectSendReceive(t *testing.T) {
	srv, _ := testServer(t, echo)
	m := NewManager(Config{URL: wsURL(srv)})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitFor(t, m, isState(Connected))
	assert.Equal(t, Connected, m.State())
	assert.Empty(t, m.Error())

	require.NoError(t, m.Connect(), "connect while open is a no-op")

	require.NoError(t, m.Send([]byte(`{"type":"ping"}`)))
	ev := waitFor(t, m, func(ev Event) bool { return ev.Kind == EventFrame })
	assert.JSONEq(t, `{"type":"ping"}`, string(ev.Data))
}

func TestManager_AwaitConnected(t *testing.T) {
	srv, _ := testServer(t, echo)
	m := NewManager(Config{URL: wsURL(srv)})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.AwaitConnected(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- m.AwaitConnected(context.Background()) }()
	require.NoError(t, m.Connect())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("AwaitConnected did not return")
	}
	assert.NoError(t, m.AwaitConnected(context.Background()))
}

func TestManager_ReconnectsAfterAbnormalClose(t *testing.T) {
	srv, count := testServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			// Drop without a close frame.
			return
		}
		echo(n, c)
	})
	m := NewManager(Config{URL: wsURL(srv), Backoff: fastBackoff(5)})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitFor(t, m, isState(Connected))

	closed := waitFor(t, m, func(ev Event) bool { return ev.Kind == EventClosed })
	assert.NotEqual(t, websocket.CloseNormalClosure, closed.Code)

	waitFor(t, m, isState(Connected))
	assert.Equal(t, int32(2), count.Load())
	assert.Equal(t, 0, m.Attempts(), "attempts reset on open")
}

func TestManager_NoReconnectAfterCleanClose(t *testing.T) {
	srv, count := testServer(t, func(n int, c *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ReadMessage()
	})
	m := NewManager(Config{URL: wsURL(srv), Backoff: fastBackoff(5)})
	defer m.Close()

	require.NoError(t, m.Connect())
	closed := waitFor(t, m, func(ev Event) bool { return ev.Kind == EventClosed })
	assert.Equal(t, websocket.CloseNormalClosure, closed.Code)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, int32(1), count.Load())
	assert.Empty(t, m.Error())
}

func TestManager_GivesUpAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	m := NewManager(Config{URL: url, Backoff: fastBackoff(2)})
	defer m.Close()

	require.NoError(t, m.Connect())

	var failures int
	waitFor(t, m, func(ev Event) bool {
		if ev.Kind == EventClosed {
			failures++
		}
		return failures == 3
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, 2, m.Attempts())
	assert.Equal(t, ErrorText, m.Error())
}

func TestManager_DefaultRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	// The default schedule scaled down 200x.
	b := Backoff{BaseDelay: DefaultBaseDelay / 200, MaxDelay: DefaultMaxDelay / 200, MaxAttempts: DefaultMaxAttempts}
	m := NewManager(Config{URL: url, Backoff: b})
	defer m.Close()

	start := time.Now()
	require.NoError(t, m.Connect())

	var failedAt []time.Time
	waitFor(t, m, func(ev Event) bool {
		if ev.Kind == EventClosed {
			failedAt = append(failedAt, time.Now())
		}
		return len(failedAt) == DefaultMaxAttempts+1
	})

	var total time.Duration
	for n := 0; n < DefaultMaxAttempts; n++ {
		want := b.Delay(n)
		total += want
		gap := failedAt[n+1].Sub(failedAt[n])
		assert.GreaterOrEqual(t, gap, want/2, "gap before retry %d", n+1)
	}
	assert.GreaterOrEqual(t, failedAt[DefaultMaxAttempts].Sub(start), total)

	quiet := time.After(3 * b.MaxDelay)
	for done := false; !done; {
		select {
		case ev := <-m.Events():
			t.Fatalf("unexpected event after retry budget spent: %+v", ev)
		case <-quiet:
			done = true
		}
	}
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, DefaultMaxAttempts, m.Attempts())
	assert.Equal(t, ErrorText, m.Error())
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	srv, count := testServer(t, func(n int, c *websocket.Conn) {})
	m := NewManager(Config{URL: wsURL(srv), Backoff: Backoff{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitFor(t, m, func(ev Event) bool { return ev.Kind == EventClosed })
	m.Disconnect()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_StopReconnects(t *testing.T) {
	srv, count := testServer(t, echo)
	m := NewManager(Config{URL: wsURL(srv), StopDelay: 10 * time.Millisecond})
	defer m.Close()

	require.NoError(t, m.Connect())
	waitFor(t, m, isState(Connected))

	m.Stop()
	closed := waitFor(t, m, func(ev Event) bool { return ev.Kind == EventClosed })
	assert.Equal(t, websocket.CloseNormalClosure, closed.Code)

	waitFor(t, m, isState(Connected))
	assert.Equal(t, int32(2), count.Load())
}

func TestManager_Close(t *testing.T) {
	srv, _ := testServer(t, echo)
	m := NewManager(Config{URL: wsURL(srv)})

	require.NoError(t, m.Connect())
	waitFor(t, m, isState(Connected))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	for range m.Events() {
	}
	assert.ErrorIs(t, m.Connect(), ErrClosed)
	assert.ErrorIs(t, m.AwaitConnected(context.Background()), ErrClosed)
	assert.ErrorIs(t, m.Send(nil), ErrNotConnected)
}
