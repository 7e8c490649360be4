// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package conn manages the single streaming socket to the assistant service,
// including exponential-backoff reconnects.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned by Send when no socket is open.
	ErrNotConnected = errors.New("not connected to chat service")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("connection manager closed")
)

// ErrorText is recorded when the socket fails to open or errors while open.
const ErrorText = "Connection error occurred"

// State of the connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventKind identifies a connection event.
type EventKind int

const (
	// EventState reports a state transition.
	EventState EventKind = iota
	// EventFrame carries one inbound text frame.
	EventFrame
	// EventClosed reports the socket closed with Code.
	EventClosed
	// EventError reports a socket error.
	EventError
)

// Event is delivered on the manager's Events channel in the order it
// occurred.
type Event struct {
	Kind  EventKind
	State State
	Data  []byte
	Code  int
	Err   error
}

// Config configures a Manager.
type Config struct {
	URL              string
	Header           http.Header
	Backoff          Backoff
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings; the peer must answer within
	// twice the interval.
	PingInterval time.Duration
	// StopDelay is how long Stop waits before reconnecting.
	StopDelay   time.Duration
	EventBuffer int
}

func (c *Config) setDefaults() {
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff.BaseDelay = DefaultBaseDelay
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = DefaultMaxDelay
	}
	if c.Backoff.MaxAttempts <= 0 {
		c.Backoff.MaxAttempts = DefaultMaxAttempts
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.StopDelay <= 0 {
		c.StopDelay = 100 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
}

// Manager owns at most one live socket.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64
	attempts int
	retry    *time.Timer
	retrySeq uint64
	lastErr  string
	waiters  map[chan error]struct{}
	closed   bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		waiters: make(map[chan error]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
}

// Events returns the channel of connection events. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Error returns the last recorded error text.
func (m *Manager) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SetError records an error text, or clears it when msg is empty.
func (m *Manager) SetError(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
}

// Attempts returns the number of reconnects scheduled since the last
// successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the socket unless one is already open or opening. It does
// not wait for the handshake.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Disconnected {
		m.mu.Unlock()
		return nil
	}
	m.stopRetryLocked()
	m.state = Connecting
	m.lastErr = ""
	m.gen++
	gen := m.gen
	m.wg.Add(1)
	m.mu.Unlock()

	m.emit(Event{Kind: EventState, State: Connecting})
	go m.dial(gen)
	return nil
}

func (m *Manager) dial(gen uint64) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.HandshakeTimeout)
	c, _, err := m.dialer.DialContext(ctx, m.cfg.URL, m.cfg.Header)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if c != nil {
			c.Close()
		}
		return
	}
	if err != nil {
		m.state = Disconnected
		m.lastErr = ErrorText
		m.scheduleRetryLocked(websocket.CloseAbnormalClosure)
		m.mu.Unlock()

		log.Printf("conn: dial %s: %v", m.cfg.URL, err)
		m.emit(Event{Kind: EventError, Err: err})
		m.emit(Event{Kind: EventState, State: Disconnected})
		m.emit(Event{Kind: EventClosed, Code: websocket.CloseAbnormalClosure})
		return
	}

	m.conn = c
	m.state = Connected
	m.attempts = 0
	m.lastErr = ""
	for w := range m.waiters {
		w <- nil
		delete(m.waiters, w)
	}
	m.wg.Add(1)
	m.mu.Unlock()

	m.emit(Event{Kind: EventState, State: Connected})
	go m.readLoop(gen, c)
}

func (m *Manager) readLoop(gen uint64, c *websocket.Conn) {
	defer m.wg.Done()

	stopPing := make(chan struct{})
	defer close(stopPing)
	if m.cfg.PingInterval > 0 {
		wait := 2 * m.cfg.PingInterval
		c.SetReadDeadline(time.Now().Add(wait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(wait))
		})
		go m.pingLoop(c, stopPing)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.handleClose(gen, c, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.emit(Event{Kind: EventFrame, Data: data})
	}
}

func (m *Manager) pingLoop(c *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteTimeout))
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && !m.closed
}

func (m *Manager) handleClose(gen uint64, c *websocket.Conn, err error) {
	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = Disconnected
	if code != websocket.CloseNormalClosure {
		m.lastErr = ErrorText
	}
	m.scheduleRetryLocked(code)
	m.mu.Unlock()

	c.Close()
	if code != websocket.CloseNormalClosure {
		log.Printf("conn: socket closed with code %d: %v", code, err)
		m.emit(Event{Kind: EventError, Err: err})
	}
	m.emit(Event{Kind: EventState, State: Disconnected})
	m.emit(Event{Kind: EventClosed, Code: code})
}

// scheduleRetryLocked arms the reconnect timer unless the close was clean or
// the retry budget is spent.
func (m *Manager) scheduleRetryLocked(code int) {
	if code == websocket.CloseNormalClosure || m.closed {
		return
	}
	if !m.cfg.Backoff.Allows(m.attempts) {
		log.Printf("conn: giving up after %d reconnect attempts", m.attempts)
		return
	}
	delay := m.cfg.Backoff.Delay(m.attempts)
	m.attempts++
	m.retrySeq++
	seq := m.retrySeq
	m.retry = time.AfterFunc(delay, func() {
		m.mu.Lock()
		ok := seq == m.retrySeq && m.retry != nil
		m.retry = nil
		m.mu.Unlock()
		if ok {
			m.Connect()
		}
	})
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.retrySeq++
}

// Send writes one text frame. It fails with ErrNotConnected unless the
// socket is open.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	c := m.conn
	if m.state != Connected || c == nil {
		m.lastErr = ErrNotConnected.Error()
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// Disconnect closes the socket cleanly and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopRetryLocked()
	c := m.conn
	wasDown := m.state == Disconnected
	m.conn = nil
	m.state = Disconnected
	m.gen++
	m.mu.Unlock()

	if c != nil {
		m.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "User disconnected")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		m.writeMu.Unlock()
		c.Close()
	}
	if !wasDown {
		m.emit(Event{Kind: EventState, State: Disconnected})
		m.emit(Event{Kind: EventClosed, Code: websocket.CloseNormalClosure})
	}
}

// Stop aborts the in-flight generation by disconnecting, then reconnects
// after the configured delay.
func (m *Manager) Stop() {
	m.Disconnect()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.retrySeq++
	seq := m.retrySeq
	m.retry = time.AfterFunc(m.cfg.StopDelay, func() {
		m.mu.Lock()
		ok := seq == m.retrySeq
		m.retry = nil
		m.mu.Unlock()
		if ok {
			m.Connect()
		}
	})
	m.mu.Unlock()
}

// AwaitConnected blocks until the socket is open, ctx is done, or the
// manager is closed.
func (m *Manager) AwaitConnected(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	m.waiters[ch] = struct{}{}
	m.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.waiters, ch)
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Close disconnects, stops reconnecting and closes the Events channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopRetryLocked()
	c := m.conn
	m.conn = nil
	m.state = Disconnected
	m.gen++
	for w := range m.waiters {
		w <- ErrClosed
		delete(m.waiters, w)
	}
	close(m.done)
	m.cancel()
	m.mu.Unlock()

	if c != nil {
		m.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "User disconnected")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		m.writeMu.Unlock()
		c.Close()
	}

	m.wg.Wait()
	close(m.events)
	return nil
}
