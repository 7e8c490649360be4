// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the connection manager, protocol decoder, session store
// and scroll controller into one chat engine.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/config"
	"github.com/wingedpig/parley/internal/conn"
	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/scroll"
	"github.com/wingedpig/parley/internal/session"
	"github.com/wingedpig/parley/internal/storage"
	"github.com/wingedpig/parley/internal/watcher"
	"github.com/wingedpig/parley/pkg/client"
)

var (
	// ErrConnectTimeout is returned when a new session's first message
	// cannot be sent because the socket did not open in time.
	ErrConnectTimeout = errors.New("failed to connect to chat service")

	// ErrSessionNotFound is returned when switching to an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNothingToShare is returned when the active session has no
	// shareable messages.
	ErrNothingToShare = errors.New("no messages to share")
)

// stateReloadDebounce is how long the state file must be quiet before an
// external change is reloaded.
const stateReloadDebounce = 100 * time.Millisecond

// App is the chat engine.
type App struct {
	configPath string
	version    string
	debug      bool
	config     *config.Config

	storage     storage.Store
	ownsStorage bool
	sessions    *session.Store
	persister   *session.Persister
	conn        *conn.Manager
	eventBus    *events.Bus
	scroll      *scroll.Controller
	api         *client.Client
	apiTimeout  time.Duration
	fileWatcher *watcher.FileWatcher
	loads       singleflight.Group

	// Ephemeral state, never persisted.
	mu          sync.RWMutex
	turn        int
	turnContext json.RawMessage
	typing      bool
	thinking    *chat.ThinkingData
	prompts     []client.Prompt

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	started      bool
	loopDone     chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	// Config is used as is when set; ConfigPath is ignored.
	Config *config.Config
	// Storage overrides the configured storage backend. The caller keeps
	// ownership of it.
	Storage storage.Store
	Debug   bool
	Version string
}

// New creates a new App instance. Call Initialize before use.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loader := config.NewLoader()
		loaded, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	app := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		debug:      opts.Debug,
		config:     cfg,
		storage:    opts.Storage,
		eventBus:   events.NewBus(cfg.Events.History.MaxEvents),
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
		loopDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	return app, nil
}

// Initialize opens storage, restores persisted sessions and builds the
// connection manager. It does not connect.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	if app.storage == nil {
		st, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.MaxBytes)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		app.storage = st
		app.ownsStorage = true
	}

	state, err := session.Load(ctx, app.storage, session.StorageKey)
	if err != nil {
		// In-memory state stays authoritative; start fresh.
		log.Printf("app: failed to load sessions, starting empty: %v", err)
		state = session.State{Settings: session.DefaultSettings()}
	}
	fresh := len(state.Sessions) == 0 && state.ActiveSessionID == ""
	if fresh {
		state.Settings = app.defaultSettings()
	}

	app.persister = session.NewPersister(app.storage, session.StorageKey, app.persistFailed)
	app.sessions = session.NewStore(
		session.WithMaxSessions(cfg.Sessions.Max),
		session.WithSaver(app.persister),
		session.WithSettings(state.Settings),
	)
	if !fresh {
		app.sessions.Restore(state)
		log.Printf("app: restored %d sessions", app.sessions.Len())
	}
	app.sessions.Initialize()
	app.seedTurn()
	if app.sessions.Settings().ClientID == "" {
		app.sessions.UpdateSettings(func(s *session.Settings) {
			s.ClientID = uuid.New().String()
		})
	}

	if days := cfg.Sessions.ClearAfterDays; days > 0 {
		if n := app.sessions.ClearOldSessions(days); n > 0 {
			log.Printf("app: cleared %d sessions older than %d days", n, days)
		}
	}

	url, err := chat.WebSocketURL(cfg.Chat.BaseURL, cfg.Chat.Origin)
	if err != nil {
		return fmt.Errorf("invalid chat endpoint: %w", err)
	}
	app.conn = conn.NewManager(conn.Config{
		URL:    url,
		Header: http.Header{"Origin": []string{cfg.Chat.Origin}},
		Backoff: conn.Backoff{
			BaseDelay:   config.ParseDuration(cfg.Reconnect.BaseDelay, conn.DefaultBaseDelay),
			MaxDelay:    config.ParseDuration(cfg.Reconnect.MaxDelay, conn.DefaultMaxDelay),
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		PingInterval: config.ParseDuration(cfg.Chat.PingInterval, 0),
		StopDelay:    config.ParseDuration(cfg.Reconnect.StopDelay, 0),
	})

	app.scroll = scroll.NewController(app.sessions, config.ParseDuration(cfg.Scroll.SaveDebounce, scroll.DefaultSaveDelay))
	app.scroll.SetAutoScroll(app.sessions.Settings().AutoScroll)

	app.apiTimeout = config.ParseDuration(cfg.API.Timeout, 30*time.Second)
	app.api = client.New(cfg.API.BaseURL, client.WithTimeout(app.apiTimeout))

	if cfg.Storage.IsWatching() {
		if fs, ok := app.storage.(*storage.FileStore); ok {
			if err := app.watchState(fs.Path(session.StorageKey)); err != nil {
				log.Printf("app: not watching session state: %v", err)
			}
		}
	}

	return nil
}

// seedTurn raises the turn counter to the highest turn recorded on any
// stored thinking step, so steps of the next turn never reconcile against
// steps persisted by an earlier run or another process.
func (app *App) seedTurn() {
	n := highestTurn(app.sessions.Sessions())
	app.mu.Lock()
	if n > app.turn {
		app.turn = n
	}
	app.mu.Unlock()
}

func highestTurn(sessions []session.Session) int {
	n := 0
	for _, sess := range sessions {
		for _, m := range sess.Messages {
			if m.Data != nil && m.Data.Iteration > n {
				n = m.Data.Iteration
			}
		}
	}
	return n
}

// defaultSettings seeds the settings of a store that has never been saved.
func (app *App) defaultSettings() session.Settings {
	s := session.DefaultSettings()
	if app.config.Chat.Persona != "" {
		s.Persona = app.config.Chat.Persona
	}
	s.ShowThinking = app.config.Chat.ThinkingEnabled()
	s.AutoScroll = app.config.Scroll.IsAutoScroll()
	return s
}

// Start runs the event loop and opens the connection.
func (app *App) Start(ctx context.Context) error {
	if app.conn == nil {
		return errors.New("app not initialized")
	}
	app.started = true
	go app.loop()

	app.syncScroll()
	if err := app.conn.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Run starts the app and blocks until shutdown.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("app: received signal %v, shutting down", sig)
	case <-ctx.Done():
	case <-app.done:
	}

	return app.Shutdown(context.Background())
}

// Shutdown closes the connection and writes any pending session state.
func (app *App) Shutdown(ctx context.Context) error {
	var err error
	app.shutdownOnce.Do(func() {
		err = app.shutdown(ctx)
	})
	return err
}

func (app *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if app.scroll != nil {
		app.scroll.Flush()
		app.scroll.Close()
	}

	if app.fileWatcher != nil {
		app.fileWatcher.Close()
	}

	if app.conn != nil {
		app.conn.Close()
		if app.started {
			<-app.loopDone
		}
	}

	app.bgCancel()
	app.bg.Wait()

	var errs []error
	if app.persister != nil {
		if err := app.persister.Flush(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to save sessions: %w", err))
		}
		app.persister.Close()
	}

	if app.ownsStorage && app.storage != nil {
		if err := app.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}

	app.eventBus.Close()
	return errors.Join(errs...)
}

// Stop signals Run to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}

// Config returns the active configuration.
func (app *App) Config() *config.Config {
	return app.config
}

// Version returns the application version string.
func (app *App) Version() string {
	return app.version
}

// Events returns the notification bus.
func (app *App) Events() *events.Bus {
	return app.eventBus
}

// publish emits an engine notification. Publishing after shutdown is a
// no-op.
func (app *App) publish(eventType, sessionID string, payload map[string]interface{}) {
	err := app.eventBus.Publish(context.Background(), events.Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
	})
	if err != nil && !errors.Is(err, events.ErrBusClosed) {
		log.Printf("app: failed to publish %s: %v", eventType, err)
	}
}

func (app *App) persistFailed(err error) {
	app.publish(events.PersistFailed, "", map[string]interface{}{"error": err.Error()})
}
