// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"log"
	"time"

	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/session"
	"github.com/wingedpig/parley/internal/watcher"
)

const reloadTimeout = 5 * time.Second

// watchState reloads sessions when another process rewrites path.
func (app *App) watchState(path string) error {
	fw, err := watcher.NewFileWatcher(stateReloadDebounce)
	if err != nil {
		return err
	}
	if err := fw.Watch(path, func(string) { app.reloadState() }); err != nil {
		fw.Close()
		return err
	}
	app.fileWatcher = fw
	return nil
}

// reloadState replaces the in-memory sessions with the persisted record.
// Writes made by this process are recognized and skipped. The newest
// record wins, including scroll positions saved by the other writer.
func (app *App) reloadState() {
	ctx, cancel := context.WithTimeout(app.bgCtx, reloadTimeout)
	defer cancel()

	data, err := app.storage.Get(ctx, session.StorageKey)
	if err != nil {
		log.Printf("app: failed to read changed session state: %v", err)
		return
	}
	if app.persister.WroteLast(data) {
		return
	}
	state, err := session.Decode(data)
	if err != nil {
		log.Printf("app: ignoring changed session state: %v", err)
		return
	}

	prevActive := app.sessions.ActiveID()
	app.sessions.Restore(state)
	app.seedTurn()
	app.scroll.SetAutoScroll(app.sessions.Settings().AutoScroll)
	log.Printf("app: reloaded %d sessions changed by another process", app.sessions.Len())
	app.publish(events.SessionsRestored, app.sessions.ActiveID(), map[string]interface{}{"sessions": app.sessions.Len()})

	if app.sessions.ActiveID() != prevActive {
		app.clearResponding()
		app.syncScroll()
	}
}
