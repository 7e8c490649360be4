// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports writes to a set of files. Parent directories are
// watched rather than the files themselves so atomic rename-over writes are
// seen.
type FileWatcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	handlers  map[string]func(path string) // abs path -> handler
	dirs      map[string]int               // dir -> watch count
	closed    bool
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher whose callbacks fire once a file has been
// quiet for debounce.
func NewFileWatcher(debounce time.Duration) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &FileWatcher{
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		handlers:  make(map[string]func(string)),
		dirs:      make(map[string]int),
		closeCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Watch calls fn whenever path is written, created or renamed into place.
func (w *FileWatcher) Watch(path string, fn func(path string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, exists := w.handlers[absPath]; !exists {
		dir := filepath.Dir(absPath)
		w.dirs[dir]++
		if w.dirs[dir] == 1 {
			if err := w.watcher.Add(dir); err != nil {
				w.dirs[dir]--
				delete(w.dirs, dir)
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		}
	}
	w.handlers[absPath] = fn
	return nil
}

// Unwatch stops reporting changes to path.
func (w *FileWatcher) Unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, exists := w.handlers[absPath]; !exists {
		return
	}
	delete(w.handlers, absPath)
	w.debouncer.Cancel(absPath)

	dir := filepath.Dir(absPath)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		w.watcher.Remove(dir)
		delete(w.dirs, dir)
	}
}

// Close stops the watcher and releases resources.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	w.watcher.Close()
	w.wg.Wait()
	return nil
}

func (w *FileWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	name, err := filepath.Abs(event.Name)
	if err != nil {
		name = event.Name
	}

	w.mu.RLock()
	fn, exists := w.handlers[name]
	w.mu.RUnlock()
	if !exists {
		return
	}

	w.debouncer.Debounce(name, func() { fn(name) })
}
