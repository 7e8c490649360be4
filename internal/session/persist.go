// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wingedpig/parley/internal/storage"
)

const saveTimeout = 5 * time.Second

// Load reads persisted state from st. A missing key yields an empty state.
func Load(ctx context.Context, st storage.Store, key string) (State, error) {
	data, err := st.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return State{Settings: DefaultSettings()}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return Decode(data)
}

// Decode parses a persisted state document.
func Decode(data []byte) (State, error) {
	state := State{Settings: DefaultSettings()}
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse session state: %w", err)
	}
	return state, nil
}

// Persister writes store snapshots in the background. Snapshots that arrive
// while a write is in flight are coalesced so only the newest is written.
type Persister struct {
	store   storage.Store
	key     string
	onError func(error)

	mu          sync.Mutex
	cond        *sync.Cond
	pending     *State
	pendingVer  uint64
	writtenVer  uint64
	lastWritten []byte
	lastErr     error
	closed      bool

	kick chan struct{}
	done chan struct{}
}

// NewPersister starts a persister writing to key in st. onError, if set, is
// called from the writer goroutine when a write fails.
func NewPersister(st storage.Store, key string, onError func(error)) *Persister {
	p := &Persister{
		store:   st,
		key:     key,
		onError: onError,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

// Save queues state for writing. Versions at or below the newest queued
// version are ignored.
func (p *Persister) Save(state State, version uint64) {
	p.mu.Lock()
	if p.closed || version <= p.pendingVer || version <= p.writtenVer {
		p.mu.Unlock()
		return
	}
	p.pending = &state
	p.pendingVer = version
	select {
	case p.kick <- struct{}{}:
	default:
	}
	p.mu.Unlock()
}

func (p *Persister) run() {
	defer close(p.done)
	for range p.kick {
		p.writePending()
	}
}

func (p *Persister) writePending() {
	p.mu.Lock()
	state, version := p.pending, p.pendingVer
	p.pending = nil
	p.mu.Unlock()
	if state == nil {
		return
	}

	err := p.write(*state)

	p.mu.Lock()
	if version > p.writtenVer {
		p.writtenVer = version
	}
	p.lastErr = err
	p.cond.Broadcast()
	p.mu.Unlock()

	if err != nil {
		log.Printf("session: failed to persist state: %v", err)
		if p.onError != nil {
			p.onError(err)
		}
	}
}

func (p *Persister) write(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.store.Set(ctx, p.key, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastWritten = data
	p.mu.Unlock()
	return nil
}

// Flush blocks until every queued snapshot has been written and returns the
// error of the last write.
func (p *Persister) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.writtenVer < p.pendingVer {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return p.lastErr
}

// WroteLast reports whether data matches the most recent successful write.
// It lets a file watcher ignore changes the persister made itself.
func (p *Persister) WroteLast(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWritten != nil && bytes.Equal(p.lastWritten, data)
}

// Close writes any queued snapshot and stops the writer.
func (p *Persister) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.kick)
	p.mu.Unlock()

	<-p.done
	p.writePending()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
