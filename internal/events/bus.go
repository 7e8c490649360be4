// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusClosed is returned when operating on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// ErrSubscriptionNotFound is returned when unsubscribing with invalid ID.
var ErrSubscriptionNotFound = errors.New("subscription not found")

const defaultHistorySize = 1000

type subscription struct {
	id      SubscriptionID
	pattern string
	handler Handler
	async   bool
	ch      chan Event
	stopCh  chan struct{}
}

// Bus is an in-memory pub/sub bus with a bounded history of recent events.
// Synchronous handlers run on the publishing goroutine, so a single
// publisher sees its events handled in publish order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[SubscriptionID]*subscription
	order         []SubscriptionID
	history       []Event
	historySize   int
	closed        atomic.Bool
	wg            sync.WaitGroup
	nextID        atomic.Uint64
}

// NewBus creates a bus keeping up to historySize recent events.
func NewBus(historySize int) *Bus {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Bus{
		subscriptions: make(map[SubscriptionID]*subscription),
		historySize:   historySize,
	}
}

// Publish emits an event to all matching subscribers.
func (bus *Bus) Publish(ctx context.Context, event Event) error {
	if bus.closed.Load() {
		return ErrBusClosed
	}

	if event.ID == "" {
		event.ID = "evt-" + strconv.FormatUint(bus.nextID.Add(1), 10)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	bus.mu.Lock()
	bus.history = append(bus.history, event)
	if len(bus.history) > bus.historySize {
		bus.history = bus.history[len(bus.history)-bus.historySize:]
	}
	subs := make([]*subscription, 0, len(bus.order))
	for _, id := range bus.order {
		subs = append(subs, bus.subscriptions[id])
	}
	bus.mu.Unlock()

	for _, sub := range subs {
		if !Match(sub.pattern, event.Type) {
			continue
		}
		if sub.async {
			select {
			case sub.ch <- event:
			default:
				log.Printf("events: dropped %s - async subscriber buffer full", event.Type)
			}
			continue
		}
		bus.invoke(ctx, sub.handler, event)
	}

	return nil
}

func (bus *Bus) invoke(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler panic for %s: %v", event.Type, r)
		}
	}()
	if err := handler(ctx, event); err != nil {
		log.Printf("events: handler error for %s: %v", event.Type, err)
	}
}

// Subscribe registers a synchronous handler for events matching pattern.
func (bus *Bus) Subscribe(pattern string, handler Handler) (SubscriptionID, error) {
	return bus.add(pattern, handler, false, 0)
}

// SubscribeAsync registers a handler fed through a buffered channel. Events
// are dropped when the buffer is full.
func (bus *Bus) SubscribeAsync(pattern string, handler Handler, bufferSize int) (SubscriptionID, error) {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return bus.add(pattern, handler, true, bufferSize)
}

func (bus *Bus) add(pattern string, handler Handler, async bool, bufferSize int) (SubscriptionID, error) {
	if bus.closed.Load() {
		return "", ErrBusClosed
	}
	if pattern == "" {
		return "", ErrEmptyPattern
	}

	sub := &subscription{
		id:      SubscriptionID("sub-" + strconv.FormatUint(bus.nextID.Add(1), 10)),
		pattern: pattern,
		handler: handler,
		async:   async,
	}
	if async {
		sub.ch = make(chan Event, bufferSize)
		sub.stopCh = make(chan struct{})
		bus.wg.Add(1)
		go func() {
			defer bus.wg.Done()
			for {
				select {
				case <-sub.stopCh:
					return
				case event := <-sub.ch:
					bus.invoke(context.Background(), handler, event)
				}
			}
		}()
	}

	bus.mu.Lock()
	bus.subscriptions[sub.id] = sub
	bus.order = append(bus.order, sub.id)
	bus.mu.Unlock()

	return sub.id, nil
}

// Unsubscribe removes a subscription.
func (bus *Bus) Unsubscribe(id SubscriptionID) error {
	bus.mu.Lock()
	sub, ok := bus.subscriptions[id]
	if !ok {
		bus.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	delete(bus.subscriptions, id)
	for i, sid := range bus.order {
		if sid == id {
			bus.order = append(bus.order[:i], bus.order[i+1:]...)
			break
		}
	}
	bus.mu.Unlock()

	if sub.async {
		close(sub.stopCh)
	}
	return nil
}

// History returns recent events matching filter, oldest first.
func (bus *Bus) History(filter Filter) []Event {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range bus.history {
		if len(filter.Types) > 0 && !MatchAny(filter.Types, e.Type) {
			continue
		}
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		result = append(result, e)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}

// Close shuts down the bus and waits for async handlers to exit.
func (bus *Bus) Close() error {
	if bus.closed.Swap(true) {
		return nil
	}

	bus.mu.Lock()
	for _, sub := range bus.subscriptions {
		if sub.async {
			close(sub.stopCh)
		}
	}
	bus.subscriptions = make(map[SubscriptionID]*subscription)
	bus.order = nil
	bus.mu.Unlock()

	bus.wg.Wait()
	return nil
}
