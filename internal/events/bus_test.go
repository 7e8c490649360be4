// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"*", "session.created", true},
		{"session.created", "session.created", true},
		{"session.*", "session.switched", true},
		{"session.*", "sessions.switched", false},
		{"*.state", "connection.state", true},
		{"*.state", "connection.error", false},
		{"message.appended", "message.updated", false},
		{"", "session.created", false},
		{"*", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.eventType))
		})
	}
}

func TestBus_Publish_AssignsIDAndTimestamp(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	var received Event
	_, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: ConnectionState}))

	assert.NotEmpty(t, received.ID)
	assert.False(t, received.Timestamp.IsZero())
}

func TestBus_SyncHandlersSeePublishOrder(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	var got []string
	_, err := bus.Subscribe("message.*", func(ctx context.Context, e Event) error {
		got = append(got, e.Payload["id"].(string))
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(context.Background(), Event{
			Type:    MessageAppended,
			Payload: map[string]interface{}{"id": id},
		}))
	}
	require.NoError(t, bus.Publish(context.Background(), Event{Type: SessionCreated}))

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	var count int32
	id, err := bus.Subscribe("*", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Type: SessionCreated})
	require.NoError(t, bus.Unsubscribe(id))
	bus.Publish(context.Background(), Event{Type: SessionCreated})

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	assert.ErrorIs(t, bus.Unsubscribe(id), ErrSubscriptionNotFound)
}

func TestBus_SubscribeAsync(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	received := make(chan Event, 1)
	_, err := bus.SubscribeAsync(ScrollIntent, func(ctx context.Context, e Event) error {
		received <- e
		return nil
	}, 10)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: ScrollIntent, SessionID: "s1"}))

	select {
	case e := <-received:
		assert.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_HandlerErrorAndPanicDoNotStopDelivery(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	var delivered atomic.Bool
	bus.Subscribe("*", func(ctx context.Context, e Event) error { return errors.New("nope") })
	bus.Subscribe("*", func(ctx context.Context, e Event) error { panic("boom") })
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		delivered.Store(true)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: PersistFailed}))
	assert.True(t, delivered.Load())
}

func TestBus_History(t *testing.T) {
	bus := NewBus(3)
	defer bus.Close()

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: SessionCreated, SessionID: "a"})
	bus.Publish(ctx, Event{Type: MessageAppended, SessionID: "a"})
	bus.Publish(ctx, Event{Type: MessageAppended, SessionID: "b"})
	bus.Publish(ctx, Event{Type: ConnectionState})

	all := bus.History(Filter{})
	require.Len(t, all, 3, "history is bounded")
	assert.Equal(t, MessageAppended, all[0].Type)

	msgs := bus.History(Filter{Types: []string{"message.*"}, SessionID: "b"})
	require.Len(t, msgs, 1)

	last := bus.History(Filter{Limit: 1})
	require.Len(t, last, 1)
	assert.Equal(t, ConnectionState, last[0].Type)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(0)

	_, err := bus.SubscribeAsync("*", func(ctx context.Context, e Event) error { return nil }, 1)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: SessionCreated}), ErrBusClosed)
	_, err = bus.Subscribe("*", func(ctx context.Context, e Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_Concurrency(t *testing.T) {
	bus := NewBus(100)
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(context.Background(), Event{Type: MessageAppended})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), count.Load())
}
