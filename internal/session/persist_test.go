// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/storage"
)

func TestLoad_MissingKeyGivesEmptyState(t *testing.T) {
	state, err := Load(context.Background(), storage.NewMemoryStore(0), StorageKey)
	require.NoError(t, err)
	assert.Empty(t, state.Sessions)
	assert.Equal(t, DefaultSettings(), state.Settings)
}

func TestLoad_CorruptState(t *testing.T) {
	st := storage.NewMemoryStore(0)
	require.NoError(t, st.Set(context.Background(), StorageKey, []byte("{not json")))

	_, err := Load(context.Background(), st, StorageKey)
	assert.Error(t, err)
}

func TestPersister_RoundTrip(t *testing.T) {
	st := storage.NewMemoryStore(0)
	p := NewPersister(st, StorageKey, nil)
	defer p.Close()

	s := NewStore(WithSaver(p))
	s.Initialize()
	s.AddMessage(chat.NewMessage(chat.KindUser, "remember me"))
	s.UpsertThinkingStep(chat.ThinkingData{StepNumber: 1, Iteration: 1, Thought: "t"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))

	state, err := Load(ctx, st, StorageKey)
	require.NoError(t, err)
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, s.ActiveID(), state.ActiveSessionID)

	msgs := state.Sessions[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "remember me", msgs[0].Content)
	assert.Equal(t, chat.KindThinkingStep, msgs[1].Kind)

	raw, err := st.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.True(t, p.WroteLast(raw))
	assert.False(t, p.WroteLast([]byte("{}")))
}

func TestPersister_IgnoresStaleVersions(t *testing.T) {
	st := storage.NewMemoryStore(0)
	p := NewPersister(st, StorageKey, nil)

	p.Save(State{ActiveSessionID: "newer"}, 2)
	p.Save(State{ActiveSessionID: "older"}, 1)
	require.NoError(t, p.Close())

	raw, err := st.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.Equal(t, "newer", state.ActiveSessionID)
}

func TestPersister_ReportsQuotaErrors(t *testing.T) {
	st := storage.NewMemoryStore(16)
	var failures atomic.Int32
	p := NewPersister(st, StorageKey, func(err error) {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			failures.Add(1)
		}
	})
	defer p.Close()

	p.Save(State{Sessions: []Session{{ID: "a-session-id-that-is-long"}}}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Flush(ctx)
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Equal(t, int32(1), failures.Load())
}

func TestPersister_SaveAfterCloseIsIgnored(t *testing.T) {
	p := NewPersister(storage.NewMemoryStore(0), StorageKey, nil)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.NotPanics(t, func() { p.Save(State{}, 10) })
}
