// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T, maxBytes int64) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "files"), maxBytes)
	require.NoError(t, err)

	sq, err := NewSQLiteStore(filepath.Join(dir, "state.db"), maxBytes)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(maxBytes),
		"file":   fs,
		"sqlite": sq,
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "chat")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "chat", []byte(`{"a":1}`)))
			got, err := s.Get(ctx, "chat")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, s.Set(ctx, "chat", []byte(`{"a":2}`)))
			got, err = s.Get(ctx, "chat")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))

			require.NoError(t, s.Remove(ctx, "chat"))
			_, err = s.Get(ctx, "chat")
			assert.ErrorIs(t, err, ErrNotFound)

			// Removing a missing key is not an error
			assert.NoError(t, s.Remove(ctx, "chat"))
		})
	}
}

func TestStore_Quota(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t, 8) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", []byte("small")))

			err := s.Set(ctx, "k", []byte("much too large"))
			assert.ErrorIs(t, err, ErrQuotaExceeded)

			// Previous value survives a rejected write
			got, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "small", string(got))
		})
	}
}

func TestFileStore_AtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 0)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "parley-chat-storage", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "parley-chat-storage.json", entries[0].Name())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore(0)
	assert.ErrorIs(t, s.Set(ctx, "k", nil), context.Canceled)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("memory", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("file", dir, 0)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "kv.db"), 0)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open("redis", "", 0)
	assert.Error(t, err)
}
