// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/config"
	"github.com/wingedpig/parley/pkg/client"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(config.DevServerConfig{Host: "127.0.0.1", Port: 0, User: "tester"})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/stream"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) chat.Frame {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	f, err := chat.ParseFrame(raw)
	require.NoError(t, err)
	return f
}

func send(t *testing.T, c *websocket.Conn, req chat.Request) {
	t.Helper()
	data, err := req.Encode()
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func TestStream_ThinkingThenFinal(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv)

	send(t, c, chat.Request{Message: "hello", ShowThinking: true, Persona: "terse", TurnID: 1})

	var steps []chat.ThinkingData
	for i := 0; i < 4; i++ {
		f := readFrame(t, c)
		require.Equal(t, chat.FrameThinkingStep, f.Type)
		var d chat.ThinkingData
		require.NoError(t, json.Unmarshal(f.Data, &d))
		steps = append(steps, d)
	}
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.False(t, steps[0].Complete)
	assert.True(t, steps[1].Complete)
	assert.Equal(t, "history_lookup", steps[1].Action)
	assert.Equal(t, 2, steps[3].StepNumber)

	f := readFrame(t, c)
	require.Equal(t, chat.FrameFinalResponse, f.Type)
	var final chat.FinalResponseData
	require.NoError(t, json.Unmarshal(f.Data, &final))
	assert.Equal(t, "[terse] You said: hello", final.Response)
	assert.NotEmpty(t, final.Timestamp)
}

func TestStream_WithoutThinking(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv)

	send(t, c, chat.Request{Message: "quick"})
	assert.Equal(t, chat.FrameFinalResponse, readFrame(t, c).Type)
}

func TestStream_ErrorCommand(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv)

	send(t, c, chat.Request{Message: CommandError, ShowThinking: true})
	f := readFrame(t, c)
	require.Equal(t, chat.FrameError, f.Type)

	var data chat.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.NotEmpty(t, data.Error)

	// The socket stays usable after an error.
	send(t, c, chat.Request{Message: "again"})
	assert.Equal(t, chat.FrameFinalResponse, readFrame(t, c).Type)
}

func TestStream_DropClosesAbnormally(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv)

	send(t, c, chat.Request{Message: CommandDrop})
	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := c.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		assert.Equal(t, websocket.CloseAbnormalClosure, closeErr.Code)
	}
}

func TestConversations_ShareAndGet(t *testing.T) {
	_, srv := newTestServer(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	id, err := c.Conversations.Share(ctx, client.ShareRequest{
		Messages: []client.Message{{Type: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := c.Conversations.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tester", conv.User)
	assert.Len(t, conv.Messages, 1)

	child, err := c.Conversations.Share(ctx, client.ShareRequest{
		Messages: []client.Message{{Type: "user", Content: "more"}},
		ParentID: id,
	})
	require.NoError(t, err)
	conv, err = c.Conversations.Get(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ParentID)
}

func TestConversations_Errors(t *testing.T) {
	_, srv := newTestServer(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	_, err := c.Conversations.Get(ctx, "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "conversation not found", apiErr.Message)

	_, err = c.Conversations.Share(ctx, client.ShareRequest{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.Conversations.Share(ctx, client.ShareRequest{
		Messages: []client.Message{{Type: "user", Content: "x"}},
		ParentID: "nope",
	})
	require.ErrorAs(t, err, &apiErr)
}

func TestCatalogAndRatings(t *testing.T) {
	_, srv := newTestServer(t)
	c := client.New(srv.URL)
	ctx := context.Background()

	prompts, err := c.Prompts.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, prompts)

	personas, err := c.Personas.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", personas[0].Name)

	require.NoError(t, c.Ratings.Submit(ctx, client.Rating{Rating: 5}))
}
