// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// ConversationClient loads and publishes shared conversations.
//
// Access this client through [Client.Conversations]:
//
//	conv, err := client.Conversations.Get(ctx, "abc123")
type ConversationClient struct {
	c *Client
}

// Get returns a shared conversation by id.
func (cc *ConversationClient) Get(ctx context.Context, id string) (*Conversation, error) {
	data, err := cc.c.get(ctx, "/api/chat/conversations/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	if conv.ID == "" {
		conv.ID = id
	}

	return &conv, nil
}

// Share publishes a conversation and returns its shared id.
func (cc *ConversationClient) Share(ctx context.Context, req ShareRequest) (string, error) {
	data, err := cc.c.postJSON(ctx, "/api/chat/conversations", req)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse share response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("share response carried no conversation id")
	}

	return resp.ID, nil
}
