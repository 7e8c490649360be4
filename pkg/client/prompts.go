// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// PromptClient lists the server's prompt catalog.
//
// The catalog is refreshed every time the streaming connection opens.
type PromptClient struct {
	c *Client
}

// List returns all prompts.
func (p *PromptClient) List(ctx context.Context) ([]Prompt, error) {
	data, err := p.c.get(ctx, "/api/chat/prompts")
	if err != nil {
		return nil, err
	}

	var prompts []Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	return prompts, nil
}

// PersonaClient lists the available assistant personas.
type PersonaClient struct {
	c *Client
}

// List returns all personas.
func (p *PersonaClient) List(ctx context.Context) ([]Persona, error) {
	data, err := p.c.get(ctx, "/api/chat/personas")
	if err != nil {
		return nil, err
	}

	var personas []Persona
	if err := json.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}

	return personas, nil
}

// RatingClient submits session feedback.
type RatingClient struct {
	c *Client
}

// Submit records a rating.
func (r *RatingClient) Submit(ctx context.Context, rating Rating) error {
	if rating.Rating < 1 || rating.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating.Rating)
	}
	_, err := r.c.postJSON(ctx, "/api/chat/ratings", rating)
	return err
}
