// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wingedpig/parley/internal/chat"
	"github.com/wingedpig/parley/internal/events"
	"github.com/wingedpig/parley/internal/session"
	"github.com/wingedpig/parley/pkg/client"
)

// LoadShared activates the shared conversation id, fetching it only when no
// session holds it yet. Concurrent loads of the same id share one fetch.
func (app *App) LoadShared(ctx context.Context, id string) (session.Session, error) {
	if sess, ok := app.findShared(id); ok {
		app.sessions.SwitchSession(sess.ID)
		app.publish(events.SessionSwitched, sess.ID, nil)
		app.syncScroll()
		return sess, nil
	}

	// The fetch is detached from any one caller's cancellation.
	ch := app.loads.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.apiTimeout)
		defer cancel()
		return app.api.Conversations.Get(fetchCtx, id)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
	if res.Err != nil {
		return session.Session{}, fmt.Errorf("failed to load shared conversation: %w", res.Err)
	}
	conv := res.Val.(*client.Conversation)

	msgs := fromClientMessages(conv.Messages)
	msgs = append(msgs, sharedBanner(conv))

	sess, created := app.sessions.LoadSharedConversation(id, msgs, session.SharedMetadata{
		CreatedAt: conv.CreatedAt,
		ParentID:  conv.ParentID,
		SharedBy:  conv.User,
	})
	if created {
		app.publish(events.SessionCreated, sess.ID, map[string]interface{}{"shared_id": id})
	}
	app.publish(events.SessionSwitched, sess.ID, nil)
	app.syncScroll()
	return sess, nil
}

func (app *App) findShared(id string) (session.Session, bool) {
	for _, sess := range app.sessions.Sessions() {
		if sess.SharedID == id {
			return sess, true
		}
	}
	return session.Session{}, false
}

// ShareActive publishes the active session and returns its share URL. A
// session that was already shared keeps its existing id.
func (app *App) ShareActive(ctx context.Context, pageContext json.RawMessage) (string, error) {
	sess, ok := app.sessions.ActiveSession()
	if !ok {
		return "", ErrSessionNotFound
	}

	msgs := toClientMessages(sess.Messages)
	if len(msgs) == 0 {
		return "", ErrNothingToShare
	}
	if sess.SharedID != "" {
		return app.ShareURL(sess.SharedID), nil
	}

	id, err := app.api.Conversations.Share(ctx, client.ShareRequest{
		Messages: msgs,
		Metadata: client.ShareMetadata{
			Persona:     app.sessions.Settings().Persona,
			PageContext: pageContext,
			SharedAt:    time.Now().UTC(),
		},
		ParentID: sess.ParentID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to share conversation: %w", err)
	}

	app.sessions.MarkShared(sess.ID, id)
	app.publish(events.SessionShared, sess.ID, map[string]interface{}{"shared_id": id})
	return app.ShareURL(id), nil
}

// ShareURL returns the link to a shared conversation.
func (app *App) ShareURL(id string) string {
	return strings.TrimSuffix(app.config.Chat.Origin, "/") + "/chat/" + id
}

// Rate submits feedback on the active session.
func (app *App) Rate(ctx context.Context, rating int) error {
	sess, ok := app.sessions.ActiveSession()
	if !ok {
		return ErrSessionNotFound
	}

	md := client.RatingMetadata{
		SessionType:  string(sess.Type),
		MessageCount: len(sess.Messages),
		Timestamp:    time.Now().UTC(),
	}
	for _, m := range sess.Messages {
		switch m.Kind {
		case chat.KindUser:
			md.UserMessages++
		case chat.KindAssistant:
			md.AssistantReplies++
		case chat.KindThinkingStep:
			md.ThinkingSteps++
		}
	}

	err := app.api.Ratings.Submit(ctx, client.Rating{
		Rating:   rating,
		ClientID: app.sessions.Settings().ClientID,
		Metadata: md,
	})
	if err != nil {
		return fmt.Errorf("failed to submit rating: %w", err)
	}
	return nil
}

// sharedBanner is the SYSTEM message closing a loaded shared conversation.
func sharedBanner(conv *client.Conversation) chat.Message {
	user := conv.User
	if user == "" {
		user = "unknown"
	}
	msg := chat.NewMessage(chat.KindSystem, fmt.Sprintf("Shared by %s on %s", user, conv.CreatedAt.UTC().Format("Jan 2, 2006 15:04 MST")))
	msg.ID = "system_" + conv.ID
	msg.ConversationID = conv.ID
	if !conv.CreatedAt.IsZero() {
		msg.Timestamp = conv.CreatedAt.UTC()
	}
	return msg
}

// fromClientMessages converts a fetched transcript to session messages.
func fromClientMessages(in []client.Message) []chat.Message {
	out := make([]chat.Message, 0, len(in))
	for i, m := range in {
		msg := chat.Message{
			ID:             m.ID,
			Kind:           chat.Kind(m.Type),
			Content:        m.Content,
			Timestamp:      m.Timestamp,
			PageContext:    m.PageContext,
			ConversationID: m.ConversationID,
		}
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("loaded_%d", i)
		}
		if len(m.Data) > 0 && string(m.Data) != "null" {
			var data chat.ThinkingData
			if err := json.Unmarshal(m.Data, &data); err != nil {
				log.Printf("app: dropping data of shared message %s: %v", msg.ID, err)
			} else {
				msg.Data = &data
			}
		}
		out = append(out, msg)
	}
	return out
}

// toClientMessages converts session messages to the share wire form,
// leaving out SYSTEM messages.
func toClientMessages(in []chat.Message) []client.Message {
	out := make([]client.Message, 0, len(in))
	for _, m := range in {
		if m.Kind == chat.KindSystem {
			continue
		}
		msg := client.Message{
			ID:             m.ID,
			Type:           string(m.Kind),
			Content:        m.Content,
			Timestamp:      m.Timestamp,
			PageContext:    m.PageContext,
			ConversationID: m.ConversationID,
		}
		if m.Data != nil {
			data, err := json.Marshal(m.Data)
			if err != nil {
				log.Printf("app: dropping data of message %s: %v", m.ID, err)
			} else {
				msg.Data = data
			}
		}
		out = append(out, msg)
	}
	return out
}
