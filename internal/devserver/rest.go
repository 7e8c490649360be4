// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/wingedpig/parley/pkg/client"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error body in the {"message": ...} shape clients
// expect.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// conversationStore keeps shared conversations in memory.
type conversationStore struct {
	mu            sync.RWMutex
	conversations map[string]client.Conversation
	ratings       []client.Rating
}

func newConversationStore() *conversationStore {
	return &conversationStore{conversations: make(map[string]client.Conversation)}
}

func (s *conversationStore) get(id string) (client.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	return conv, ok
}

func (s *conversationStore) put(conv client.Conversation) {
	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
}

func (s *conversationStore) rate(r client.Rating) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = append(s.ratings, r)
	return len(s.ratings)
}

// getConversation returns a shared conversation.
func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, ok := s.conversations.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// createConversation stores a shared conversation and returns its id.
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req client.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "no messages to share")
		return
	}
	if req.ParentID != "" {
		if _, ok := s.conversations.get(req.ParentID); !ok {
			writeError(w, http.StatusBadRequest, "parent conversation not found")
			return
		}
	}

	conv := client.Conversation{
		ID:        uuid.New().String(),
		User:      s.user,
		CreatedAt: time.Now().UTC(),
		ParentID:  req.ParentID,
		Messages:  req.Messages,
	}
	s.conversations.put(conv)
	writeJSON(w, http.StatusCreated, map[string]string{"id": conv.ID})
}

// listPrompts returns the prompt catalog.
func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prompts)
}

// listPersonas returns the available personas.
func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.personas)
}

// submitRating records session feedback.
func (s *Server) submitRating(w http.ResponseWriter, r *http.Request) {
	var rating client.Rating
	if err := json.NewDecoder(r.Body).Decode(&rating); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if rating.Rating < 1 || rating.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	n := s.conversations.rate(rating)
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}
