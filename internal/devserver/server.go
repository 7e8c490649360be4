// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package devserver is a scripted chat backend for local development and
// tests. It speaks the same streaming protocol and REST surface as the
// production assistant.
package devserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/wingedpig/parley/internal/config"
	"github.com/wingedpig/parley/pkg/client"
)

// Server is the development chat backend.
type Server struct {
	addr          string
	user          string
	stepDelay     time.Duration
	conversations *conversationStore
	prompts       []client.Prompt
	personas      []client.Persona
	router        *mux.Router
}

// New creates a server from the devserver configuration.
func New(cfg config.DevServerConfig) *Server {
	s := &Server{
		addr:          net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:          cfg.User,
		stepDelay:     config.ParseDuration(cfg.StepDelay, 0),
		conversations: newConversationStore(),
		prompts: []client.Prompt{
			{Name: "summarize", Description: "Summarize the conversation", Prompt: "Summarize what we discussed so far."},
			{Name: "explain", Description: "Explain a failure", Prompt: "Explain why {{subject}} failed."},
		},
		personas: []client.Persona{
			{Name: "default", Description: "Balanced answers"},
			{Name: "terse", Description: "Short answers"},
		},
	}
	if s.user == "" {
		s.user = "devserver"
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(logging)
	r.Use(recovery)
	r.Use(cors)

	api := r.PathPrefix("/api/chat").Subrouter()
	api.HandleFunc("/stream", s.stream)
	api.HandleFunc("/conversations", s.createConversation).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations/{id}", s.getConversation).Methods("GET", "OPTIONS")
	api.HandleFunc("/prompts", s.listPrompts).Methods("GET", "OPTIONS")
	api.HandleFunc("/personas", s.listPersonas).Methods("GET", "OPTIONS")
	api.HandleFunc("/ratings", s.submitRating).Methods("POST", "OPTIONS")

	return r
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("devserver: listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
