// Package api provides HTTP handlers for the chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/config"
	"github.com/ashureev/neonnexus-chat/internal/store"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// AgentAdmin is the part of the agent client used outside the chat flow.
type AgentAdmin interface {
	ClearSession(ctx context.Context, threadID string) error
	Health(ctx context.Context) error
}

// ThreadCloser terminates live connections bound to a thread.
type ThreadCloser interface {
	CloseThread(threadID string)
}

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	registry *chat.Registry
	agent    AgentAdmin
	conns    ThreadCloser
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies. conns may be nil.
func NewHandler(repo store.Repository, registry *chat.Registry, agent AgentAdmin, conns ThreadCloser, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		registry: registry,
		agent:    agent,
		conns:    conns,
		cfg:      cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
