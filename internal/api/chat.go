package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/identity"
	"github.com/go-chi/chi/v5"
)

const clearSessionTimeout = 5 * time.Second

// resetLocks prevents concurrent resets for the same device.
var resetLocks sync.Map

// ChatHandler handles the chat endpoints of the current device's thread.
type ChatHandler struct {
	*Handler
	limiter *RateLimiter
}

// NewChatHandler creates a chat handler. limiter may be nil to disable throttling.
func NewChatHandler(base *Handler, limiter *RateLimiter) *ChatHandler {
	return &ChatHandler{Handler: base, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/chat", h.GetChat)
		r.Post("/chat/messages", h.PostMessage)
		r.Put("/chat/draft", h.PutDraft)
		r.Post("/chat/reset", h.Reset)
	})
}

type messageRequest struct {
	Message string `json:"message"`
}

type draftRequest struct {
	Input string `json:"input"`
}

// GetConfig returns the server configuration for the frontend.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"tips_enabled":       h.cfg.Tip.Enabled,
		"tip_min_length":     h.cfg.Tip.MinLength,
		"max_message_length": h.cfg.MaxMessageLength,
		"thread_id":          identity.ThreadIDFromContext(r.Context()),
	})
}

// GetChat returns the current snapshot of the device's thread, loading its
// history on first access.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, c.Snapshot())
}

// PostMessage submits a message and responds once the agent reply (or its
// failure text) is part of the transcript.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if h.limiter != nil && !h.limiter.Allow(deviceID) {
		slog.Warn("Message rate limited", "device_id", deviceID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "message too long")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Message) > h.cfg.MaxMessageLength {
		Error(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is empty")
		return
	}

	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	switch err := c.SubmitText(r.Context(), req.Message); {
	case err == nil:
		JSON(w, http.StatusOK, c.Snapshot())
	case errors.Is(err, chat.ErrBlankInput):
		Error(w, http.StatusBadRequest, "message is empty")
	case errors.Is(err, chat.ErrBusy):
		Error(w, http.StatusConflict, "a response is already pending")
	case errors.Is(err, chat.ErrClosed):
		Error(w, http.StatusConflict, "thread was reset")
	default:
		slog.Error("Submit failed", "thread_id", c.ThreadID(), "error", err)
		Error(w, http.StatusInternalServerError, "failed to submit message")
	}
}

// PutDraft records the in-progress draft, which may trigger a tip.
func (h *ChatHandler) PutDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "draft too long")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Input) > h.cfg.MaxMessageLength {
		Error(w, http.StatusRequestEntityTooLarge, "draft too long")
		return
	}

	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	c.SetInput(req.Input)
	w.WriteHeader(http.StatusNoContent)
}

// Reset starts a new thread for the device. The agent is asked to forget the
// old thread on a best-effort basis.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := identity.DeviceIDFromContext(ctx)
	oldThreadID := identity.ThreadIDFromContext(ctx)
	if deviceID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	lock, _ := resetLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		Error(w, http.StatusConflict, "reset_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		resetLocks.Delete(deviceID)
	}()

	if c, ok := h.registry.Get(oldThreadID); ok && c.Busy() {
		Error(w, http.StatusConflict, "a response is already pending")
		return
	}

	thread, err := identity.RotateThread(ctx, h.repo, deviceID)
	if err != nil {
		slog.Error("Failed to rotate thread", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset thread")
		return
	}

	if oldThreadID != "" {
		h.registry.Remove(oldThreadID)
		if h.conns != nil {
			h.conns.CloseThread(oldThreadID)
		}
		go h.clearRemoteSession(oldThreadID)
	}

	slog.Info("Thread reset", "device_id", deviceID, "old_thread_id", oldThreadID, "thread_id", thread.ThreadID)

	c := h.registry.GetOrCreate(ctx, thread.ThreadID)
	JSON(w, http.StatusOK, c.Snapshot())
}

func (h *ChatHandler) clearRemoteSession(threadID string) {
	if h.agent == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), clearSessionTimeout)
	defer cancel()
	if err := h.agent.ClearSession(ctx, threadID); err != nil {
		slog.Warn("Failed to clear agent session", "thread_id", threadID, "error", err)
	}
}

func (h *ChatHandler) controller(w http.ResponseWriter, r *http.Request) (*chat.Controller, bool) {
	threadID := identity.ThreadIDFromContext(r.Context())
	if threadID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return h.registry.GetOrCreate(r.Context(), threadID), true
}
