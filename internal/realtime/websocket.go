package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/identity"
	"github.com/coder/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// readLimit bounds inbound frames; drafts are capped well below it.
	readLimit = 32 << 10
)

// ChatSocketHandler streams the snapshots of the device's thread and accepts
// drafts and pings from the browser.
type ChatSocketHandler struct {
	registry      *chat.Registry
	conns         *ConnManager
	allowedOrigin string
	isDev         bool
	maxDraft      int
}

// NewChatSocketHandler creates a new WebSocket handler. Drafts longer than
// maxDraft runes are rejected with an error frame.
func NewChatSocketHandler(registry *chat.Registry, conns *ConnManager, allowedOrigin string, isDev bool, maxDraft int) *ChatSocketHandler {
	return &ChatSocketHandler{
		registry:      registry,
		conns:         conns,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		maxDraft:      maxDraft,
	}
}

// inbound is a client-to-server frame.
type inbound struct {
	Type  string `json:"type"`
	Input string `json:"input,omitempty"`
}

// outbound is a server-to-client frame.
type outbound struct {
	Type     string         `json:"type"`
	Snapshot *chat.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	threadID := identity.ThreadIDFromContext(r.Context())
	deviceID := identity.DeviceIDFromContext(r.Context())
	if threadID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection request", "device_id", deviceID, "thread_id", threadID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "thread_id", threadID)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "thread_id", threadID)
		}
	}()

	connID := h.conns.Register(threadID, ws)
	defer h.conns.Unregister(threadID, connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := h.registry.GetOrCreate(ctx, threadID)
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	initial := ctrl.Snapshot()
	if err := writeJSON(ctx, ws, outbound{Type: "snapshot", Snapshot: &initial}); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err, "thread_id", threadID)
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, ctrl)
	}()

	h.writeLoop(ctx, ws, updates, initial.Version, threadID)
	slog.Info("Chat socket ended", "thread_id", threadID)
}

func (h *ChatSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, updates <-chan chat.Snapshot, sent uint64, threadID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				// Controller closed by reset or eviction.
				_ = ws.Close(websocket.StatusNormalClosure, "thread closed")
				return
			}
			if snap.Version <= sent {
				continue
			}
			sent = snap.Version
			if err := writeJSON(ctx, ws, outbound{Type: "snapshot", Snapshot: &snap}); err != nil {
				slog.Debug("Snapshot write failed", "error", err, "thread_id", threadID)
				return
			}
		}
	}
}

func (h *ChatSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, ctrl *chat.Controller) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "thread_id", ctrl.ThreadID())
			} else {
				slog.Warn("WebSocket read error", "error", err, "thread_id", ctrl.ThreadID())
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Ignoring malformed frame", "thread_id", ctrl.ThreadID())
			continue
		}

		switch msg.Type {
		case "ping":
			if err := writeJSON(ctx, ws, outbound{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "draft":
			if h.maxDraft > 0 && utf8.RuneCountInString(msg.Input) > h.maxDraft {
				slog.Debug("Rejecting oversized draft", "thread_id", ctrl.ThreadID(), "length", len(msg.Input))
				if err := writeJSON(ctx, ws, outbound{Type: "error", Error: "draft too long"}); err != nil {
					slog.Debug("Failed to send error frame", "error", err)
				}
				continue
			}
			ctrl.SetInput(msg.Input)
		}
	}
}

func (h *ChatSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
