// Package realtime pushes chat snapshots to browsers over WebSocket.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// closer is the part of *websocket.Conn the manager needs.
type closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// ConnManager tracks the live WebSocket connections of every thread.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[int64]closer
	nextID atomic.Int64
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[int64]closer),
	}
}

// Register adds a connection for threadID and returns its id.
func (m *ConnManager) Register(threadID string, conn closer) int64 {
	id := m.nextID.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[threadID]; !exists {
		m.active[threadID] = make(map[int64]closer)
	}
	m.active[threadID][id] = conn
	slog.Info("Chat socket registered", "thread_id", threadID, "conn_id", id)
	return id
}

// Unregister removes a connection.
func (m *ConnManager) Unregister(threadID string, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[threadID]; ok {
		if _, exists := conns[id]; exists {
			delete(conns, id)
			if len(conns) == 0 {
				delete(m.active, threadID)
			}
			slog.Info("Chat socket unregistered", "thread_id", threadID, "conn_id", id)
		}
	}
}

// Count returns the number of live connections for threadID.
func (m *ConnManager) Count(threadID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[threadID])
}

// CloseThread forcefully terminates every connection of a thread.
func (m *ConnManager) CloseThread(threadID string) {
	m.mu.Lock()
	conns, ok := m.active[threadID]
	delete(m.active, threadID)
	m.mu.Unlock()

	if !ok {
		return
	}
	for id, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "thread reset")
		slog.Info("Chat socket closed", "thread_id", threadID, "conn_id", id)
	}
}

// CloseAll terminates every connection, used on shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[int64]closer)
	m.mu.Unlock()

	for _, conns := range active {
		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
	}
}
