package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/agent"
)

// Registry keeps one controller per thread for the lifetime of the process.
type Registry struct {
	relay agent.Relay
	opts  Options

	mu     sync.RWMutex
	active map[string]*Controller
}

// NewRegistry creates a registry whose controllers share relay and opts.
func NewRegistry(relay agent.Relay, opts Options) *Registry {
	opts.setDefaults()
	return &Registry{
		relay:  relay,
		opts:   opts,
		active: make(map[string]*Controller),
	}
}

// GetOrCreate returns the controller for threadID, creating and mounting it
// on first use. Mount blocks until the thread's history has been loaded.
func (r *Registry) GetOrCreate(ctx context.Context, threadID string) *Controller {
	r.mu.Lock()
	c, ok := r.active[threadID]
	if !ok {
		c = NewController(threadID, r.relay, r.opts)
		r.active[threadID] = c
		r.opts.Logger.Info("Chat controller registered", "thread_id", threadID)
	}
	r.mu.Unlock()

	c.Mount(ctx)
	return c
}

// Get returns the controller for threadID if one is registered.
func (r *Registry) Get(threadID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.active[threadID]
	return c, ok
}

// Remove closes and forgets the controller for threadID.
func (r *Registry) Remove(threadID string) {
	r.mu.Lock()
	c, ok := r.active[threadID]
	delete(r.active, threadID)
	r.mu.Unlock()

	if ok {
		c.Close()
		r.opts.Logger.Info("Chat controller removed", "thread_id", threadID)
	}
}

// Sweep closes controllers idle for longer than ttl. Controllers awaiting a
// response or with live subscribers are kept. It returns the removed thread ids.
func (r *Registry) Sweep(ttl time.Duration, now time.Time) []string {
	r.mu.Lock()
	var expired []*Controller
	for id, c := range r.active {
		if c.Busy() || c.Subscribers() > 0 {
			continue
		}
		if now.Sub(c.LastActive()) > ttl {
			expired = append(expired, c)
			delete(r.active, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, c := range expired {
		c.Close()
		ids = append(ids, c.ThreadID())
	}
	return ids
}

// Len returns the number of registered controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every controller, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	controllers := r.active
	r.active = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
	slog.Debug("Chat registry closed", "controllers", len(controllers))
}
