// Package chat owns the per-thread chat state and orchestrates the agent and
// tip clients in response to user actions.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/neonnexus-chat/internal/agent"
	"github.com/ashureev/neonnexus-chat/internal/domain"
	"github.com/ashureev/neonnexus-chat/internal/tip"
)

var (
	// ErrBlankInput is returned when submitting an empty or whitespace draft.
	ErrBlankInput = errors.New("input is blank")
	// ErrBusy is returned when a response is already pending for the thread.
	ErrBusy = errors.New("a response is already pending")
	// ErrClosed is returned by a controller that has been evicted or reset.
	ErrClosed = errors.New("chat controller closed")
)

// State is the controller's position in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingHistory  State = "awaiting-history"
	StateAwaitingResponse State = "awaiting-response"
)

// Snapshot is an immutable copy of the controller state handed to views.
type Snapshot struct {
	Version  uint64           `json:"version"`
	ThreadID string           `json:"thread_id"`
	State    State            `json:"state"`
	Messages []domain.Message `json:"messages"`
	Input    string           `json:"input"`
	Loading  bool             `json:"loading"`
	Tip      *string          `json:"tip"`
}

// Options configures optional controller behavior.
type Options struct {
	Tips         tip.Generator
	TipDebounce  time.Duration
	TipMinLength int
	TipTimeout   time.Duration
	Log          agent.ConversationLogger
	Logger       *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TipDebounce <= 0 {
		o.TipDebounce = 500 * time.Millisecond
	}
	if o.TipMinLength <= 0 {
		o.TipMinLength = 15
	}
	if o.TipTimeout <= 0 {
		o.TipTimeout = 10 * time.Second
	}
	if o.Log == nil {
		o.Log = agent.NoopConversationLogger{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Controller holds the transcript, draft, loading flag and tip of one thread.
// It is safe for concurrent use; network calls never run under its lock.
type Controller struct {
	threadID string
	relay    agent.Relay
	opts     Options
	tips     *Debouncer

	mountOnce sync.Once

	mu             sync.Mutex
	messages       []domain.Message
	input          string
	tip            *string
	loading        bool
	loadingHistory bool
	version        uint64
	lastActive     time.Time
	closed         bool

	subMu     sync.Mutex
	subs      map[int]chan Snapshot
	nextSub   int
	published uint64
}

// NewController creates a controller for threadID seeded with the welcome message.
func NewController(threadID string, relay agent.Relay, opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		threadID:   threadID,
		relay:      relay,
		opts:       opts,
		messages:   []domain.Message{domain.WelcomeMessage()},
		lastActive: time.Now(),
		subs:       make(map[int]chan Snapshot),
	}
	if opts.Tips != nil {
		c.tips = NewDebouncer(opts.TipDebounce, c.fetchTip)
	}
	return c
}

// ThreadID returns the thread this controller is bound to.
func (c *Controller) ThreadID() string {
	return c.threadID
}

// Mount loads persisted history once. Concurrent callers wait for the first
// load to finish. Non-empty history replaces the seeded transcript.
func (c *Controller) Mount(ctx context.Context) {
	c.mountOnce.Do(func() {
		c.mu.Lock()
		c.loadingHistory = true
		snap := c.commitLocked()
		c.mu.Unlock()
		c.publish(snap)

		history := c.relay.FetchHistory(context.WithoutCancel(ctx), c.threadID)

		c.mu.Lock()
		c.loadingHistory = false
		if len(history) > 0 {
			// History replaces only the welcome seed; messages submitted
			// before or during the load follow it.
			merged := make([]domain.Message, 0, len(history)+len(c.messages))
			merged = append(merged, history...)
			for _, msg := range c.messages {
				if msg.ID != domain.WelcomeMessageID {
					merged = append(merged, msg)
				}
			}
			c.messages = merged
		}
		snap = c.commitLocked()
		c.mu.Unlock()
		c.publish(snap)

		c.opts.Logger.Info("Chat history loaded", "thread_id", c.threadID, "messages", len(history))
	})
}

// SetInput records the current draft and schedules a debounced tip.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.input = text
	c.lastActive = time.Now()
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	if c.tips != nil {
		c.tips.Trigger(text)
	}
}

// Submit sends the current draft to the agent and blocks until the reply
// (or failure text) has been appended. The agent call is not cancelled when
// ctx is; the agent client's own timeout bounds it.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	text := c.input
	return c.submitLocked(ctx, text)
}

// SubmitText replaces the draft with text and submits it atomically.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	c.mu.Lock()
	if strings.TrimSpace(text) != "" && !c.loading {
		c.input = text
	}
	return c.submitLocked(ctx, text)
}

// submitLocked is entered with c.mu held and releases it.
func (c *Controller) submitLocked(ctx context.Context, text string) error {
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return ErrBlankInput
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}

	userMsg := domain.NewMessage(domain.SenderUser, text)
	c.messages = append(c.messages, userMsg)
	c.input = ""
	c.tip = nil
	c.loading = true
	c.lastActive = time.Now()
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	if c.tips != nil {
		c.tips.Trigger("")
	}
	c.logMessage("outbound", "chat_user_message", userMsg, nil)

	start := time.Now()
	reply, err := c.relay.SendMessage(context.WithoutCancel(ctx), text, c.threadID)
	meta := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		c.opts.Logger.Warn("Agent request failed", "thread_id", c.threadID, "error", err)
		meta["error"] = err.Error()
		reply = Describe(err)
	}

	agentMsg := domain.NewMessage(domain.SenderAgent, reply)
	c.mu.Lock()
	c.messages = append(c.messages, agentMsg)
	c.loading = false
	c.lastActive = time.Now()
	snap = c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logMessage("inbound", "chat_agent_message", agentMsg, meta)
	return nil
}

// fetchTip runs on the debouncer's timer goroutine. Overlapping calls are not
// ordered; whichever finishes last sets the tip.
func (c *Controller) fetchTip(content string) {
	c.mu.Lock()
	if c.closed || c.loading {
		c.mu.Unlock()
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) < c.opts.TipMinLength {
		if c.tip == nil {
			c.mu.Unlock()
			return
		}
		c.tip = nil
		snap := c.commitLocked()
		c.mu.Unlock()
		c.publish(snap)
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.TipTimeout)
	defer cancel()

	text, err := c.opts.Tips.Tip(ctx, content)
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil || text == "" {
		if err != nil {
			c.opts.Logger.Debug("Tip generation failed", "thread_id", c.threadID, "error", err)
		}
		c.tip = nil
	} else {
		c.tip = &text
	}
	snap := c.commitLocked()
	c.mu.Unlock()
	c.publish(snap)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastActive returns when the thread last saw a user action or agent reply.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Busy reports whether an agent response is pending.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Subscribe returns a channel receiving the latest snapshot after every state
// change. Slow readers only ever see the most recent snapshot. The returned
// func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Controller) Subscribers() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// Close stops pending tips and ends every subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.tips != nil {
		c.tips.Stop()
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	// Snapshots are taken under c.mu but published after it is released, so
	// an older one may arrive late.
	if snap.Version <= c.published {
		return
	}
	c.published = snap.Version

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// commitLocked records a state change and returns the resulting snapshot.
func (c *Controller) commitLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	state := StateIdle
	switch {
	case c.loading:
		state = StateAwaitingResponse
	case c.loadingHistory:
		state = StateAwaitingHistory
	}

	messages := make([]domain.Message, len(c.messages))
	copy(messages, c.messages)

	var tipCopy *string
	if c.tip != nil {
		t := *c.tip
		tipCopy = &t
	}

	return Snapshot{
		Version:  c.version,
		ThreadID: c.threadID,
		State:    state,
		Messages: messages,
		Input:    c.input,
		Loading:  c.loading,
		Tip:      tipCopy,
	}
}

func (c *Controller) logMessage(direction, eventType string, msg domain.Message, meta map[string]any) {
	c.opts.Log.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ThreadID:   c.threadID,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: msg.Content,
		Meta:       meta,
	})
}
