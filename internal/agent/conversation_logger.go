package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ConversationLogEvent is one line of a thread's NDJSON transcript log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	ThreadID   string         `json:"thread_id"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat exchanges.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// NoopConversationLogger discards every event.
type NoopConversationLogger struct{}

// Log implements ConversationLogger.
func (NoopConversationLogger) Log(ConversationLogEvent) {}

// Close implements ConversationLogger.
func (NoopConversationLogger) Close() error { return nil }

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	fileSafePattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	errLoggerClosed = errors.New("conversation logger closed")
)

var (
	_ ConversationLogger = (*fileConversationLogger)(nil)
	_ ConversationLogger = NoopConversationLogger{}
)

type fileConversationLogger struct {
	dir    string
	events chan ConversationLogEvent
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewConversationLogger creates an asynchronous logger writing one NDJSON file
// per thread. A disabled config yields a no-op logger.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return NoopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		events: make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l, nil
}

// Log enqueues an event; it drops the event when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case l.events <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event", "thread_id", event.ThreadID)
	}
}

// Close flushes queued events and stops the writer.
func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLoggerClosed
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.events {
		if err := l.write(event); err != nil {
			l.logger.Warn("failed to write conversation log", "thread_id", event.ThreadID, "error", err)
		}
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) error {
	name := fileSafePattern.ReplaceAllString(event.ThreadID, "_")
	if name == "" {
		name = "unknown"
	}
	path := filepath.Join(l.dir, name+".ndjson")

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}

// cleanForReadability strips terminal escape sequences and collapses whitespace.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
