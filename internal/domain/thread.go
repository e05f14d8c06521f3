package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// Thread links a device to the server-side conversation history kept by the agent.
type Thread struct {
	DeviceID   string    `json:"device_id"`
	ThreadID   string    `json:"thread_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewThreadID generates an opaque thread identifier accepted by the agent API.
func NewThreadID() string {
	return "thread-" + uuid.NewString()
}

// ValidThreadID reports whether id only uses characters the agent accepts.
func ValidThreadID(id string) bool {
	return threadIDPattern.MatchString(id)
}

// Idle returns how long the thread has gone without activity.
func (t *Thread) Idle(now time.Time) time.Duration {
	if t.LastSeenAt.IsZero() || now.Before(t.LastSeenAt) {
		return 0
	}
	return now.Sub(t.LastSeenAt)
}
