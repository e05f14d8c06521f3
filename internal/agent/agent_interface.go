package agent

import (
	"context"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

// Relay defines the operations the chat controller needs from the remote agent.
type Relay interface {
	// SendMessage forwards a user message and returns the agent's reply text.
	// Failures are reported as *Error.
	SendMessage(ctx context.Context, text, threadID string) (string, error)

	// FetchHistory returns the persisted turns of a thread, or an empty list
	// when the history cannot be retrieved.
	FetchHistory(ctx context.Context, threadID string) []domain.Message
}

// Ensure Client implements Relay.
var _ Relay = (*Client)(nil)
