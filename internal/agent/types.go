// Package agent implements the HTTP client for the remote conversational agent.
package agent

import (
	"fmt"
	"time"
)

// ChatRequest is the JSON body sent to POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// HistoryResponse is the JSON body returned by GET /sessions/{thread_id}.
type HistoryResponse struct {
	History []HistoryTurn `json:"history"`
}

// HistoryTurn is one persisted conversation turn.
type HistoryTurn struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Turn types used by the agent's history store.
const (
	TurnHuman = "human"
	TurnAI    = "ai"
)

// replyFields are checked in order when extracting reply text from a JSON body.
var replyFields = []string{"response", "text", "message"}

// FailureKind categorizes why a chat request did not produce a reply.
type FailureKind int

const (
	// FailureStatus means the agent answered with a non-success HTTP status.
	FailureStatus FailureKind = iota + 1
	// FailureTimeout means the request was aborted after the client timeout.
	FailureTimeout
	// FailureConnection means the agent could not be reached at all.
	FailureConnection
)

func (k FailureKind) String() string {
	switch k {
	case FailureStatus:
		return "status"
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error is the closed set of chat request failures.
type Error struct {
	Kind       FailureKind
	StatusCode int
	Status     string
	Endpoint   string
	Cause      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case FailureStatus:
		return fmt.Sprintf("agent returned status %d", e.StatusCode)
	case FailureTimeout:
		return "agent request timed out"
	default:
		if e.Cause != nil {
			return fmt.Sprintf("agent unreachable at %s: %v", e.Endpoint, e.Cause)
		}
		return fmt.Sprintf("agent unreachable at %s", e.Endpoint)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ClientConfig holds configuration for the HTTP agent client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://agent-api:8081",
		Timeout: 30 * time.Second,
	}
}
