package chat

import (
	"errors"
	"fmt"

	"github.com/ashureev/neonnexus-chat/internal/agent"
)

// Transcript texts for failed agent requests.
const (
	timeoutText           = "Error: Connection to the agent timed out."
	connectionTextFormat  = "Error: Could not connect to the agent. Please ensure it is running on %s and accessible."
	connectionTextGeneric = "Error: Could not connect to the agent. Please ensure it is running and accessible."
	statusTextFormat      = "Error from agent: %d %s. The agent might be offline or encountering an issue."
)

// Describe turns an agent failure into the text shown in the transcript.
func Describe(err error) string {
	var agentErr *agent.Error
	if !errors.As(err, &agentErr) {
		return connectionTextGeneric
	}

	switch agentErr.Kind {
	case agent.FailureStatus:
		return fmt.Sprintf(statusTextFormat, agentErr.StatusCode, agentErr.Status)
	case agent.FailureTimeout:
		return timeoutText
	default:
		if agentErr.Endpoint == "" {
			return connectionTextGeneric
		}
		return fmt.Sprintf(connectionTextFormat, agentErr.Endpoint)
	}
}
