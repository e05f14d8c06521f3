package chat

import (
	"errors"
	"testing"

	"github.com/ashureev/neonnexus-chat/internal/agent"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "status",
			err:  &agent.Error{Kind: agent.FailureStatus, StatusCode: 503, Status: "Service Unavailable"},
			want: "Error from agent: 503 Service Unavailable. The agent might be offline or encountering an issue.",
		},
		{
			name: "timeout",
			err:  &agent.Error{Kind: agent.FailureTimeout, Endpoint: "http://agent-api:8081"},
			want: "Error: Connection to the agent timed out.",
		},
		{
			name: "connection",
			err:  &agent.Error{Kind: agent.FailureConnection, Endpoint: "http://agent-api:8081"},
			want: "Error: Could not connect to the agent. Please ensure it is running on http://agent-api:8081 and accessible.",
		},
		{
			name: "connection without endpoint",
			err:  &agent.Error{Kind: agent.FailureConnection},
			want: connectionTextGeneric,
		},
		{
			name: "foreign error",
			err:  errors.New("boom"),
			want: connectionTextGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
