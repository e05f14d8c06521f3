// Package domain contains core domain types for NeonNexus Chat.
package domain

import (
	"github.com/google/uuid"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks messages typed by the person at the keyboard.
	SenderUser Sender = "user"
	// SenderAgent marks messages produced by the remote agent.
	SenderAgent Sender = "agent"
)

// WelcomeMessageID is the fixed id of the greeting shown before any history loads.
const WelcomeMessageID = "agent-initial"

// WelcomeText greets the user in an empty thread.
const WelcomeText = "Welcome to NeonNexus Chat! How can I assist you today in this digital realm?"

// Message is a single entry of the chat transcript. Messages are immutable
// once created.
type Message struct {
	ID      string `json:"id"`
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

// NewMessage creates a message with a freshly generated unique id.
func NewMessage(sender Sender, content string) Message {
	return Message{
		ID:      string(sender) + "-" + uuid.NewString(),
		Sender:  sender,
		Content: content,
	}
}

// WelcomeMessage returns the greeting that seeds a fresh transcript.
func WelcomeMessage() Message {
	return Message{
		ID:      WelcomeMessageID,
		Sender:  SenderAgent,
		Content: WelcomeText,
	}
}

// IsAgent reports whether the agent authored the message.
func (m Message) IsAgent() bool {
	return m.Sender == SenderAgent
}
