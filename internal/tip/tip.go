// Package tip generates short, best-effort suggestions for an in-progress draft.
package tip

import (
	"context"
	"strings"
)

// Generator produces a one-line tip for a draft message.
type Generator interface {
	Tip(ctx context.Context, messageContent string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, messageContent string) (string, error)

// Tip implements Generator.
func (f GeneratorFunc) Tip(ctx context.Context, messageContent string) (string, error) {
	return f(ctx, messageContent)
}

// Input is the structured input of the tip prompt.
type Input struct {
	MessageContent string `json:"messageContent"`
}

// Output is the structured output of the tip prompt.
type Output struct {
	Tip string `json:"tip"`
}

const promptTemplate = `You are an AI assistant that helps users write better chat messages to an assistant agent.
Based on the draft message below, provide a single, concise, actionable tip that would make the message clearer or more likely to get a helpful answer.
Keep the tip to one short sentence and answer in the same language as the draft.

Draft message: {{messageContent}}`

// BuildPrompt renders the fixed tip instruction with the draft interpolated.
func BuildPrompt(in Input) string {
	return strings.Replace(promptTemplate, "{{messageContent}}", in.MessageContent, 1)
}
