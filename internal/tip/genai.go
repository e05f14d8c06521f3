package tip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var errEmptyTip = errors.New("model returned an empty tip")

// GenAIConfig selects the Gemini backend used for tips.
type GenAIConfig struct {
	Model    string
	APIKey   string
	Project  string
	Location string
	// BaseURL overrides the backend endpoint.
	BaseURL string
}

// GenAIGenerator generates tips with a Gemini model.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator creates a Gemini-backed generator. An API key selects the
// Gemini API; otherwise Vertex AI is used with the given project and location.
func NewGenAIGenerator(ctx context.Context, cfg GenAIConfig) (*GenAIGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIKey == "" {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("vertex tip backend requires project and location")
		}
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAIGenerator{client: client, model: cfg.Model}, nil
}

// Tip implements Generator.
func (g *GenAIGenerator) Tip(ctx context.Context, messageContent string) (string, error) {
	temp := float32(0.4)
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  256,
		ResponseMIMEType: "application/json",
		ResponseSchema:   outputSchema(),
	}

	prompt := BuildPrompt(Input{MessageContent: messageContent})
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate tip: %w", err)
	}

	return parseOutput(res.Text())
}

func outputSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"tip": {
				Type:        genai.TypeString,
				Description: "A single, concise, actionable tip for the draft message.",
			},
		},
		Required: []string{"tip"},
	}
}

// parseOutput decodes the structured {tip} output. Plain text is accepted as-is.
func parseOutput(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyTip
	}

	var out Output
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return text, nil
	}
	tip := strings.TrimSpace(out.Tip)
	if tip == "" {
		return "", errEmptyTip
	}
	return tip, nil
}
