package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/domain"
)

// maxResponseBodySize bounds how much of an agent reply is read (4MB).
const maxResponseBodySize = 4 << 20

// Client talks to the remote agent over HTTP/JSON.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new agent client. Zero config values fall back to defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// BaseURL returns the configured agent endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage posts a message to the agent and returns its reply text.
// Every failure is returned as *Error.
func (c *Client) SendMessage(ctx context.Context, text, threadID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(ChatRequest{Message: text, ThreadID: threadID})
	if err != nil {
		return "", &Error{Kind: FailureConnection, Endpoint: c.baseURL, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: FailureConnection, Endpoint: c.baseURL, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Agent chat request failed", "thread_id", threadID, "error", err)
		return "", c.classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close agent response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		c.logger.Error("Agent chat response read failed", "thread_id", threadID, "error", err)
		return "", c.classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Agent API error",
			"status", resp.StatusCode,
			"thread_id", threadID,
			"body", truncate(string(body), 512),
		)
		return "", &Error{
			Kind:       FailureStatus,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Endpoint:   c.baseURL,
		}
	}

	return extractReply(body), nil
}

// FetchHistory retrieves the persisted turns of a thread. It never fails:
// any problem is logged and yields an empty list.
func (c *Client) FetchHistory(ctx context.Context, threadID string) []domain.Message {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/sessions/" + url.PathEscape(threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Warn("failed to build history request", "thread_id", threadID, "error", err)
		return []domain.Message{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Agent history request failed", "thread_id", threadID, "error", err)
		return []domain.Message{}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close history response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("No history available for thread", "thread_id", threadID, "status", resp.StatusCode)
		return []domain.Message{}
	}

	var history HistoryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&history); err != nil {
		c.logger.Warn("failed to decode history response", "thread_id", threadID, "error", err)
		return []domain.Message{}
	}

	return MapHistory(history.History)
}

// ClearSession asks the agent to forget a thread. A missing session is not an error.
func (c *Client) ClearSession(ctx context.Context, threadID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/sessions/" + url.PathEscape(threadID) + "/clear"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build clear request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clear session %s: %w", threadID, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close clear response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("clear session %s: unexpected status %d", threadID, resp.StatusCode)
	}
	return nil
}

// Health checks if the agent service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close health response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// MapHistory converts persisted agent turns into transcript messages.
// "human" turns belong to the user; everything else is attributed to the agent.
func MapHistory(turns []HistoryTurn) []domain.Message {
	messages := make([]domain.Message, 0, len(turns))
	for _, turn := range turns {
		sender := domain.SenderAgent
		if turn.Type == TurnHuman {
			sender = domain.SenderUser
		}
		messages = append(messages, domain.NewMessage(sender, turn.Content))
	}
	return messages
}

func (c *Client) classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: FailureTimeout, Endpoint: c.baseURL, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: FailureTimeout, Endpoint: c.baseURL, Cause: err}
	}
	return &Error{Kind: FailureConnection, Endpoint: c.baseURL, Cause: err}
}

// extractReply returns the first truthy conventional reply field of a JSON
// object body, or the raw body when there is none. Non-string values are
// rendered as their JSON text.
func extractReply(body []byte) string {
	raw := string(body)

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return raw
	}
	for _, key := range replyFields {
		if text, ok := replyText(fields[key]); ok {
			return text
		}
	}
	return raw
}

// replyText renders a truthy reply value. Empty strings, zero, false and null
// are not replies.
func replyText(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return "true", val
	case json.Number:
		f, err := val.Float64()
		if err == nil && f == 0 {
			return "", false
		}
		return val.String(), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
