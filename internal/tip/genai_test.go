package tip

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGenAIGenerator(t *testing.T, handler http.HandlerFunc) *GenAIGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gen, err := NewGenAIGenerator(context.Background(), GenAIConfig{
		Model:   "test-model",
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("NewGenAIGenerator failed: %v", err)
	}
	return gen
}

func TestGenAIGeneratorRequestsStructuredTip(t *testing.T) {
	var (
		path string
		body map[string]any
	)
	gen := newTestGenAIGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"tip\":\"  Mention the time.  \"}"}]}}]}`)
	})

	got, err := gen.Tip(context.Background(), "book the gym for tomorrow")
	if err != nil {
		t.Fatalf("Tip error: %v", err)
	}
	if got != "Mention the time." {
		t.Errorf("Tip() = %q, want %q", got, "Mention the time.")
	}

	if !strings.Contains(path, "test-model:generateContent") {
		t.Errorf("unexpected request path %q", path)
	}
	genCfg, ok := body["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("request has no generationConfig: %v", body)
	}
	if genCfg["responseMimeType"] != "application/json" {
		t.Errorf("unexpected responseMimeType %v", genCfg["responseMimeType"])
	}
	schema, ok := genCfg["responseSchema"].(map[string]any)
	if !ok {
		t.Fatalf("request has no responseSchema: %v", genCfg)
	}
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["tip"]; !ok {
		t.Errorf("responseSchema lacks tip property: %v", schema)
	}

	raw, _ := json.Marshal(body["contents"])
	if !strings.Contains(string(raw), "book the gym for tomorrow") {
		t.Errorf("draft missing from request contents: %s", raw)
	}
}

func TestGenAIGeneratorPropagatesAPIError(t *testing.T) {
	gen := newTestGenAIGenerator(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`)
	})

	if _, err := gen.Tip(context.Background(), "a long enough draft message"); err == nil {
		t.Error("expected error from failing backend")
	}
}

func TestNewGenAIGeneratorRequiresVertexLocation(t *testing.T) {
	_, err := NewGenAIGenerator(context.Background(), GenAIConfig{Project: "p"})
	if err == nil {
		t.Error("expected error without location")
	}
}
