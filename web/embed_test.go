package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	handler := SPAHandler()

	tests := []struct {
		path        string
		wantContent string
	}{
		{"/", "NeonNexus Chat"},
		{"/app.js", "/ws/chat"},
		{"/styles.css", ".bubble"},
		{"/some/client/route", "NeonNexus Chat"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantContent) {
				t.Errorf("expected body to contain %q", tt.wantContent)
			}
		})
	}
}
