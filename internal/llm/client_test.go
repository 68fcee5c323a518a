package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgnsrekt/tabmark/internal/types"
)

type recordedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// text returns the prompt of the first message, whether it was sent as a
// plain string or as a list of text blocks.
func (r recordedRequest) text(t *testing.T) string {
	t.Helper()
	if len(r.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(r.Messages))
	}
	raw := r.Messages[0].Content
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil || len(blocks) == 0 {
		t.Fatalf("unexpected message content %s", raw)
	}
	return blocks[0].Text
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "from-env")
	var got recordedRequest
	var header http.Header
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"## Docs"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, srv.Client())
	text, err := c.Complete(context.Background(), types.Token{Value: "sk-1", Kind: types.KindAPIKey}, "organize")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "## Docs" {
		t.Fatalf("text = %q", text)
	}
	if path != "/v1/messages" {
		t.Fatalf("path = %q", path)
	}
	if got.Model != DefaultModel || got.MaxTokens != DefaultMaxTokens {
		t.Fatalf("model/max_tokens = %q/%d", got.Model, got.MaxTokens)
	}
	if got.Messages[0].Role != "user" || got.text(t) != "organize" {
		t.Fatalf("unexpected message %+v", got.Messages)
	}
	if header.Get("x-api-key") != "sk-1" {
		t.Fatalf("x-api-key = %q", header.Get("x-api-key"))
	}
	if header.Get("anthropic-version") != DefaultVersion {
		t.Fatalf("anthropic-version = %q", header.Get("anthropic-version"))
	}
	if header.Get("Authorization") != "" {
		t.Fatalf("api key request must not carry Authorization, got %q", header.Get("Authorization"))
	}
}

func TestCompleteOAuthUsesBearer(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, srv.Client())
	text, err := c.Complete(context.Background(), types.Token{Value: "acc", Kind: types.KindOAuth}, "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if header.Get("Authorization") != "Bearer acc" {
		t.Fatalf("Authorization = %q", header.Get("Authorization"))
	}
	if header.Get("x-api-key") != "" {
		t.Fatalf("oauth request must not carry x-api-key, got %q", header.Get("x-api-key"))
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "provider message", body: `{"type":"error","error":{"type":"api_error","message":"Overloaded"}}`, message: "Overloaded"},
		{name: "unparseable body", body: `<html>oops</html>`, message: "API error: 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, srv.Client())
			_, err := c.Complete(context.Background(), types.Token{Value: "k"}, "p")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T %v", err, err)
			}
			if apiErr.Status != http.StatusInternalServerError || apiErr.Message != tt.message {
				t.Fatalf("got %d %q, want 500 %q", apiErr.Status, apiErr.Message, tt.message)
			}
			if calls != 1 {
				t.Fatalf("expected a single request without retries, got %d", calls)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{status: http.StatusOK, want: true},
		{status: http.StatusBadRequest, want: true},
		{status: http.StatusUnauthorized, want: false},
		{status: http.StatusInternalServerError, want: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var got recordedRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, srv.Client())
			if ok := c.ValidateKey(context.Background(), "sk-test"); ok != tt.want {
				t.Fatalf("ValidateKey = %v, want %v", ok, tt.want)
			}
			if got.MaxTokens != validateMaxTokens {
				t.Fatalf("max_tokens = %d", got.MaxTokens)
			}
			if got.text(t) != validatePrompt {
				t.Fatalf("prompt = %q", got.text(t))
			}
		})
	}

	t.Run("network failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := NewClient(Config{BaseURL: url}, nil)
		if c.ValidateKey(context.Background(), "sk-test") {
			t.Fatal("unreachable endpoint must not validate")
		}
	})
}
