package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dgnsrekt/tabmark/internal/types"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-haiku-4-5-20250929"
	DefaultMaxTokens = 8192
	DefaultVersion   = "2023-06-01"

	validateMaxTokens = 10
	validatePrompt    = "Hi"
)

type Config struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Version   string
}

// Client talks to the Messages API. Requests are never retried.
type Client struct {
	cfg Config
	api anthropic.Client
}

// APIError is a non-2xx Messages API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	api := anthropic.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("anthropic-version", cfg.Version),
	)
	return &Client{cfg: cfg, api: api}
}

// Complete sends prompt as a single user message and returns the text of the
// first content block, or "" when the response has none.
func (c *Client) Complete(ctx context.Context, token types.Token, prompt string) (string, error) {
	msg, _, err := c.send(ctx, token, prompt, c.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	if msg == nil || len(msg.Content) == 0 {
		return "", nil
	}
	return msg.Content[0].Text, nil
}

// ValidateKey sends a minimal request with key. A 2xx or 400 response means
// the key was accepted; anything else, including transport errors, does not.
func (c *Client) ValidateKey(ctx context.Context, key string) bool {
	_, status, err := c.send(ctx, types.Token{Value: key, Kind: types.KindAPIKey}, validatePrompt, validateMaxTokens)
	if status == 0 {
		slog.Debug("API key validation failed", "error", err)
		return false
	}
	ok := (status >= 200 && status <= 299) || status == http.StatusBadRequest
	slog.Debug("API key validated", "status", status, "valid", ok)
	return ok
}

// send returns the decoded message and the HTTP status, 0 when no response
// arrived. Errors for non-2xx responses are *APIError.
func (c *Client) send(ctx context.Context, token types.Token, prompt string, maxTokens int) (*anthropic.Message, int, error) {
	var resp *http.Response
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}, append(authOptions(token), option.WithResponseInto(&resp))...)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err == nil {
		return msg, status, nil
	}
	if status < 200 || status > 299 {
		if status != 0 {
			return nil, status, apiError(status, err)
		}
		return nil, 0, fmt.Errorf("messages request: %w", err)
	}
	return nil, status, fmt.Errorf("decode response: %w", err)
}

// authOptions picks the credential header for the token kind and clears the
// other one, which the SDK may have picked up from the environment.
func authOptions(token types.Token) []option.RequestOption {
	if token.Kind == types.KindOAuth {
		return []option.RequestOption{option.WithHeaderDel("X-Api-Key"), option.WithAuthToken(token.Value)}
	}
	return []option.RequestOption{option.WithHeaderDel("Authorization"), option.WithAPIKey(token.Value)}
}

func apiError(status int, err error) *APIError {
	var sdkErr *anthropic.Error
	if errors.As(err, &sdkErr) {
		var body errorBody
		if jsonErr := json.Unmarshal([]byte(sdkErr.RawJSON()), &body); jsonErr == nil && body.Error.Message != "" {
			return &APIError{Status: status, Message: body.Error.Message}
		}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("API error: %d", status)}
}
