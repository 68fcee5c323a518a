package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/dgnsrekt/tabmark/internal/types"
)

// Opener sends the user to an authorization URL.
type Opener interface {
	OpenURL(ctx context.Context, url string) error
}

type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) OpenURL(ctx context.Context, url string) error { return f(ctx, url) }

// LoopbackFlow is an AuthFlow whose redirect target is this process's own
// /oauth/callback route.
type LoopbackFlow struct {
	redirectURL string
	opener      Opener

	mu      sync.Mutex
	pending map[string]chan string
}

func NewLoopbackFlow(redirectURL string, opener Opener) *LoopbackFlow {
	return &LoopbackFlow{
		redirectURL: redirectURL,
		opener:      opener,
		pending:     make(map[string]chan string),
	}
}

func (f *LoopbackFlow) RedirectURL() string { return f.redirectURL }

// Launch opens authURL and blocks until the matching callback arrives or ctx
// is done.
func (f *LoopbackFlow) Launch(ctx context.Context, authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", types.NewError(types.CodeOAuthProtocol, "invalid authorization URL", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		return "", types.NewError(types.CodeOAuthProtocol, "authorization URL has no state", nil)
	}

	ch := make(chan string, 1)
	f.mu.Lock()
	f.pending[state] = ch
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.pending, state)
		f.mu.Unlock()
	}()

	if err := f.opener.OpenURL(ctx, authURL); err != nil {
		return "", fmt.Errorf("open authorization URL: %w", err)
	}

	select {
	case got := <-ch:
		return got, nil
	case <-ctx.Done():
		return "", types.NewError(types.CodeOAuthDenied, "authorization was not completed", ctx.Err())
	}
}

// ServeHTTP handles the provider redirect and hands the full URL to the
// waiting Launch call.
func (f *LoopbackFlow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	f.mu.Lock()
	ch, ok := f.pending[state]
	f.mu.Unlock()
	if !ok {
		slog.Warn("OAuth callback without pending flow", "state", state)
		http.Error(w, "unknown or expired authorization request", http.StatusBadRequest)
		return
	}

	full := f.redirectURL
	if r.URL.RawQuery != "" {
		full += "?" + r.URL.RawQuery
	}
	select {
	case ch <- full:
	default:
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Authorization received. You can close this tab.\n"))
}
