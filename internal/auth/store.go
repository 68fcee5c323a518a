package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabmark/internal/storage"
	"github.com/dgnsrekt/tabmark/internal/types"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// KeyValidator checks a candidate API key against the LLM endpoint.
type KeyValidator interface {
	ValidateKey(ctx context.Context, key string) bool
}

// AuthFlow runs the interactive part of the authorization-code flow: it sends
// the user to authURL and returns the full redirect URL the provider called
// back with.
type AuthFlow interface {
	RedirectURL() string
	Launch(ctx context.Context, authURL string) (string, error)
}

// OAuthConfig holds the provider endpoints.
type OAuthConfig struct {
	AuthURL  string
	TokenURL string
	ClientID string
	Scope    string
}

type Option func(*Store)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHTTPClient sets the client used for token exchange and refresh.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.httpClient = c }
}

// Store owns the credential lifecycle: API keys, the OAuth PKCE flow and
// token refresh. Durable holds the credential, session holds single-use
// verifiers.
type Store struct {
	durable    storage.Store
	session    storage.Store
	validator  KeyValidator
	flow       AuthFlow
	oauth      OAuthConfig
	httpClient *http.Client
	now        func() time.Time

	mu sync.Mutex
}

func NewStore(durable, session storage.Store, validator KeyValidator, flow AuthFlow, cfg OAuthConfig, opts ...Option) *Store {
	s := &Store{
		durable:   durable,
		session:   session,
		validator: validator,
		flow:      flow,
		oauth:     cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) load(ctx context.Context) (Credential, bool, error) {
	var cred Credential
	ok, err := s.durable.Get(ctx, StorageKey, &cred)
	if err != nil {
		return Credential{}, false, types.NewError(types.CodeStorageFailure, "read credential", err)
	}
	return cred, ok, nil
}

func (s *Store) save(ctx context.Context, cred Credential) error {
	if err := s.durable.Set(ctx, StorageKey, cred); err != nil {
		return types.NewError(types.CodeStorageFailure, "write credential", err)
	}
	return nil
}

// Token returns a usable credential. An expired OAuth access token is
// refreshed exactly once; a failed refresh logs the user out.
func (s *Store) Token(ctx context.Context) (types.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok, err := s.load(ctx)
	if err != nil {
		return types.Token{}, err
	}
	if !ok {
		return types.Token{}, types.NewError(types.CodeNotAuthenticated, "not authenticated", nil)
	}

	switch cred.Type {
	case types.KindAPIKey:
		if cred.Key != "" {
			return types.Token{Value: cred.Key, Kind: types.KindAPIKey}, nil
		}
	case types.KindOAuth:
		if !cred.expired(s.now()) {
			return types.Token{Value: cred.Access, Kind: types.KindOAuth}, nil
		}
		refreshed, err := s.refresh(ctx, cred)
		if err != nil {
			slog.Warn("OAuth refresh failed, clearing credential", "error", err)
			if delErr := s.durable.Delete(ctx, StorageKey); delErr != nil {
				slog.Error("Failed to clear credential", "error", delErr)
			}
			return types.Token{}, types.NewError(types.CodeNotAuthenticated, "session expired", err)
		}
		return types.Token{Value: refreshed.Access, Kind: types.KindOAuth}, nil
	}
	return types.Token{}, types.NewError(types.CodeNotAuthenticated, "not authenticated", nil)
}

func (s *Store) refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.Refresh == "" {
		return Credential{}, errors.New("no refresh token")
	}
	src := s.oauthConfig("").TokenSource(s.clientCtx(ctx), &oauth2.Token{RefreshToken: cred.Refresh})
	tok, err := src.Token()
	if err != nil {
		return Credential{}, err
	}
	next := Credential{
		Type:    types.KindOAuth,
		Access:  tok.AccessToken,
		Refresh: tok.RefreshToken,
		Expires: s.expiresAt(tok),
	}
	if next.Refresh == "" {
		next.Refresh = cred.Refresh
	}
	if err := s.save(ctx, next); err != nil {
		return Credential{}, err
	}
	slog.Info("OAuth token refreshed", "expires", next.Expires)
	return next, nil
}

// State reports the stored credential without refreshing it.
func (s *Store) State(ctx context.Context) (State, error) {
	cred, ok, err := s.load(ctx)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{}, nil
	}
	st := State{Authenticated: true, Kind: cred.Type}
	if cred.Type == types.KindOAuth {
		st.Expired = cred.expired(s.now())
		exp := time.UnixMilli(cred.Expires)
		st.ExpiresAt = &exp
	}
	return st, nil
}

// SaveAPIKey validates key against the LLM endpoint and stores it, replacing
// any existing credential.
func (s *Store) SaveAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return types.NewError(types.CodeValidation, "api key is required", nil)
	}
	if !s.validator.ValidateKey(ctx, key) {
		return types.NewError(types.CodeInvalidCredential, "invalid API key", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, Credential{Type: types.KindAPIKey, Key: key}); err != nil {
		return err
	}
	slog.Info("API key saved")
	return nil
}

// Logout removes the stored credential. Calling it when logged out is a no-op.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.durable.Delete(ctx, StorageKey); err != nil {
		return types.NewError(types.CodeStorageFailure, "delete credential", err)
	}
	return nil
}

// InitiateOAuth runs the PKCE authorization-code flow end to end and stores
// the resulting token set.
func (s *Store) InitiateOAuth(ctx context.Context) error {
	if s.flow == nil {
		return types.NewError(types.CodeOAuthProtocol, "no authorization flow configured", nil)
	}
	flowID := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	vkey := verifierKey(flowID)
	if err := s.session.Set(ctx, vkey, verifier); err != nil {
		return types.NewError(types.CodeStorageFailure, "store verifier", err)
	}
	defer func() {
		if err := s.session.Delete(context.Background(), vkey); err != nil {
			slog.Warn("Failed to remove verifier", "flow_id", flowID, "error", err)
		}
	}()

	conf := s.oauthConfig(s.flow.RedirectURL())
	authURL := conf.AuthCodeURL(flowID, oauth2.S256ChallengeOption(verifier))
	slog.Info("OAuth flow started", "flow_id", flowID)

	responseURL, err := s.flow.Launch(ctx, authURL)
	if err != nil {
		var coded *types.CodedError
		if errors.As(err, &coded) {
			return err
		}
		return types.NewError(types.CodeOAuthDenied, "authorization was not completed", err)
	}

	code, err := parseCallback(responseURL, flowID)
	if err != nil {
		return err
	}

	var stored string
	ok, err := s.session.Get(ctx, vkey, &stored)
	if err != nil || !ok {
		return types.NewError(types.CodeOAuthProtocol, "authorization request expired", err)
	}

	tok, err := conf.Exchange(s.clientCtx(ctx), code, oauth2.VerifierOption(stored))
	if err != nil {
		return types.NewError(types.CodeTokenExchange, "token exchange failed: "+exchangeDetail(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cred := Credential{
		Type:    types.KindOAuth,
		Access:  tok.AccessToken,
		Refresh: tok.RefreshToken,
		Expires: s.expiresAt(tok),
	}
	if err := s.save(ctx, cred); err != nil {
		return err
	}
	slog.Info("OAuth flow completed", "flow_id", flowID, "expires", cred.Expires)
	return nil
}

func parseCallback(responseURL, flowID string) (string, error) {
	u, err := url.Parse(responseURL)
	if err != nil {
		return "", types.NewError(types.CodeOAuthProtocol, "invalid redirect URL", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", types.NewError(types.CodeOAuthDenied, "OAuth error: "+e, nil)
	}
	if state := q.Get("state"); state != flowID {
		return "", types.NewError(types.CodeOAuthProtocol, "state mismatch", nil)
	}
	code := q.Get("code")
	if code == "" {
		return "", types.NewError(types.CodeOAuthProtocol, "no authorization code received", nil)
	}
	return code, nil
}

func exchangeDetail(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && len(re.Body) > 0 {
		return strings.TrimSpace(string(re.Body))
	}
	return err.Error()
}

func (s *Store) oauthConfig(redirectURL string) *oauth2.Config {
	conf := &oauth2.Config{
		ClientID:    s.oauth.ClientID,
		RedirectURL: redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.oauth.AuthURL,
			TokenURL:  s.oauth.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if s.oauth.Scope != "" {
		conf.Scopes = []string{s.oauth.Scope}
	}
	return conf
}

func (s *Store) clientCtx(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// expiresAt converts the token lifetime to epoch ms on the store clock. A
// response without expires_in yields 0, so the token is refreshed on next use.
func (s *Store) expiresAt(tok *oauth2.Token) int64 {
	if tok.ExpiresIn > 0 {
		return s.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UnixMilli()
	}
	return 0
}
