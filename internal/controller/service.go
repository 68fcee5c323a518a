package controller

import (
	"context"
	"strings"
	"time"

	"github.com/dgnsrekt/tabmark/internal/auth"
	"github.com/dgnsrekt/tabmark/internal/export"
	"github.com/dgnsrekt/tabmark/internal/types"
)

// Service is the control surface shared by the HTTP API and the CLI.
type Service struct {
	creds        *auth.Store
	exports      *export.Coordinator
	oauthTimeout time.Duration
}

func NewService(creds *auth.Store, exports *export.Coordinator, oauthTimeout time.Duration) *Service {
	return &Service{creds: creds, exports: exports, oauthTimeout: oauthTimeout}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return types.NewError(types.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func (s *Service) AuthState(ctx context.Context) (auth.State, error) {
	return s.creds.State(ctx)
}

func (s *Service) SaveAPIKey(ctx context.Context, key string) error {
	if err := s.requireNonEmpty(key, "api_key"); err != nil {
		return err
	}
	return s.creds.SaveAPIKey(ctx, key)
}

// LoginOAuth runs the browser authorization flow, bounded by the configured
// OAuth timeout.
func (s *Service) LoginOAuth(ctx context.Context) error {
	if s.oauthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.oauthTimeout)
		defer cancel()
	}
	return s.creds.InitiateOAuth(ctx)
}

func (s *Service) Logout(ctx context.Context) error {
	return s.creds.Logout(ctx)
}

func (s *Service) TabCount(ctx context.Context) (int, error) {
	return s.exports.TabCount(ctx)
}

func (s *Service) Export(ctx context.Context) (export.Result, error) {
	return s.exports.Export(ctx)
}

func (s *Service) ExportStatus() export.Status {
	return s.exports.Status()
}
