package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabmark/internal/auth"
)

type authStateOutput struct {
	Body auth.State
}

type authStatusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func statusOutput(status string) *authStatusOutput {
	out := &authStatusOutput{}
	out.Body.Status = status
	return out
}

func registerAuthHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-auth", Method: http.MethodGet, Path: "/api/v1/auth", Summary: "Get authentication state", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct{}) (*authStateOutput, error) {
			st, err := svc.AuthState(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &authStateOutput{Body: st}, nil
		})

	type apiKeyInput struct {
		Body struct {
			APIKey string `json:"api_key" doc:"Messages API key; validated with a minimal request before it is stored"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "save-api-key", Method: http.MethodPost, Path: "/api/v1/auth/api-key", Summary: "Validate and store an API key", Tags: []string{"Auth"}},
		func(ctx context.Context, input *apiKeyInput) (*authStatusOutput, error) {
			if err := svc.SaveAPIKey(ctx, input.Body.APIKey); err != nil {
				return nil, mapErr(err)
			}
			return statusOutput("authenticated"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "oauth-login", Method: http.MethodPost, Path: "/api/v1/auth/oauth", Summary: "Run the OAuth login flow", Description: "Opens the authorization page in a new browser tab and blocks until the provider redirects back to /oauth/callback.", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct{}) (*authStatusOutput, error) {
			if err := svc.LoginOAuth(ctx); err != nil {
				return nil, mapErr(err)
			}
			return statusOutput("authenticated"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "logout", Method: http.MethodDelete, Path: "/api/v1/auth", Summary: "Remove the stored credential", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct{}) (*authStatusOutput, error) {
			if err := svc.Logout(ctx); err != nil {
				return nil, mapErr(err)
			}
			return statusOutput("logged_out"), nil
		})
}
