package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/tabmark/internal/auth"
	"github.com/dgnsrekt/tabmark/internal/download"
	"github.com/dgnsrekt/tabmark/internal/export"
	"github.com/dgnsrekt/tabmark/internal/metrics"
	"github.com/dgnsrekt/tabmark/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	AuthState(ctx context.Context) (auth.State, error)
	SaveAPIKey(ctx context.Context, key string) error
	LoginOAuth(ctx context.Context) error
	Logout(ctx context.Context) error
	TabCount(ctx context.Context) (int, error)
	Export(ctx context.Context) (export.Result, error)
	ExportStatus() export.Status
}

// Options carries the plain HTTP routes mounted next to the huma operations.
// Nil fields leave the route unmounted.
type Options struct {
	Downloads     *download.Blobs
	OAuthCallback http.Handler
	Metrics       *metrics.Collector
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if opts.Metrics != nil {
		router.Use(metricsMiddleware(opts.Metrics))
	}
	router.Use(middleware.Recoverer)

	// huma serves the OpenAPI document at /openapi.json and docs at /docs.
	api := humachi.New(router, huma.DefaultConfig("tabmark Controller API", "1.0.0"))

	if opts.Downloads != nil {
		router.Get("/downloads/{name}", downloadHandler(opts.Downloads))
	}
	if opts.OAuthCallback != nil {
		router.Handle("/oauth/callback", opts.OAuthCallback)
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}

	registerMiscHandlers(api, svc)
	registerAuthHandlers(api, svc)
	registerExportHandlers(api, svc)

	return router
}

func downloadHandler(blobs *download.Blobs) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		data, ok := blobs.Open(name)
		if !ok {
			http.Error(w, "download not found or expired", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		if _, err := w.Write(data); err != nil {
			slog.Debug("download response write failed", "name", name, "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation, types.CodeInvalidCredential:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotAuthenticated, types.CodeOAuthDenied, types.CodeOAuthProtocol, types.CodeTokenExchange:
			return huma.Error401Unauthorized(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeExportInProgress:
			return huma.Error409Conflict(coded.Message)
		case types.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case types.CodeCDPUnavailable, types.CodeOrganizerUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
