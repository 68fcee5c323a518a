package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabmark/internal/export"
)

func registerExportHandlers(api huma.API, svc Service) {
	type exportOutput struct {
		Body export.Result
	}
	huma.Register(api, huma.Operation{OperationID: "export-tabs", Method: http.MethodPost, Path: "/api/v1/export", Summary: "Export the current window's tabs", Description: "Builds the organized markdown document, or the per-domain fallback when the organizer fails, and saves it.", Tags: []string{"Export"}},
		func(ctx context.Context, input *struct{}) (*exportOutput, error) {
			res, err := svc.Export(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &exportOutput{Body: res}, nil
		})

	type statusOutput struct {
		Body export.Status
	}
	huma.Register(api, huma.Operation{OperationID: "export-status", Method: http.MethodGet, Path: "/api/v1/export/status", Summary: "Get export progress", Tags: []string{"Export"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			return &statusOutput{Body: svc.ExportStatus()}, nil
		})
}
