package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type tabCountOutput struct {
		Body struct {
			Count int `json:"count"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "tab-count", Method: http.MethodGet, Path: "/api/v1/tabs/count", Summary: "Count tabs in the current window", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabCountOutput, error) {
			n, err := svc.TabCount(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabCountOutput{}
			out.Body.Count = n
			return out, nil
		})
}
