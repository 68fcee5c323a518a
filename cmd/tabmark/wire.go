package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/dgnsrekt/tabmark/internal/auth"
	"github.com/dgnsrekt/tabmark/internal/cdp"
	"github.com/dgnsrekt/tabmark/internal/cdpcontrol"
	"github.com/dgnsrekt/tabmark/internal/config"
	"github.com/dgnsrekt/tabmark/internal/controller"
	"github.com/dgnsrekt/tabmark/internal/download"
	"github.com/dgnsrekt/tabmark/internal/export"
	"github.com/dgnsrekt/tabmark/internal/llm"
	"github.com/dgnsrekt/tabmark/internal/metrics"
	"github.com/dgnsrekt/tabmark/internal/storage"
)

// tabSource is what both CDP drivers provide.
type tabSource interface {
	export.TabSource
	auth.Opener
	Close() error
}

// app holds the wired components for one process.
type app struct {
	cfg     *config.Config
	tabs    tabSource
	store   storage.Store
	creds   *auth.Store
	flow    *auth.LoopbackFlow
	exports *export.Coordinator
	svc     *controller.Service
	metrics *metrics.Collector
	blobs   *download.Blobs

	closers []func() error
}

func newTabSource(cfg *config.Config) tabSource {
	if cfg.CDPDriver == config.DriverChromedp {
		return cdp.NewClient(cfg.CDPURL(), cfg.EvalTimeout())
	}
	return cdpcontrol.NewClient(cfg.CDPURL(), cfg.EvalTimeout())
}

func openStore(cfg *config.Config) (storage.Store, func() error, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	default:
		s, err := storage.NewFileStore(filepath.Join(cfg.StorageDir, "credentials"))
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return s, func() error { return nil }, nil
	}
}

// wire builds the component graph. opener overrides how the OAuth flow sends
// the user to the authorization page; nil opens a browser tab over CDP.
// withBlobs additionally serves exports from memory under /downloads.
func wire(cfg *config.Config, opener auth.Opener, withBlobs bool) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewCollector("tabmark")}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	a.tabs = newTabSource(cfg)
	a.closers = append(a.closers, a.tabs.Close)
	if opener == nil {
		opener = a.tabs
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	client := llm.NewClient(llm.Config{
		BaseURL:   cfg.LLMBaseURL,
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
		Version:   cfg.LLMVersion,
	}, httpClient)

	a.flow = auth.NewLoopbackFlow(cfg.RedirectURL(), opener)
	a.creds = auth.NewStore(store, storage.NewMemoryStore(), client, a.flow, auth.OAuthConfig{
		AuthURL:  cfg.OAuthAuthURL,
		TokenURL: cfg.OAuthTokenURL,
		ClientID: cfg.OAuthClientID,
		Scope:    cfg.OAuthScope,
	}, auth.WithHTTPClient(httpClient))

	var saver download.Saver = download.NewDirSaver(cfg.DownloadDir)
	if withBlobs {
		a.blobs = download.NewBlobs("/downloads", cfg.DownloadGrace())
		saver = download.Tee{saver, a.blobs}
	}

	a.exports = export.NewCoordinator(a.tabs, a.creds, llm.NewOrganizer(client, a.metrics), saver, a.metrics)
	a.svc = controller.NewService(a.creds, a.exports, cfg.OAuthTimeout())
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Debug("close failed", "error", err)
		}
	}
}

// printOpener shows the authorization URL and also tries to open it in the
// connected browser.
func printOpener(tabs func() tabSource) auth.Opener {
	return auth.OpenerFunc(func(ctx context.Context, url string) error {
		fmt.Printf("Open this URL to authorize tabmark:\n\n  %s\n\n", url)
		if err := tabs().OpenURL(ctx, url); err != nil {
			slog.Debug("could not open authorization tab", "error", err)
		}
		return nil
	})
}
