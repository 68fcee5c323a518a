package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabmark/internal/api"
	"github.com/dgnsrekt/tabmark/internal/netutil"
	"github.com/urfave/cli/v2"
)

func serveAction(c *cli.Context) error {
	cfg := configFrom(c)

	ln, err := netutil.Listen(cfg.BindAddr, 10, c.Bool("port-fallback"))
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		return err
	}
	cfg.BindAddr = ln.Addr().String()

	slog.Info("tabmark config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"cdp_driver", cfg.CDPDriver,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"storage_backend", cfg.StorageBackend,
		"download_dir", cfg.DownloadDir,
		"llm_model", cfg.LLMModel,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	a, err := wire(cfg, nil, true)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.Close()

	// A browser that is not up yet is not fatal; each request reconnects.
	connectCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	if err := connect(connectCtx, a.tabs); err != nil {
		slog.Warn("CDP not reachable at startup", "cdp_url", cfg.CDPURL(), "error", err)
	}
	cancel()

	h := api.NewServer(a.svc, api.Options{
		Downloads:     a.blobs,
		OAuthCallback: a.flow,
		Metrics:       a.metrics,
	})
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("tabmark listening", "addr", cfg.BindAddr, "docs", "http://"+cfg.BindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("tabmark server failed", "error", err)
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("tabmark shutdown failed", "error", err)
	}
	return nil
}

type connector interface {
	Connect(ctx context.Context) error
}

func connect(ctx context.Context, tabs tabSource) error {
	if c, ok := tabs.(connector); ok {
		return c.Connect(ctx)
	}
	return nil
}
