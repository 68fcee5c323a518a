package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgnsrekt/tabmark/internal/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "tabmark: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tabmark",
		Usage: "export the tabs of a browser window as an organized markdown document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"TABMARK_CONFIG"}},
			&cli.IntFlag{Name: "cdp-port", Usage: "Chromium remote debugging port (overrides CHROMIUM_CDP_PORT)"},
			&cli.StringFlag{Name: "download-dir", Usage: "directory exports are written to (overrides TABMARK_DOWNLOAD_DIR)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides TABMARK_LOG_LEVEL)"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("logger setup failed: %w", err)
			}
			c.App.Metadata = map[string]any{"config": cfg}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the controller HTTP API",
				Action: serveAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "port-fallback", Value: true, Usage: "bind the next free port when the configured one is taken"},
				},
			},
			{Name: "export", Usage: "export the current window now", Action: exportAction},
			{Name: "tabs", Usage: "print the number of tabs in the current window", Action: tabsAction},
			{Name: "status", Usage: "show the authentication state", Action: statusAction},
			{
				Name:   "login",
				Usage:  "store an API key or sign in with OAuth",
				Action: loginAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-key", Usage: "API key to validate and store", EnvVars: []string{"TABMARK_API_KEY"}},
					&cli.BoolFlag{Name: "oauth", Usage: "run the browser OAuth flow"},
				},
			},
			{Name: "logout", Usage: "remove the stored credential", Action: logoutAction},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("TABMARK_CONFIG", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("cdp-port") {
		cfg.CDPPort = c.Int("cdp-port")
	}
	if c.IsSet("download-dir") {
		cfg.DownloadDir = c.String("download-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}
