package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dgnsrekt/tabmark/internal/netutil"
	"github.com/urfave/cli/v2"
)

func exportAction(c *cli.Context) error {
	a, err := wire(configFrom(c), nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.Export(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d tabs to %s\n", res.TabCount, res.Path)
	if res.Fallback {
		fmt.Println("The organizer was unavailable; tabs are grouped by domain.")
	}
	return nil
}

func tabsAction(c *cli.Context) error {
	a, err := wire(configFrom(c), nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.TabCount(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func statusAction(c *cli.Context) error {
	a, err := wire(configFrom(c), nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.svc.AuthState(c.Context)
	if err != nil {
		return err
	}
	switch {
	case !st.Authenticated:
		fmt.Println("Not authenticated. Run 'tabmark login --api-key KEY' or 'tabmark login --oauth'.")
	case st.Expired && st.ExpiresAt != nil:
		fmt.Printf("Authenticated (%s, access token expired at %s; it will be refreshed on next use)\n", st.Kind, st.ExpiresAt.Local().Format(time.RFC1123))
	default:
		fmt.Printf("Authenticated (%s)\n", st.Kind)
	}
	return nil
}

func loginAction(c *cli.Context) error {
	cfg := configFrom(c)
	key, useOAuth := c.String("api-key"), c.Bool("oauth")
	if (key == "") == !useOAuth {
		return errors.New("pass exactly one of --api-key or --oauth")
	}

	if key != "" {
		a, err := wire(cfg, nil, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.svc.SaveAPIKey(c.Context, key); err != nil {
			return err
		}
		fmt.Println("API key saved.")
		return nil
	}

	// The callback server must be listening before the redirect URL is built.
	ln, err := netutil.Listen(cfg.BindAddr, 10, true)
	if err != nil {
		return err
	}
	cfg.BindAddr = ln.Addr().String()

	var a *app
	a, err = wire(cfg, printOpener(func() tabSource { return a.tabs }), false)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.Handle("/oauth/callback", a.flow)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			fmt.Println("callback server failed:", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	if err := a.svc.LoginOAuth(c.Context); err != nil {
		return err
	}
	fmt.Println("Signed in.")
	return nil
}

func logoutAction(c *cli.Context) error {
	a, err := wire(configFrom(c), nil, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.svc.Logout(c.Context); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
