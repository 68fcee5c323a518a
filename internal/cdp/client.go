package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/tabmark/internal/types"
)

const snapshotJS = `(function(){
var root = document.documentElement;
return {url: String(window.location.href), title: document.title || "", html: root ? root.outerHTML : ""};
})()`

// Client is the chromedp-backed tab source. The browser context owns a
// helper tab; user tabs are attached only for the duration of one snapshot
// and are detached, never closed, afterwards.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	return &Client{cdpURL: cdpURL, evalTimeout: evalTimeout}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.NewError(types.CodeCDPUnavailable, "connect cancelled", err)
	}
	if c.browserCtx != nil && c.browserCtx.Err() == nil {
		return nil
	}
	if c.cdpURL == "" {
		return types.NewError(types.CodeCDPUnavailable, "missing CDP URL", nil)
	}
	slog.Info("Connecting to Chromium", "url", c.cdpURL, "driver", "chromedp")

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.browserStop = chromedp.NewContext(c.allocCtx)
	if err := chromedp.Run(c.browserCtx); err != nil {
		c.browserStop()
		c.allocCancel()
		c.browserCtx = nil
		return types.NewError(types.CodeCDPUnavailable, "failed to connect to browser", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Cancel waits for the helper tab to close. User tabs are never held.
	if c.browserCtx != nil {
		if err := chromedp.Cancel(c.browserCtx); err != nil {
			slog.Debug("Helper tab close failed", "error", err)
		}
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.browserCtx = nil
	slog.Info("CDP client closed")
	return nil
}

// ownTarget is the helper tab chromedp opens for the browser connection.
func (c *Client) ownTarget() target.ID {
	if cc := chromedp.FromContext(c.browserCtx); cc != nil && cc.Target != nil {
		return cc.Target.TargetID
	}
	return ""
}

func (c *Client) browserExecutor(ctx context.Context) context.Context {
	return cdpproto.WithExecutor(ctx, chromedp.FromContext(c.browserCtx).Browser)
}

// ListTabs returns the page targets sharing the first page's window, in the
// order Target.getTargets reports them. That order is not the tab strip.
func (c *Client) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "failed to enumerate targets", err)
	}

	own := c.ownTarget()
	exec := c.browserExecutor(ctx)
	tabs := make([]types.TabInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" || t.TargetID == own {
			continue
		}
		windowID, _, err := browser.GetWindowForTarget().WithTargetID(t.TargetID).Do(exec)
		if err != nil {
			slog.Debug("Window lookup failed", "target_id", t.TargetID, "error", err)
		}
		tabs = append(tabs, types.TabInfo{
			ID:       string(t.TargetID),
			Title:    t.Title,
			URL:      t.URL,
			WindowID: int64(windowID),
		})
	}

	if len(tabs) == 0 || tabs[0].WindowID == 0 {
		return tabs, nil
	}
	out := tabs[:0:0]
	for _, t := range tabs {
		if t.WindowID == tabs[0].WindowID {
			out = append(out, t)
		}
	}
	return out, nil
}

// attach returns a chromedp context bound to an existing tab.
func (c *Client) attach(ctx context.Context, id target.ID) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, nil, err
	}
	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(id))
	// Attach on the tab context itself so a per-call timeout cannot cut the
	// session setup short.
	if err := chromedp.Run(tabCtx); err != nil {
		c.release(tabCtx, cancel)
		return nil, nil, types.NewError(types.CodeNotFound, "tab not found: "+string(id), err)
	}
	return tabCtx, func() { c.release(tabCtx, cancel) }, nil
}

// release detaches from the tab and drops chromedp's handle on it before
// cancelling. chromedp closes any target it still holds when its context is
// cancelled, and these tabs belong to the user.
func (c *Client) release(tabCtx context.Context, cancel context.CancelFunc) {
	if cc := chromedp.FromContext(tabCtx); cc != nil && cc.Target != nil {
		detachCtx, stop := context.WithTimeout(context.Background(), time.Second)
		if err := target.DetachFromTarget().WithSessionID(cc.Target.SessionID).Do(cdpproto.WithExecutor(detachCtx, cc.Browser)); err != nil {
			slog.Debug("Detach failed", "target_id", cc.Target.TargetID, "error", err)
		}
		stop()
		cc.Target = nil
	}
	cancel()
}

// Snapshot captures the live DOM of a tab.
func (c *Client) Snapshot(ctx context.Context, tabID string) (types.PageSnapshot, error) {
	tabCtx, release, err := c.attach(ctx, target.ID(tabID))
	if err != nil {
		return types.PageSnapshot{}, err
	}
	defer release()

	evalCtx, cancel := context.WithTimeout(tabCtx, c.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var snap types.PageSnapshot
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(snapshotJS, &snap)); err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			return types.PageSnapshot{}, types.NewError(types.CodeEvalTimeout, "evaluation timed out", err)
		}
		return types.PageSnapshot{}, types.NewError(types.CodeEvalFailure, fmt.Sprintf("evaluate on %s failed", tabID), err)
	}
	return snap, nil
}

// OpenURL opens url in a new browser tab.
func (c *Client) OpenURL(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	id, err := target.CreateTarget(url).Do(c.browserExecutor(ctx))
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "open tab failed", err)
	}
	slog.Debug("Opened tab", "target_id", id)
	return nil
}
