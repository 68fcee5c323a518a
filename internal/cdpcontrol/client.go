package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabmark/internal/types"
)

// Client lists the tabs of the current browser window and snapshots their
// DOM over a raw CDP connection.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu  sync.Mutex
	cdp *rawCDP
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
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
	if c.cdpURL == "" {
		return types.NewError(types.CodeCDPUnavailable, "missing CDP URL", nil)
	}
	if c.cdp != nil && c.cdp.connected() {
		return nil
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return types.NewError(types.CodeCDPUnavailable, "connect to CDP failed", err)
	}
	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp != nil {
		c.cdp.close()
		c.cdp = nil
	}
	return nil
}

// conn returns a connected raw client, reconnecting after a dropped socket.
func (c *Client) conn(ctx context.Context) (*rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.cdp, nil
}

// ListTabs returns the page targets of the current window. The current window
// is the one holding the most recently activated page. Tabs come back in
// /json/list order, which is activation recency rather than tab-strip order.
func (c *Client) ListTabs(ctx context.Context) ([]types.TabInfo, error) {
	cdp, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	targets, err := cdp.listTargets(ctx)
	if err != nil {
		return nil, types.NewError(types.CodeCDPUnavailable, "failed to list targets", err)
	}

	tabs := make([]types.TabInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		windowID, err := cdp.windowForTarget(ctx, t.TargetID)
		if err != nil {
			slog.Debug("cdpcontrol window lookup failed", "target_id", t.TargetID, "error", err)
		}
		tabs = append(tabs, types.TabInfo{
			ID:       string(t.TargetID),
			Title:    t.Title,
			URL:      t.URL,
			WindowID: int64(windowID),
		})
	}

	out := currentWindow(tabs)
	slog.Debug("cdpcontrol list tabs", "targets", len(targets), "pages", len(tabs), "window_tabs", len(out))
	return out, nil
}

// currentWindow keeps the tabs sharing the first tab's window. When the
// window could not be resolved every page is kept.
func currentWindow(tabs []types.TabInfo) []types.TabInfo {
	if len(tabs) == 0 || tabs[0].WindowID == 0 {
		return tabs
	}
	current := tabs[0].WindowID
	out := make([]types.TabInfo, 0, len(tabs))
	for _, t := range tabs {
		if t.WindowID == current {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot captures the live DOM of a tab.
func (c *Client) Snapshot(ctx context.Context, tabID string) (types.PageSnapshot, error) {
	var out types.PageSnapshot
	if err := c.evalOnTab(ctx, target.ID(tabID), jsSnapshot(), &out); err != nil {
		return types.PageSnapshot{}, err
	}
	return out, nil
}

// OpenURL opens url in a new tab of the browser.
func (c *Client) OpenURL(ctx context.Context, url string) error {
	cdp, err := c.conn(ctx)
	if err != nil {
		return err
	}
	id, err := cdp.createTarget(ctx, url)
	if err != nil {
		return types.NewError(types.CodeCDPUnavailable, "open tab failed", err)
	}
	slog.Debug("cdpcontrol opened tab", "target_id", id)
	return nil
}

func (c *Client) evalOnTab(ctx context.Context, targetID target.ID, js string, out any) error {
	cdp, err := c.conn(ctx)
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	sessionID, err := cdp.attachToTarget(evalCtx, targetID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no target") {
			return types.NewError(types.CodeNotFound, "tab not found: "+string(targetID), err)
		}
		return types.NewError(types.CodeCDPUnavailable, "attach to target failed", err)
	}
	defer func() {
		detachCtx, detachCancel := context.WithTimeout(context.Background(), time.Second)
		defer detachCancel()
		if err := cdp.detachFromTarget(detachCtx, sessionID); err != nil {
			slog.Debug("cdpcontrol detach failed", "target_id", targetID, "error", err)
		}
	}()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Debug("cdpcontrol eval failed", "target_id", targetID, "error", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return types.NewError(types.CodeEvalTimeout, "evaluation timed out", err)
		}
		return types.NewError(types.CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return types.NewError(types.CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = types.CodeEvalFailure
		}
		return types.NewError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return types.NewError(types.CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

func jsSnapshot() string {
	return wrapJSEval(`var root = document.documentElement;
return JSON.stringify({ok:true,data:{
url: String(window.location.href),
title: document.title || "",
html: root ? root.outerHTML : ""
}});`)
}

func wrapJSEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + types.CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}
