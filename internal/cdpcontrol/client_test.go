package cdpcontrol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgnsrekt/tabmark/internal/types"
)

func snapshotEval(t *testing.T, url, title, html string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"ok": true, "data": map[string]string{"url": url, "title": title, "html": html}})
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	return string(b)
}

func TestListTabsKeepsCurrentWindow(t *testing.T) {
	f := newFakeBrowser(t, []fakeTarget{
		{ID: "A", Type: "page", Title: "Active", URL: "https://a.example/", WindowID: 7},
		{ID: "SW", Type: "service_worker", URL: "https://a.example/sw.js", WindowID: 7},
		{ID: "B", Type: "page", Title: "Other window", URL: "https://b.example/", WindowID: 9},
		{ID: "C", Type: "page", Title: "Same window", URL: "chrome://settings", WindowID: 7},
	})

	c := NewClient(f.srv.URL, time.Second)
	t.Cleanup(func() { _ = c.Close() })

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(tabs) != 2 {
		t.Fatalf("ListTabs() returned %d tabs, want 2: %+v", len(tabs), tabs)
	}
	if tabs[0].ID != "A" || tabs[1].ID != "C" {
		t.Fatalf("ListTabs() order = [%s %s], want [A C]", tabs[0].ID, tabs[1].ID)
	}
	if tabs[1].Fetchable() {
		t.Fatalf("chrome:// tab reported fetchable")
	}
}

func TestCurrentWindowUnknownKeepsAll(t *testing.T) {
	tabs := []types.TabInfo{{ID: "A"}, {ID: "B", WindowID: 3}}
	if got := currentWindow(tabs); len(got) != 2 {
		t.Fatalf("currentWindow() = %d tabs, want 2", len(got))
	}
	if got := currentWindow(nil); len(got) != 0 {
		t.Fatalf("currentWindow(nil) = %d tabs, want 0", len(got))
	}
}

func TestSnapshotAttachesEvaluatesAndDetaches(t *testing.T) {
	f := newFakeBrowser(t, []fakeTarget{
		{ID: "A", Type: "page", URL: "https://a.example/", WindowID: 1},
	})
	f.targets[0].Eval = snapshotEval(t, "https://a.example/", "A page", "<html><body>hi</body></html>")

	c := NewClient(f.srv.URL, time.Second)
	t.Cleanup(func() { _ = c.Close() })

	snap, err := c.Snapshot(context.Background(), "A")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Title != "A page" || snap.HTML != "<html><body>hi</body></html>" {
		t.Fatalf("Snapshot() = %+v", snap)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detached) != 1 || f.detached[0] != "S-A" {
		t.Fatalf("detached sessions = %v, want [S-A]", f.detached)
	}
}

func TestSnapshotErrors(t *testing.T) {
	f := newFakeBrowser(t, []fakeTarget{
		{ID: "A", Type: "page", URL: "https://a.example/", Eval: `{"ok":false,"error_code":"EVAL_FAILURE","error_message":"boom"}`},
		{ID: "B", Type: "page", URL: "https://b.example/", Eval: "not json"},
	})
	c := NewClient(f.srv.URL, time.Second)
	t.Cleanup(func() { _ = c.Close() })

	tests := []struct {
		tab  string
		code string
	}{
		{tab: "A", code: types.CodeEvalFailure},
		{tab: "B", code: types.CodeEvalFailure},
		{tab: "missing", code: types.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.tab, func(t *testing.T) {
			_, err := c.Snapshot(context.Background(), tt.tab)
			if err == nil {
				t.Fatalf("Snapshot(%q) = nil error", tt.tab)
			}
			if got := types.CodeOf(err); got != tt.code {
				t.Fatalf("Snapshot(%q) code = %q, want %q (%v)", tt.tab, got, tt.code, err)
			}
		})
	}
}

func TestOpenURLCreatesTarget(t *testing.T) {
	f := newFakeBrowser(t, nil)
	c := NewClient(f.srv.URL, time.Second)
	t.Cleanup(func() { _ = c.Close() })

	if err := c.OpenURL(context.Background(), "https://auth.example/authorize?x=1"); err != nil {
		t.Fatalf("OpenURL() error = %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) != 1 || f.created[0] != "https://auth.example/authorize?x=1" {
		t.Fatalf("created targets = %v", f.created)
	}
}

func TestConnectWithoutURL(t *testing.T) {
	c := NewClient("", time.Second)
	err := c.Connect(context.Background())
	if !types.HasCode(err, types.CodeCDPUnavailable) {
		t.Fatalf("Connect() = %v, want %s", err, types.CodeCDPUnavailable)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var out struct {
		N int `json:"n"`
	}
	if err := decodeEnvelope(`{"ok":true,"data":{"n":3}}`, &out); err != nil || out.N != 3 {
		t.Fatalf("decodeEnvelope() = %v, n=%d", err, out.N)
	}
	if err := decodeEnvelope(`{"ok":false,"error_message":"x"}`, nil); !types.HasCode(err, types.CodeEvalFailure) {
		t.Fatalf("decodeEnvelope() error = %v, want default EVAL_FAILURE", err)
	}
}
