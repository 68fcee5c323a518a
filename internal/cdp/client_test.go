package cdp

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/dgnsrekt/tabmark/internal/types"
)

func TestConnectWithoutURL(t *testing.T) {
	c := NewClient("", time.Second)
	defer c.Close()

	err := c.Connect(context.Background())
	if !types.HasCode(err, types.CodeCDPUnavailable) {
		t.Fatalf("expected %s, got %v", types.CodeCDPUnavailable, err)
	}
	if _, err := c.ListTabs(context.Background()); !types.HasCode(err, types.CodeCDPUnavailable) {
		t.Fatalf("ListTabs: expected %s, got %v", types.CodeCDPUnavailable, err)
	}
	if _, err := c.Snapshot(context.Background(), "T1"); !types.HasCode(err, types.CodeCDPUnavailable) {
		t.Fatalf("Snapshot: expected %s, got %v", types.CodeCDPUnavailable, err)
	}
}

func TestConnectCancelled(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx); !types.HasCode(err, types.CodeCDPUnavailable) {
		t.Fatalf("expected %s, got %v", types.CodeCDPUnavailable, err)
	}
}

func TestCloseBeforeConnect(t *testing.T) {
	c := NewClient("http://127.0.0.1:9222", time.Second)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func userPages() []fakePage {
	return []fakePage{
		{ID: "T1", Type: "page", Title: "Go", URL: "https://go.dev/", WindowID: 1, HTML: "<html><body>go</body></html>"},
		{ID: "SW", Type: "service_worker", URL: "https://go.dev/sw.js", WindowID: 1},
		{ID: "T2", Type: "page", Title: "Docs", URL: "https://pkg.go.dev/", WindowID: 1},
		{ID: "T3", Type: "page", Title: "Other", URL: "https://example.com/", WindowID: 7},
	}
}

func TestSnapshotNeverClosesUserTabs(t *testing.T) {
	f := newFakeChromium(t, 7, userPages()...)
	c := NewClient(f.srv.URL, 5*time.Second)

	snap, err := c.Snapshot(context.Background(), "T1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.URL != "https://go.dev/" || snap.Title != "Go" || snap.HTML != "<html><body>go</body></html>" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := c.Snapshot(context.Background(), "T2"); err != nil {
		t.Fatalf("Snapshot T2: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, id := range f.closedTargets() {
		if id != "HELPER" {
			t.Fatalf("closed user tab %s, closed=%v", id, f.closedTargets())
		}
	}
	detached := f.detachedSessions()
	for _, sid := range []string{"S-T1", "S-T2"} {
		if !slices.Contains(detached, sid) {
			t.Fatalf("session %s not detached, detached=%v", sid, detached)
		}
	}
}

func TestSnapshotUnknownTab(t *testing.T) {
	f := newFakeChromium(t, 1, userPages()...)
	c := NewClient(f.srv.URL, 5*time.Second)
	defer c.Close()

	if _, err := c.Snapshot(context.Background(), "GONE"); !types.HasCode(err, types.CodeNotFound) {
		t.Fatalf("expected %s, got %v", types.CodeNotFound, err)
	}
	if n := f.seen("Target.closeTarget"); n != 0 {
		t.Fatalf("closeTarget sent %d times", n)
	}
}

func TestListTabsScopesToFirstWindow(t *testing.T) {
	// The helper tab sits first in window 7; skipping it leaves T1's window.
	f := newFakeChromium(t, 7, userPages()...)
	c := NewClient(f.srv.URL, 5*time.Second)
	defer c.Close()

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("ListTabs: %v", err)
	}
	var ids []string
	for _, tab := range tabs {
		ids = append(ids, tab.ID)
		if tab.WindowID != 1 {
			t.Fatalf("tab %s from window %d", tab.ID, tab.WindowID)
		}
	}
	if !slices.Equal(ids, []string{"T1", "T2"}) {
		t.Fatalf("expected [T1 T2], got %v", ids)
	}
	if tabs[1].Title != "Docs" || tabs[1].URL != "https://pkg.go.dev/" {
		t.Fatalf("unexpected tab %+v", tabs[1])
	}
}

func TestOpenURLCreatesTarget(t *testing.T) {
	f := newFakeChromium(t, 1, userPages()...)
	c := NewClient(f.srv.URL, 5*time.Second)
	defer c.Close()

	if err := c.OpenURL(context.Background(), "https://claude.ai/oauth"); err != nil {
		t.Fatalf("OpenURL: %v", err)
	}
	created := f.createdURLs()
	if len(created) != 2 || created[1] != "https://claude.ai/oauth" {
		t.Fatalf("unexpected created targets %v", created)
	}
}
