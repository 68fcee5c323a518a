package document

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tabmark/internal/types"
)

var exportTime = time.Date(2025, time.January, 6, 15, 4, 5, 0, time.UTC)

func TestRenderHeader(t *testing.T) {
	got := Render("## Research\n- [a](https://a)\n", 5, exportTime)
	want := "# Browser Tabs Export\n\n" +
		"> **Exported:** Monday, January 6, 2025 at 03:04 PM\n" +
		"> **Total Tabs:** 5\n" +
		"> **Window:** Current Window\n\n" +
		"---\n\n" +
		"## Research\n- [a](https://a)\n"
	if got != want {
		t.Fatalf("Render() =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderFallbackContainsEveryTabOnce(t *testing.T) {
	records := []types.TabRecord{
		{Title: "Go", URL: "https://go.dev/doc/"},
		{Title: "Docs", URL: "https://www.example.com/a"},
		{Title: "", URL: "https://example.com/b"},
		{Title: "New Tab", URL: "chrome://newtab/"},
		{Title: "Blank", URL: ""},
		{Title: "Go again", URL: "https://go.dev/blog/"},
		{Title: "Example c", URL: "https://example.com/c"},
	}
	doc := RenderFallback(records, exportTime)

	for _, r := range records {
		line := "](" + EscapeURL(r.URL) + ")\n"
		if r.URL == "" {
			line = "]()\n"
		}
		if n := strings.Count(doc, line); n != 1 {
			t.Fatalf("url %q appears %d times in:\n%s", r.URL, n, doc)
		}
	}
	if !strings.Contains(doc, "> **Total Tabs:** 7\n") {
		t.Fatalf("missing tab total:\n%s", doc)
	}
	if !strings.Contains(doc, "## All Tabs\n\n### example.com\n\n") {
		t.Fatalf("largest group must come first:\n%s", doc)
	}
	if !strings.Contains(doc, "- [Untitled](https://example.com/b)\n") {
		t.Fatalf("missing Untitled default:\n%s", doc)
	}
}

func TestRenderFallbackDeterministic(t *testing.T) {
	records := []types.TabRecord{
		{Title: "a", URL: "https://a.example/"},
		{Title: "b", URL: "https://b.example/"},
		{Title: "c", URL: "https://c.example/"},
	}
	first := RenderFallback(records, exportTime)
	for i := 0; i < 10; i++ {
		if got := RenderFallback(records, exportTime); got != first {
			t.Fatalf("RenderFallback() not deterministic")
		}
	}
}

func TestGroupsOrder(t *testing.T) {
	records := []types.TabRecord{
		{URL: "https://b.example/1"},
		{URL: "https://a.example/1"},
		{URL: "https://a.example/2"},
		{URL: "https://c.example/1"},
		{URL: "not a url at all"},
		{URL: "https://WWW.C.example/2"},
	}
	groups := Groups(records)
	var got []string
	for _, g := range groups {
		got = append(got, g.Domain)
	}
	want := []string{"a.example", "c.example", "b.example", "Other"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Groups() domains = %v, want %v", got, want)
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://www.github.com/golang/go", want: "github.com"},
		{url: "http://news.www.example.org/", want: "news.www.example.org"},
		{url: "https://localhost:8080/x", want: "localhost"},
		{url: "file:///tmp/a.html", want: "Other"},
		{url: "", want: "Other"},
		{url: "http://[::1", want: "Other"},
	}
	for _, tt := range tests {
		if got := Domain(tt.url); got != tt.want {
			t.Fatalf("Domain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestEscaping(t *testing.T) {
	if got := EscapeLinkText("[draft] notes [v2]"); got != `\[draft\] notes \[v2\]` {
		t.Fatalf("EscapeLinkText() = %q", got)
	}
	if got := EscapeURL("https://en.wikipedia.org/wiki/Go_(language) x\ty"); got != "https://en.wikipedia.org/wiki/Go_(language%29%20x%20y" {
		t.Fatalf("EscapeURL() = %q", got)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(exportTime); got != "tabs-export-2025-01-06-15-04-05.md" {
		t.Fatalf("Filename() = %q", got)
	}
	// 15:04:05 UTC is 10:04:05 in UTC-5; the name still carries UTC.
	est := exportTime.In(time.FixedZone("EST", -5*60*60))
	if got := Filename(est); got != "tabs-export-2025-01-06-15-04-05.md" {
		t.Fatalf("Filename() in EST = %q", got)
	}
}
