// Package document renders export documents: the header around an organized
// body, the deterministic per-domain fallback, and the export filename.
package document

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dgnsrekt/tabmark/internal/types"
)

const (
	dateLayout = "Monday, January 2, 2006"
	timeLayout = "03:04 PM"

	otherGroup = "Other"
	untitled   = "Untitled"
)

// Group is the set of tabs sharing a domain in the fallback document.
type Group struct {
	Domain string            `json:"domain"`
	Tabs   []types.TabRecord `json:"tabs"`
}

// Render wraps an organized body with the export header.
func Render(body string, tabCount int, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Browser Tabs Export\n\n")
	fmt.Fprintf(&b, "> **Exported:** %s at %s\n", now.Format(dateLayout), now.Format(timeLayout))
	fmt.Fprintf(&b, "> **Total Tabs:** %d\n", tabCount)
	b.WriteString("> **Window:** Current Window\n\n")
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}

// RenderFallback lists every record as a link, grouped by domain. The output
// depends only on records and now.
func RenderFallback(records []types.TabRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Browser Tabs Export\n\n")
	fmt.Fprintf(&b, "> **Exported:** %s\n", now.Format(dateLayout))
	fmt.Fprintf(&b, "> **Total Tabs:** %d\n\n", len(records))
	b.WriteString("---\n\n")
	b.WriteString("## All Tabs\n\n")

	for _, g := range Groups(records) {
		fmt.Fprintf(&b, "### %s\n\n", g.Domain)
		for _, r := range g.Tabs {
			title := r.Title
			if title == "" {
				title = untitled
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", EscapeLinkText(title), EscapeURL(r.URL))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Groups buckets records by domain. Larger groups come first; equal sizes
// keep the order in which their domain first appeared.
func Groups(records []types.TabRecord) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range records {
		d := Domain(r.URL)
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, Group{Domain: d})
		}
		groups[i].Tabs = append(groups[i].Tabs, r)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return len(groups[a].Tabs) > len(groups[b].Tabs)
	})
	return groups
}

// Domain returns the hostname of rawURL without a leading "www.", or "Other"
// when there is none.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return otherGroup
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return otherGroup
	}
	return host
}

func EscapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func EscapeURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ')':
			b.WriteString("%29")
		case unicode.IsSpace(r):
			b.WriteString("%20")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Filename is the download name for an export made at now. The timestamp is
// always rendered in UTC.
func Filename(now time.Time) string {
	return "tabs-export-" + now.UTC().Format("2006-01-02-15-04-05") + ".md"
}
