// Package extract turns a page's DOM into a PageContent summary. It is pure
// and host independent: the DOM arrives as HTML captured from the tab.
package extract

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgnsrekt/tabmark/internal/types"
	"golang.org/x/net/html"
)

const (
	MaxMainContent   = 2000
	MaxHeadings      = 10
	MaxHeadingLength = 200
	minCandidateText = 100
	truncationMarker = "..."
)

var descriptionSelectors = []string{
	`meta[name="description"]`,
	`meta[property="og:description"]`,
	`meta[name="twitter:description"]`,
}

var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".post-content",
	".article-content",
	".entry-content",
	".content",
	"#content",
	".markdown-body",
	".post-body",
}

// Removed from the body before the whole-page fallback text is taken.
const boilerplateSelector = "script, style, noscript, nav, header, footer, aside, [hidden]"

// Never contribute text, wherever they appear.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// FromSnapshot extracts content from a captured page.
func FromSnapshot(s types.PageSnapshot) types.PageContent {
	return FromHTML(s.URL, s.Title, s.HTML)
}

// FromHTML parses raw HTML and extracts content. It never fails: a document
// that cannot be parsed yields only the title and URL.
func FromHTML(pageURL, title, rawHTML string) types.PageContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		slog.Debug("extract parse failed", "url", pageURL, "error", err)
		return types.PageContent{Title: title, URL: pageURL, Headings: []types.Heading{}}
	}
	return Extract(doc, pageURL, title)
}

// Extract builds a PageContent from a parsed document.
func Extract(doc *goquery.Document, pageURL, title string) types.PageContent {
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return types.PageContent{
		Title:       title,
		URL:         pageURL,
		Description: Description(doc),
		MainContent: MainContent(doc),
		Headings:    Headings(doc),
	}
}

// Description returns the first non-empty meta description.
func Description(doc *goquery.Document) string {
	for _, sel := range descriptionSelectors {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			return content
		}
	}
	return ""
}

// Headings returns h1/h2 headings in document order, skipping empty and
// overlong entries, capped at MaxHeadings.
func Headings(doc *goquery.Document) []types.Heading {
	out := make([]types.Heading, 0, MaxHeadings)
	doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapse(visibleText(s))
		if text == "" || utf8.RuneCountInString(text) >= MaxHeadingLength {
			return true
		}
		level := 2
		if goquery.NodeName(s) == "h1" {
			level = 1
		}
		out = append(out, types.Heading{Level: level, Text: text})
		return len(out) < MaxHeadings
	})
	return out
}

// MainContent returns the page's primary text. Known content containers are
// tried in priority order; the first with more than 100 characters wins.
// Otherwise the body without boilerplate is used.
func MainContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		text := collapse(visibleText(el))
		if utf8.RuneCountInString(text) > minCandidateText {
			return truncate(text, MaxMainContent)
		}
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	clone := body.Clone()
	clone.Find(boilerplateSelector).Remove()
	return truncate(collapse(visibleText(clone)), MaxMainContent)
}

// visibleText approximates innerText: text of script-like and hidden
// elements is skipped and block boundaries become whitespace.
func visibleText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipElements[n.Data] || hasAttr(n, "hidden") {
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + truncationMarker
}
