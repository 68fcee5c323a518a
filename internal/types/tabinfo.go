package types

import "strings"

// TabInfo describes a browser tab as reported by the tab source.
type TabInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	WindowID int64  `json:"window_id,omitempty"`
}

// Fetchable reports whether page content can be extracted from the tab.
// Only http(s) pages are snapshotted.
func (t TabInfo) Fetchable() bool {
	u := strings.ToLower(t.URL)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Heading is an h1/h2 heading captured from a page.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PageContent is the structured summary of a single page.
type PageContent struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	MainContent string    `json:"main_content"`
	Headings    []Heading `json:"headings"`
}

// HeadingText returns the heading texts joined with ", ".
func (p *PageContent) HeadingText() string {
	if p == nil || len(p.Headings) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Headings))
	for _, h := range p.Headings {
		parts = append(parts, h.Text)
	}
	return strings.Join(parts, ", ")
}

// TabRecord is one tab of an export. Content is nil when the tab was not
// fetchable or extraction failed.
type TabRecord struct {
	Title   string       `json:"title"`
	URL     string       `json:"url"`
	Content *PageContent `json:"content,omitempty"`
}

// CredentialKind identifies how a token authenticates against the LLM endpoint.
type CredentialKind string

const (
	KindAPIKey CredentialKind = "api_key"
	KindOAuth  CredentialKind = "oauth"
)

// Token is a usable credential handed out by the credential store.
type Token struct {
	Value string
	Kind  CredentialKind
}

// PageSnapshot is the raw DOM of a tab captured through the run-in-page
// capability.
type PageSnapshot struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}
