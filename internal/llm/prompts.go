package llm

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/tabmark/internal/types"
)

const (
	singlePreviewChars = 1200
	batchPreviewChars  = 800

	batchSeparator   = "\n\n=== NEXT BATCH ===\n\n"
	mergeFallbackSep = "\n\n---\n\n"
)

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// preview prefers the main content and falls back to the description.
func preview(r types.TabRecord, limit int) string {
	if r.Content == nil {
		return ""
	}
	text := r.Content.MainContent
	if text == "" {
		text = r.Content.Description
	}
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}

func organizationPrompt(records []types.TabRecord) string {
	entries := make([]string, 0, len(records))
	for i, r := range records {
		var description, headings string
		if r.Content != nil {
			description = r.Content.Description
			headings = r.Content.HeadingText()
		}
		entries = append(entries, fmt.Sprintf("[Tab %d]\nTitle: %s\nURL: %s\nDescription: %s\nHeadings: %s\nContent Preview: %s",
			i+1,
			orDefault(r.Title, "Untitled"),
			r.URL,
			orDefault(description, "N/A"),
			orDefault(headings, "N/A"),
			orDefault(preview(r, singlePreviewChars), "No content available"),
		))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are turning a set of open browser tabs into one well-structured markdown document. Look at these %d tabs and:\n\n", len(records))
	b.WriteString("1. Write a short summary (one or two sentences) of each tab based on its content\n")
	b.WriteString("2. Group related tabs under descriptive category headings (for example \"Development Research\", \"Shopping\" or \"News & Articles\")\n")
	b.WriteString("3. Put the most relevant categories first\n")
	b.WriteString("4. Produce clean, well-formatted markdown\n\n")
	b.WriteString("TABS TO ORGANIZE:\n")
	b.WriteString(strings.Join(entries, "\n\n"))
	b.WriteString("\n\nOUTPUT FORMAT:\n## [Category Name]\n- [Tab Title](url) - Short summary of what the page covers and why it is useful\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("- Group tabs by topic and content similarity\n")
	b.WriteString("- Every tab must appear exactly once\n")
	b.WriteString("- Category names must be descriptive\n")
	b.WriteString("- Keep summaries short but informative (one or two sentences)\n")
	b.WriteString("- Output only the markdown, with no preamble or explanation")
	return b.String()
}

func batchPrompt(records []types.TabRecord, batch, total int) string {
	entries := make([]string, 0, len(records))
	for _, r := range records {
		entries = append(entries, fmt.Sprintf("[Tab]\nTitle: %s\nURL: %s\nContent: %s",
			orDefault(r.Title, "Untitled"),
			r.URL,
			orDefault(preview(r, batchPreviewChars), "No content"),
		))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize and categorize these browser tabs (batch %d/%d).\n\n", batch, total)
	b.WriteString("For every tab give:\n1. A suggested category\n2. A one or two sentence summary\n\n")
	b.WriteString("TABS:\n")
	b.WriteString(strings.Join(entries, "\n\n"))
	b.WriteString("\n\nOutput format per tab:\nCATEGORY: [suggested category]\nTITLE: [tab title]\nURL: [url]\nSUMMARY: [your summary]\n---")
	return b.String()
}

func mergePrompt(batchResults []string) string {
	var b strings.Builder
	b.WriteString("Browser tabs were categorized in several batches. Merge the results into one well-organized markdown document.\n\n")
	b.WriteString("BATCH RESULTS:\n")
	b.WriteString(strings.Join(batchResults, batchSeparator))
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Combine matching categories from different batches\n")
	b.WriteString("2. Produce a single coherent document with clear category headings\n")
	b.WriteString("3. Use clean markdown with links and summaries\n\n")
	b.WriteString("OUTPUT FORMAT:\n## [Category Name]\n- [Tab Title](url) - Summary\n\n")
	b.WriteString("Output only the final markdown document.")
	return b.String()
}
