// Package content turns article descriptions into plain-text snippets for
// summarization.
package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsDesk/internal/domain"
)

const (
	MaxSnippetRunes = 600
	MaxSnippets     = 8
)

// Clean strips markup from a description and collapses whitespace. Text that
// does not parse is returned with whitespace collapsed.
func Clean(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	text := description
	if strings.ContainsAny(description, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			text = doc.Text()
		}
	}
	return truncate(strings.Join(strings.Fields(text), " "), MaxSnippetRunes)
}

// Request builds the summarizer input for a story: its title plus distinct
// member snippets, most recent first. It returns domain.ErrNoContent when no
// member carries text.
func Request(s *domain.Story) (domain.SummaryRequest, error) {
	req := domain.SummaryRequest{StoryID: s.ID, Title: s.Title}
	seen := make(map[string]struct{})
	for i := len(s.Members) - 1; i >= 0 && len(req.Snippets) < MaxSnippets; i-- {
		snippet := Clean(s.Members[i].Snippet)
		if snippet == "" {
			continue
		}
		if _, dup := seen[snippet]; dup {
			continue
		}
		seen[snippet] = struct{}{}
		req.Snippets = append(req.Snippets, snippet)
	}
	if len(req.Snippets) == 0 {
		return req, domain.ErrNoContent
	}
	return req, nil
}

// Prompt renders a request as the user message sent to chat-style models.
func Prompt(req domain.SummaryRequest) string {
	var b strings.Builder
	b.WriteString("Headline: ")
	b.WriteString(req.Title)
	b.WriteString("\n\nReports from independent sources:\n")
	for _, s := range req.Snippets {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

// SystemPrompt instructs the model how to summarize a story.
const SystemPrompt = "You summarize breaking news. Write two or three neutral sentences describing " +
	"the event reported below. Use only facts present in the reports. Do not speculate."

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
