package llm

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/linkcurator/internal/curator"
)

// TruncationMarker is appended to content cut at the character budget.
const TruncationMarker = "\n... [Content Truncated] ..."

// Truncate cuts content to at most maxChars runes and appends TruncationMarker
// when anything was removed. A non-positive budget disables truncation.
func Truncate(content string, maxChars int) string {
	if maxChars <= 0 {
		return content
	}
	n := 0
	for i := range content {
		if n == maxChars {
			return content[:i] + TruncationMarker
		}
		n++
	}
	return content
}

// BuildPrompt renders the single user message sent to the model. Content is
// expected to be truncated already.
func BuildPrompt(req curator.SummaryRequest) string {
	known := "No existing tags provided"
	if len(req.KnownTags) > 0 {
		known = strings.Join(req.KnownTags, ", ")
	}
	return fmt.Sprintf(`Analyze the following content scraped from the URL: %s

Page Title: %s
Page Description: %s

Existing Tags (Prefer these if relevant):
[%s]

Instructions:
1. Provide a concise summary (2-4 sentences) of the main points of the content.
2. List 3-5 relevant keywords or topics as tags.

Return the response ONLY as a JSON object with the following structure:
{
  "summary": "Your concise summary here.",
  "tags": ["tag1", "tag2", "tag3"]
}

Content:
%s`, req.URL, orNA(req.Title), orNA(req.Description), known, req.Content)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
