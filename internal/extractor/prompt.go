package extractor

import (
	"fmt"
	"strings"

	"github.com/narradar/narradar/internal/content"
)

const systemPrompt = `You are an analyst watching the %s ecosystem for early signals: concrete, verifiable observations about what builders, users, and capital are doing. You read one piece of content at a time and extract discrete signals from it.

Respond with JSON only, in this shape:
{
  "signals": [
    {
      "title": "short factual headline for the observation",
      "description": "2-3 sentences explaining what was observed and why it matters",
      "signal_type": "onchain | developer | social | research | mobile | other",
      "novelty": "high | medium | low",
      "evidence_quote": "short verbatim quote from the content backing the observation",
      "related_projects": ["project names mentioned"],
      "tags": ["lowercase-topic-tags"]
    }
  ]
}

Rules:
- Only extract observations actually supported by the content. Never invent.
- Skip marketing fluff, price speculation, and generic commentary.
- An empty list is a valid answer for content with nothing noteworthy.
- novelty is "high" only for things not widely discussed yet.`

// buildPrompt renders the extraction request for one content item. Long
// content is truncated so a single oversized page cannot blow the context
// window.
func buildPrompt(ecosystem string, item *content.Item, sourceName, sourceCategory string, maxChars int) (system, user string) {
	text := item.RawText
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s (%s, %s)\n", sourceName, sourceCategory, item.SourceType)
	fmt.Fprintf(&b, "URL: %s\n", item.URL)
	fmt.Fprintf(&b, "Fetched: %s\n", item.FetchedAt.Format("2006-01-02"))
	if item.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", item.Title)
	}
	b.WriteString("\nContent:\n")
	b.WriteString(text)

	return fmt.Sprintf(systemPrompt, ecosystem), b.String()
}
