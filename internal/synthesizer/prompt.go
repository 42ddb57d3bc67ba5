package synthesizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/signal"
)

const synthesisSystemPrompt = `You are a researcher mapping emerging narratives in the %s ecosystem. You receive signals collected from many sources over the last %d days and you identify the cross-source themes they add up to.

Respond with JSON only, in this shape:
{
  "narratives": [
    {
      "title": "short name for the theme, stable across runs",
      "summary": "3-4 sentences describing the narrative and its trajectory",
      "confidence": "high | medium | low",
      "confidence_reasoning": "one sentence on why this confidence level",
      "tags": ["lowercase-topic-tags"],
      "evidence": [
        {"signal_id": "id of a supporting signal from the input", "quote": "why this signal supports the narrative"}
      ],
      "ideas": [
        {
          "title": "startup or product concept this narrative enables",
          "description": "2-3 sentences on the concept",
          "problem": "the problem it solves",
          "solution": "how it solves it",
          "why_ecosystem_fit": "why this ecosystem specifically",
          "scale_potential": "how big this could get",
          "market_signals": "evidence of demand",
          "supporting_signal_refs": ["signal ids backing the idea"]
        }
      ]
    }
  ]
}

Rules:
- A narrative needs support from at least two signals, preferably from different sources.
- Reuse the exact title of a narrative you have identified before when the theme is the same.
- evidence signal_id values must come from the input. Never invent IDs.
- Give each narrative 3 to 5 ideas.
- Fewer strong narratives beat many weak ones.`

const retryInstruction = `

Your previous answer contained no narratives. The signals above span multiple sources over several days; identify at least one well-supported theme. Respond with the same JSON shape.`

// buildSynthesisPrompt renders the window of signals grouped by source, with
// existing active narrative titles so the model can keep theme names stable.
func buildSynthesisPrompt(ecosystem string, windowDays int, signals []signal.WindowSignal, existing []narrative.Narrative, retry bool) (system, user string) {
	bySource := make(map[string][]signal.WindowSignal)
	for _, ws := range signals {
		bySource[ws.SourceName] = append(bySource[ws.SourceName], ws)
	}
	sourceNames := make([]string, 0, len(bySource))
	for name := range bySource {
		sourceNames = append(sourceNames, name)
	}
	sort.Strings(sourceNames)

	var b strings.Builder
	if len(existing) > 0 {
		b.WriteString("Previously identified narratives (reuse these titles when the theme matches):\n")
		for _, n := range existing {
			fmt.Fprintf(&b, "- %s\n", n.Title)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Signals from the last %d days:\n", windowDays)
	for _, name := range sourceNames {
		fmt.Fprintf(&b, "\n## %s\n", name)
		for _, ws := range bySource[name] {
			fmt.Fprintf(&b, "- [%s] %s (type=%s novelty=%s date=%s)\n",
				ws.ID, ws.Title, ws.SignalType, ws.Novelty, ws.CreatedAt.Format("2006-01-02"))
			if ws.Description != "" {
				fmt.Fprintf(&b, "  %s\n", ws.Description)
			}
			if ws.EvidenceQuote != "" {
				fmt.Fprintf(&b, "  quote: %q\n", ws.EvidenceQuote)
			}
		}
	}

	system = fmt.Sprintf(synthesisSystemPrompt, ecosystem, windowDays)
	if retry {
		system += retryInstruction
	}
	return system, b.String()
}

const ideaSystemPrompt = `You generate startup and product ideas for the %s ecosystem. You receive one established narrative and its supporting signals, and you propose concrete concepts it enables.

Respond with JSON only, in this shape:
{
  "ideas": [
    {
      "title": "startup or product concept",
      "description": "2-3 sentences on the concept",
      "problem": "the problem it solves",
      "solution": "how it solves it",
      "why_ecosystem_fit": "why this ecosystem specifically",
      "scale_potential": "how big this could get",
      "market_signals": "evidence of demand",
      "supporting_signal_refs": ["signal ids backing the idea"]
    }
  ]
}

Propose exactly %d ideas. Only reference signal ids given in the input.`

// buildIdeaPrompt renders the backfill request for one under-populated narrative.
func buildIdeaPrompt(ecosystem string, n *narrative.Detail, signalTitles map[string]string, want int) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Narrative: %s\n", n.Title)
	fmt.Fprintf(&b, "Summary: %s\n", n.Summary)
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(n.Tags, ", "))
	}
	if len(n.Ideas) > 0 {
		b.WriteString("\nExisting ideas (do not repeat these):\n")
		for _, idea := range n.Ideas {
			fmt.Fprintf(&b, "- %s\n", idea.Title)
		}
	}
	if len(n.Evidence) > 0 {
		b.WriteString("\nSupporting signals:\n")
		for _, link := range n.Evidence {
			title := signalTitles[link.SignalID]
			if title == "" {
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s\n", link.SignalID, title)
		}
	}
	return fmt.Sprintf(ideaSystemPrompt, ecosystem, want), b.String()
}
