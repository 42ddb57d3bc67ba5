package narrative

import (
	"regexp"
	"strings"
	"time"
)

// Confidence levels for a synthesized narrative.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Narrative is a recurring theme synthesized from multiple signals.
type Narrative struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Summary             string    `json:"summary"`
	Confidence          string    `json:"confidence"`
	ConfidenceReasoning string    `json:"confidence_reasoning"`
	Tags                []string  `json:"tags"`
	VelocityScore       float64   `json:"velocity_score"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	LastDetectedAt      time.Time `json:"last_detected_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Idea is a product or startup concept attached to a narrative.
type Idea struct {
	ID                   string    `json:"id"`
	NarrativeID          string    `json:"narrative_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Problem              string    `json:"problem"`
	Solution             string    `json:"solution"`
	WhyEcosystemFit      string    `json:"why_ecosystem_fit"`
	ScalePotential       string    `json:"scale_potential"`
	MarketSignals        string    `json:"market_signals"`
	SupportingSignalRefs []string  `json:"supporting_signal_refs"`
	CreatedAt            time.Time `json:"created_at"`
}

// EvidenceLink ties a narrative to one supporting signal.
type EvidenceLink struct {
	ID           string    `json:"id"`
	NarrativeID  string    `json:"narrative_id"`
	SignalID     string    `json:"signal_id"`
	EvidenceText string    `json:"evidence_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Detail is a narrative with its ideas and evidence expanded.
type Detail struct {
	Narrative
	Ideas    []Idea         `json:"ideas"`
	Evidence []EvidenceLink `json:"evidence"`
}

// VelocityInputs are the per-narrative aggregates the scoring formula reads.
type VelocityInputs struct {
	SignalCount     int
	SourceDiversity int
	NoveltyLevels   []string
	LastDetectedAt  time.Time
}

var titleSpaceRE = regexp.MustCompile(`\s+`)

// TitleKey normalizes a narrative title for identity matching. Two titles
// that differ only in case or whitespace address the same narrative.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(titleSpaceRE.ReplaceAllString(title, " ")))
}

// ValidConfidence reports whether c is a recognized confidence level.
func ValidConfidence(c string) bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}
