package signal

import "time"

// Signal types mirror the extraction prompt taxonomy.
const (
	TypeOnchain   = "onchain"
	TypeDeveloper = "developer"
	TypeSocial    = "social"
	TypeResearch  = "research"
	TypeMobile    = "mobile"
	TypeOther     = "other"
)

// Novelty levels.
const (
	NoveltyHigh   = "high"
	NoveltyMedium = "medium"
	NoveltyLow    = "low"
)

// Signal is one discrete observation extracted from a content item.
type Signal struct {
	ID              string    `json:"id"`
	ContentItemID   string    `json:"content_item_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	SignalType      string    `json:"signal_type"`
	Novelty         string    `json:"novelty"`
	EvidenceQuote   string    `json:"evidence_quote"`
	RelatedProjects []string  `json:"related_projects"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
}

// WindowSignal is a signal joined with its provenance, as fed to synthesis.
type WindowSignal struct {
	Signal
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	ContentURL string    `json:"content_url"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// ValidType reports whether t is a recognized signal type.
func ValidType(t string) bool {
	switch t {
	case TypeOnchain, TypeDeveloper, TypeSocial, TypeResearch, TypeMobile, TypeOther:
		return true
	}
	return false
}

// ValidNovelty reports whether n is a recognized novelty level.
func ValidNovelty(n string) bool {
	switch n {
	case NoveltyHigh, NoveltyMedium, NoveltyLow:
		return true
	}
	return false
}

// NoveltyWeight maps a novelty level to its numeric contribution.
func NoveltyWeight(n string) float64 {
	switch n {
	case NoveltyHigh:
		return 1.0
	case NoveltyMedium:
		return 0.6
	default:
		return 0.3
	}
}
