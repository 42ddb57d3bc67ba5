package source

import "time"

// Type identifies the kind of upstream a source is fetched from.
type Type string

const (
	TypeWeb     Type = "web"
	TypeTwitter Type = "twitter"
	TypeReddit  Type = "reddit"
	TypePDF     Type = "pdf"
	TypeAPI     Type = "api"
)

// Priority controls how aggressively a source is fetched.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Source is a tracked fetch target: a site, a KOL account, a feed.
type Source struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	SourceType    Type       `json:"source_type"`
	Category      string     `json:"category"`
	Priority      Priority   `json:"priority"`
	IsActive      bool       `json:"is_active"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ValidType reports whether t is a recognized source type.
func ValidType(t Type) bool {
	switch t {
	case TypeWeb, TypeTwitter, TypeReddit, TypePDF, TypeAPI:
		return true
	}
	return false
}
