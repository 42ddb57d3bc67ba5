package content

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Status is the analysis state of a content item.
//
// State machine:
//
//	pending → processing → completed   (happy path)
//	pending → processing → skipped     (too short / irrelevant, terminal)
//	pending → processing → failed      (terminal after max attempts)
//	pending → processing → pending     (transient failure, retried)
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Item is one harvested unit of content: an article, tweet, forum post,
// or PDF excerpt. Rows are append-only; only the status fields mutate.
type Item struct {
	ID           string     `json:"id"`
	SourceID     string     `json:"source_id"`
	SourceType   string     `json:"source_type"`
	Title        string     `json:"title"`
	RawText      string     `json:"raw_text"`
	URL          string     `json:"url"`
	ContentHash  string     `json:"content_hash"`
	Status       Status     `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	LastError    string     `json:"last_error,omitempty"`
	FetchedAt    time.Time  `json:"fetched_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace and lower-cases text so that trivially
// reformatted copies of the same content hash identically.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " ")))
}

// Hash returns the content fingerprint: SHA-256 of the normalized text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
