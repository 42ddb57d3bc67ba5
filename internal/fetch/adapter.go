package fetch

import (
	"context"
	"time"

	"github.com/narradar/narradar/internal/source"
)

// RawPage is one document harvested from a source, before ingestion.
type RawPage struct {
	Title     string
	Text      string
	URL       string
	FetchedAt time.Time
}

// Adapter harvests raw pages from one kind of source. Implementations are
// registered with the Fetcher per source type.
type Adapter interface {
	// Type is the source_type this adapter serves.
	Type() source.Type
	// Fetch harvests the current documents of one source.
	Fetch(ctx context.Context, src *source.Source) ([]RawPage, error)
}
