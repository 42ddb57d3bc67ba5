package signal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narradar/narradar/internal/db"
)

// ErrNotFound is returned when a signal does not exist.
var ErrNotFound = errors.New("signal not found")

// Store owns the signals table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Insert persists one signal, generating an ID when absent. Unknown type or
// novelty values are coerced to their defaults rather than rejected, since
// the values come from a language model.
func (s *Store) Insert(ctx context.Context, sig *Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if !ValidType(sig.SignalType) {
		sig.SignalType = TypeOther
	}
	if !ValidNovelty(sig.Novelty) {
		sig.Novelty = NoveltyMedium
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	projects, err := json.Marshal(emptyIfNil(sig.RelatedProjects))
	if err != nil {
		return fmt.Errorf("encoding related projects: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(sig.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (id, content_item_id, title, description, signal_type, novelty, evidence_quote, related_projects, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.ContentItemID, sig.Title, sig.Description, sig.SignalType,
		sig.Novelty, sig.EvidenceQuote, string(projects), string(tags),
		db.FormatTime(sig.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

// Get retrieves a single signal by ID.
func (s *Store) Get(ctx context.Context, id string) (*Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_item_id, title, description, signal_type, novelty, evidence_quote, related_projects, tags, created_at
		FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sig, err
}

// ListRecent returns signals created within the last windowDays, newest
// first, joined with their source so synthesis can group by outlet.
func (s *Store) ListRecent(ctx context.Context, windowDays int) ([]WindowSignal, error) {
	cutoff := time.Now().AddDate(0, 0, -windowDays)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.content_item_id, s.title, s.description, s.signal_type, s.novelty,
		       s.evidence_quote, s.related_projects, s.tags, s.created_at,
		       ds.name, ds.source_type, ci.url, ci.fetched_at
		FROM signals s
		JOIN content_items ci ON ci.id = s.content_item_id
		JOIN data_sources ds ON ds.id = ci.source_id
		WHERE s.created_at >= ?
		ORDER BY s.created_at DESC`,
		db.FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent signals: %w", err)
	}
	defer rows.Close()

	var out []WindowSignal
	for rows.Next() {
		var (
			ws                   WindowSignal
			projects, tags       string
			createdAt, fetchedAt string
		)
		err := rows.Scan(&ws.ID, &ws.ContentItemID, &ws.Title, &ws.Description,
			&ws.SignalType, &ws.Novelty, &ws.EvidenceQuote, &projects, &tags,
			&createdAt, &ws.SourceName, &ws.SourceType, &ws.ContentURL, &fetchedAt)
		if err != nil {
			return nil, err
		}
		decodeList(projects, &ws.RelatedProjects)
		decodeList(tags, &ws.Tags)
		ws.CreatedAt = db.ParseTime(createdAt)
		ws.FetchedAt = db.ParseTime(fetchedAt)
		out = append(out, ws)
	}
	return out, rows.Err()
}

// ListByContent returns the signals extracted from one content item.
func (s *Store) ListByContent(ctx context.Context, contentItemID string) ([]Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_item_id, title, description, signal_type, novelty, evidence_quote, related_projects, tags, created_at
		FROM signals WHERE content_item_id = ? ORDER BY created_at`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

// CountRecent counts signals created within the last windowDays.
func (s *Store) CountRecent(ctx context.Context, windowDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -windowDays)
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM signals WHERE created_at >= ?",
		db.FormatTime(cutoff),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent signals: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(sc scanner) (*Signal, error) {
	var (
		sig            Signal
		projects, tags string
		createdAt      string
	)
	err := sc.Scan(&sig.ID, &sig.ContentItemID, &sig.Title, &sig.Description,
		&sig.SignalType, &sig.Novelty, &sig.EvidenceQuote, &projects, &tags, &createdAt)
	if err != nil {
		return nil, err
	}
	decodeList(projects, &sig.RelatedProjects)
	decodeList(tags, &sig.Tags)
	sig.CreatedAt = db.ParseTime(createdAt)
	return &sig, nil
}

func decodeList(raw string, dst *[]string) {
	if raw == "" {
		*dst = []string{}
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil || *dst == nil {
		*dst = []string{}
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
