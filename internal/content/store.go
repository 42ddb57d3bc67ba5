package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/narradar/narradar/internal/db"
)

// ErrDuplicateContent is returned by Ingest when byte-identical content
// (after normalization) already exists. Not a failure: it is the normal
// outcome of re-fetching an unchanged page.
var ErrDuplicateContent = errors.New("duplicate content")

// ErrNotClaimed is returned by Claim when another worker already owns the
// item or the item left the pending state.
var ErrNotClaimed = errors.New("item not claimed")

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// Store owns the content_items table and its state machine. All status
// transitions are atomic conditional updates, so concurrent workers can
// never double-claim a row.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// RawItem is the fetch-adapter output accepted by Ingest.
type RawItem struct {
	SourceID   string
	SourceType string
	Title      string
	Text       string
	URL        string
	FetchedAt  time.Time
}

// Ingest stores a harvested item with status pending, deduplicating on the
// content fingerprint. This is the single de-duplication gate for the whole
// pipeline regardless of source type.
func (s *Store) Ingest(ctx context.Context, raw RawItem) (*Item, error) {
	hash := Hash(raw.Text)

	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM content_items WHERE content_hash = ?", hash,
	).Scan(&existingID)
	if err == nil {
		return nil, ErrDuplicateContent
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking content hash: %w", err)
	}

	item := &Item{
		ID:          uuid.New().String(),
		SourceID:    raw.SourceID,
		SourceType:  raw.SourceType,
		Title:       raw.Title,
		RawText:     raw.Text,
		URL:         raw.URL,
		ContentHash: hash,
		Status:      StatusPending,
		FetchedAt:   raw.FetchedAt.UTC(),
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, source_id, source_type, title, raw_text, url, content_hash, status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		item.ID, item.SourceID, item.SourceType, item.Title, item.RawText,
		item.URL, item.ContentHash, db.FormatTime(item.FetchedAt),
	)
	if err != nil {
		// A concurrent ingest may have won the race on the unique index.
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrDuplicateContent
		}
		return nil, fmt.Errorf("inserting content item: %w", err)
	}
	return item, nil
}

// Claim transitions one item from pending to processing. The update is
// conditional on the current status, so exactly one worker wins.
func (s *Store) Claim(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = 'processing', attempt_count = attempt_count + 1, claimed_at = ?
		WHERE id = ? AND status = 'pending'`,
		db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("claiming item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

// MarkCompleted transitions processing → completed (terminal).
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.finish(ctx, id, StatusCompleted, "")
}

// MarkSkipped transitions processing → skipped (terminal, never retried).
func (s *Store) MarkSkipped(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, StatusSkipped, reason)
}

// MarkFailed records a failed attempt. Below maxAttempts the item reverts
// to pending for a future retry; at or above the cap it becomes failed
// (terminal, surfaced only via logs and the status value).
func (s *Store) MarkFailed(ctx context.Context, id string, attemptErr string, maxAttempts int) (Status, error) {
	if len(attemptErr) > 500 {
		attemptErr = attemptErr[:500]
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = CASE WHEN attempt_count >= ? THEN 'failed' ELSE 'pending' END,
		    last_error = ?, processed_at = ?
		WHERE id = ? AND status = 'processing'`,
		maxAttempts, attemptErr, db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return "", fmt.Errorf("failing item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNotClaimed
	}

	item, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return item.Status, nil
}

func (s *Store) finish(ctx context.Context, id string, status Status, note string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = ?, last_error = ?, processed_at = ?
		WHERE id = ? AND status = 'processing'`,
		string(status), note, db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("marking item %s %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotClaimed
	}
	return nil
}

// ReclaimStuck sweeps items left in processing by a crashed worker back to
// pending. Returns the number of reclaimed rows.
func (s *Store) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status = 'pending'
		WHERE status = 'processing' AND claimed_at < ?`,
		db.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaiming stuck items: %w", err)
	}
	return res.RowsAffected()
}

// ListPending returns claimable items, newest first. limit <= 0 means no limit.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Item, error) {
	query := selectColumns + ` WHERE status = 'pending' ORDER BY fetched_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryItems(ctx, query)
}

// Get retrieves a single item by ID.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// CountByStatus returns row counts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM content_items GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting content items: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// List returns items filtered by status (empty = all), newest first.
func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]Item, error) {
	query := selectColumns
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY fetched_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s.queryItems(ctx, query, args...)
}

const selectColumns = `SELECT id, source_id, source_type, title, raw_text, url, content_hash, status, attempt_count, last_error, fetched_at, claimed_at, processed_at FROM content_items`

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying content items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	var (
		item                   Item
		status                 string
		fetchedAt              string
		claimedAt, processedAt sql.NullString
	)
	err := sc.Scan(&item.ID, &item.SourceID, &item.SourceType, &item.Title,
		&item.RawText, &item.URL, &item.ContentHash, &status,
		&item.AttemptCount, &item.LastError, &fetchedAt, &claimedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	item.Status = Status(status)
	item.FetchedAt = db.ParseTime(fetchedAt)
	if claimedAt.Valid {
		t := db.ParseTime(claimedAt.String)
		item.ClaimedAt = &t
	}
	if processedAt.Valid {
		t := db.ParseTime(processedAt.String)
		item.ProcessedAt = &t
	}
	return &item, nil
}
