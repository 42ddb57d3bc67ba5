package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narradar/narradar/internal/db"
)

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("source not found")

// Store provides CRUD operations for data sources.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new source. If s.ID is empty a UUID is generated.
func (s *Store) Create(ctx context.Context, src *Source) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	if src.Priority == "" {
		src.Priority = PriorityMedium
	}
	if src.Category == "" {
		src.Category = "general"
	}
	if !ValidType(src.SourceType) {
		return fmt.Errorf("invalid source type %q", src.SourceType)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, name, url, source_type, category, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.URL, string(src.SourceType), src.Category, string(src.Priority), src.IsActive,
	)
	if err != nil {
		return fmt.Errorf("inserting source: %w", err)
	}
	return nil
}

// Get retrieves a single source by ID.
func (s *Store) Get(ctx context.Context, id string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, url, source_type, category, priority, is_active, last_fetched_at, created_at
		FROM data_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

// ListFilter controls which sources List returns.
type ListFilter struct {
	SourceType Type
	ActiveOnly bool
}

// List returns sources matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Source, error) {
	query := `SELECT id, name, url, source_type, category, priority, is_active, last_fetched_at, created_at FROM data_sources`
	var (
		clauses []string
		args    []any
	)
	if filter.SourceType != "" {
		clauses = append(clauses, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// TouchFetched records that a fetch of this source just finished.
func (s *Store) TouchFetched(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE data_sources SET last_fetched_at = ? WHERE id = ?",
		db.FormatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("touching source %s: %w", id, err)
	}
	return nil
}

// SetActive enables or disables a source.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE data_sources SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("updating source %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastFetched returns the most recent fetch time across sources of the
// given type, or the zero time when never fetched.
func (s *Store) LastFetched(ctx context.Context, t Type) (time.Time, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(last_fetched_at) FROM data_sources WHERE source_type = ?",
		string(t),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last fetch for %s: %w", t, err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return db.ParseTime(ts.String), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(sc scanner) (*Source, error) {
	var (
		src                         Source
		sourceType, priority        string
		lastFetched                 sql.NullString
		createdAt                   string
	)
	err := sc.Scan(&src.ID, &src.Name, &src.URL, &sourceType, &src.Category,
		&priority, &src.IsActive, &lastFetched, &createdAt)
	if err != nil {
		return nil, err
	}
	src.SourceType = Type(sourceType)
	src.Priority = Priority(priority)
	src.CreatedAt = db.ParseTime(createdAt)
	if lastFetched.Valid {
		t := db.ParseTime(lastFetched.String)
		src.LastFetchedAt = &t
	}
	return &src, nil
}
