package narrative

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

// MaxIdeas caps the ideas kept per narrative.
const MaxIdeas = 5

// ErrNotFound is returned when a narrative does not exist.
var ErrNotFound = errors.New("narrative not found")

// Store owns the narratives, evidence_links, and ideas tables.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Apply persists one synthesized candidate atomically: upsert the narrative
// by title key, append its evidence links, and replace its ideas. Returns
// the narrative ID and whether a new row was created.
func (s *Store) Apply(ctx context.Context, n *Narrative, evidence []EvidenceLink, ideas []Idea) (string, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, created, err := upsert(ctx, tx, n)
	if err != nil {
		return "", false, err
	}
	if err := appendEvidence(ctx, tx, id, evidence); err != nil {
		return "", false, err
	}
	if len(ideas) > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ideas WHERE narrative_id = ?", id); err != nil {
			return "", false, fmt.Errorf("clearing ideas: %w", err)
		}
		if err := insertIdeas(ctx, tx, id, ideas); err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("committing narrative: %w", err)
	}
	return id, created, nil
}

// AddIdeas appends ideas to an existing narrative without touching the ones
// already there, up to the per-narrative cap.
func (s *Store) AddIdeas(ctx context.Context, narrativeID string, ideas []Idea) (int, error) {
	var existing int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ideas WHERE narrative_id = ?", narrativeID,
	).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("counting ideas: %w", err)
	}
	room := MaxIdeas - existing
	if room <= 0 {
		return 0, nil
	}
	if len(ideas) > room {
		ideas = ideas[:room]
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := insertIdeas(ctx, tx, narrativeID, ideas); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing ideas: %w", err)
	}
	return len(ideas), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, tx execer, n *Narrative) (string, bool, error) {
	key := TitleKey(n.Title)
	if !ValidConfidence(n.Confidence) {
		n.Confidence = ConfidenceLow
	}
	tags, err := json.Marshal(emptyIfNil(n.Tags))
	if err != nil {
		return "", false, fmt.Errorf("encoding tags: %w", err)
	}
	now := db.FormatTime(time.Now())

	var existingID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM narratives WHERE title_key = ?", key,
	).Scan(&existingID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE narratives
			SET summary = ?, confidence = ?, confidence_reasoning = ?, tags = ?,
			    is_active = 1, last_detected_at = ?, updated_at = ?
			WHERE id = ?`,
			n.Summary, n.Confidence, n.ConfidenceReasoning, string(tags),
			now, now, existingID,
		)
		if err != nil {
			return "", false, fmt.Errorf("updating narrative: %w", err)
		}
		return existingID, false, nil

	case errors.Is(err, sql.ErrNoRows):
		id := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO narratives (id, title, title_key, summary, confidence, confidence_reasoning, tags, created_at, last_detected_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, n.Title, key, n.Summary, n.Confidence, n.ConfidenceReasoning,
			string(tags), now, now, now,
		)
		if err != nil {
			return "", false, fmt.Errorf("inserting narrative: %w", err)
		}
		return id, true, nil

	default:
		return "", false, fmt.Errorf("looking up narrative by title: %w", err)
	}
}

func appendEvidence(ctx context.Context, tx execer, narrativeID string, links []EvidenceLink) error {
	for _, link := range links {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO evidence_links (id, narrative_id, signal_id, evidence_text, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), narrativeID, link.SignalID, link.EvidenceText,
			db.FormatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("linking evidence: %w", err)
		}
	}
	return nil
}

func insertIdeas(ctx context.Context, tx execer, narrativeID string, ideas []Idea) error {
	if len(ideas) > MaxIdeas {
		ideas = ideas[:MaxIdeas]
	}
	for _, idea := range ideas {
		refs, err := json.Marshal(emptyIfNil(idea.SupportingSignalRefs))
		if err != nil {
			return fmt.Errorf("encoding signal refs: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ideas (id, narrative_id, title, description, problem, solution, why_ecosystem_fit, scale_potential, market_signals, supporting_signal_refs, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), narrativeID, idea.Title, idea.Description,
			idea.Problem, idea.Solution, idea.WhyEcosystemFit,
			idea.ScalePotential, idea.MarketSignals, string(refs),
			db.FormatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("inserting idea: %w", err)
		}
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	ActiveOnly  bool
	MinVelocity float64
	Tag         string
	Limit       int
	Offset      int
}

// List returns narratives ranked by velocity, then recency of creation.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Narrative, error) {
	query := `SELECT id, title, summary, confidence, confidence_reasoning, tags, velocity_score, is_active, created_at, last_detected_at, updated_at FROM narratives WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	if filter.MinVelocity > 0 {
		query += " AND velocity_score >= ?"
		args = append(args, filter.MinVelocity)
	}
	if filter.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%"+filter.Tag+"%")
	}
	query += " ORDER BY velocity_score DESC, created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying narratives: %w", err)
	}
	defer rows.Close()

	var out []Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Get returns one narrative with its ideas and evidence expanded.
func (s *Store) Get(ctx context.Context, id string) (*Detail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, summary, confidence, confidence_reasoning, tags, velocity_score, is_active, created_at, last_detected_at, updated_at
		FROM narratives WHERE id = ?`, id)
	n, err := scanNarrative(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	detail := &Detail{Narrative: *n, Ideas: []Idea{}, Evidence: []EvidenceLink{}}

	ideaRows, err := s.db.QueryContext(ctx, `
		SELECT id, narrative_id, title, description, problem, solution, why_ecosystem_fit, scale_potential, market_signals, supporting_signal_refs, created_at
		FROM ideas WHERE narrative_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("querying ideas: %w", err)
	}
	defer ideaRows.Close()
	for ideaRows.Next() {
		var (
			idea      Idea
			refs      string
			createdAt string
		)
		err := ideaRows.Scan(&idea.ID, &idea.NarrativeID, &idea.Title,
			&idea.Description, &idea.Problem, &idea.Solution,
			&idea.WhyEcosystemFit, &idea.ScalePotential, &idea.MarketSignals,
			&refs, &createdAt)
		if err != nil {
			return nil, err
		}
		decodeList(refs, &idea.SupportingSignalRefs)
		idea.CreatedAt = db.ParseTime(createdAt)
		detail.Ideas = append(detail.Ideas, idea)
	}
	if err := ideaRows.Err(); err != nil {
		return nil, err
	}

	evRows, err := s.db.QueryContext(ctx, `
		SELECT id, narrative_id, signal_id, evidence_text, created_at
		FROM evidence_links WHERE narrative_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var (
			link      EvidenceLink
			createdAt string
		)
		if err := evRows.Scan(&link.ID, &link.NarrativeID, &link.SignalID, &link.EvidenceText, &createdAt); err != nil {
			return nil, err
		}
		link.CreatedAt = db.ParseTime(createdAt)
		detail.Evidence = append(detail.Evidence, link)
	}
	return detail, evRows.Err()
}

// All returns every narrative regardless of activity.
func (s *Store) All(ctx context.Context) ([]Narrative, error) {
	return s.List(ctx, ListFilter{})
}

// NeedingIdeas returns active narratives with fewer than min ideas attached.
func (s *Store) NeedingIdeas(ctx context.Context, min int) ([]Narrative, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.title, n.summary, n.confidence, n.confidence_reasoning, n.tags, n.velocity_score, n.is_active, n.created_at, n.last_detected_at, n.updated_at
		FROM narratives n
		LEFT JOIN ideas i ON i.narrative_id = n.id
		WHERE n.is_active = 1
		GROUP BY n.id
		HAVING COUNT(i.id) < ?
		ORDER BY n.velocity_score DESC`, min)
	if err != nil {
		return nil, fmt.Errorf("querying narratives needing ideas: %w", err)
	}
	defer rows.Close()

	var out []Narrative
	for rows.Next() {
		n, err := scanNarrative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Inputs aggregates the velocity-scoring inputs for one narrative. When
// windowDays is positive only evidence signals created within that window
// count; zero or negative means all linked signals.
func (s *Store) Inputs(ctx context.Context, id string, windowDays int) (*VelocityInputs, error) {
	cutoff := "0001-01-01 00:00:00"
	if windowDays > 0 {
		cutoff = db.FormatTime(time.Now().AddDate(0, 0, -windowDays))
	}

	var lastDetected string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_detected_at FROM narratives WHERE id = ?", id,
	).Scan(&lastDetected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading narrative: %w", err)
	}

	in := &VelocityInputs{LastDetectedAt: db.ParseTime(lastDetected)}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(sg.id), COUNT(DISTINCT ci.source_id)
		FROM evidence_links el
		JOIN signals sg ON sg.id = el.signal_id
		JOIN content_items ci ON ci.id = sg.content_item_id
		WHERE el.narrative_id = ? AND sg.created_at >= ?`, id, cutoff,
	).Scan(&in.SignalCount, &in.SourceDiversity)
	if err != nil {
		return nil, fmt.Errorf("aggregating velocity inputs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sg.novelty
		FROM evidence_links el
		JOIN signals sg ON sg.id = el.signal_id
		WHERE el.narrative_id = ? AND sg.created_at >= ?`, id, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reading novelty levels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var novelty string
		if err := rows.Scan(&novelty); err != nil {
			return nil, err
		}
		in.NoveltyLevels = append(in.NoveltyLevels, novelty)
	}
	return in, rows.Err()
}

// UpdateScore writes a freshly computed velocity score.
func (s *Store) UpdateScore(ctx context.Context, id string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE narratives SET velocity_score = ?, updated_at = ? WHERE id = ?`,
		score, db.FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating velocity score: %w", err)
	}
	return nil
}

// DeactivateStale flips narratives not detected since the cutoff to
// inactive. A later upsert on the same title reactivates them.
func (s *Store) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE narratives SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND last_detected_at < ?`,
		db.FormatTime(time.Now()), db.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deactivating stale narratives: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNarrative(sc scanner) (*Narrative, error) {
	var (
		n                                Narrative
		tags                             string
		isActive                         int
		createdAt, lastDetected, updated string
	)
	err := sc.Scan(&n.ID, &n.Title, &n.Summary, &n.Confidence,
		&n.ConfidenceReasoning, &tags, &n.VelocityScore, &isActive,
		&createdAt, &lastDetected, &updated)
	if err != nil {
		return nil, err
	}
	decodeList(tags, &n.Tags)
	n.IsActive = isActive == 1
	n.CreatedAt = db.ParseTime(createdAt)
	n.LastDetectedAt = db.ParseTime(lastDetected)
	n.UpdatedAt = db.ParseTime(updated)
	return &n, nil
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
