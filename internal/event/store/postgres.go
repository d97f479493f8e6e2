package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certo/internal/event"
	"certo/pkg/sentinel"
)

// Postgres persists events in PostgreSQL. The embedded question list rides
// along as JSONB since questions are denormalized copies, never queried
// relationally.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const eventColumns = `id, title, description, category, difficulty, start_date, end_date,
	duration_minutes, max_participants, questions, image_url, is_active, created_by,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, e *event.Event) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, string(e.Category), string(e.Difficulty),
		e.StartDate, e.EndDate, e.DurationMinutes, e.MaxParticipants, questions,
		e.ImageURL, e.IsActive, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) Update(ctx context.Context, e *event.Event) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	query := `
		UPDATE events SET
			title = $2, description = $3, category = $4, difficulty = $5,
			start_date = $6, end_date = $7, duration_minutes = $8,
			max_participants = $9, questions = $10, image_url = $11,
			is_active = $12, updated_at = now()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, string(e.Category), string(e.Difficulty),
		e.StartDate, e.EndDate, e.DurationMinutes, e.MaxParticipants, questions,
		e.ImageURL, e.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(res, "update event")
}

func (s *Postgres) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate event: %w", err)
	}
	return requireRow(res, "deactivate event")
}

func (s *Postgres) List(ctx context.Context, q event.Query) ([]*event.Event, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if q.OnlyActive {
		where += " AND is_active = TRUE"
	}
	if q.Category != "" {
		args = append(args, string(q.Category))
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q.Difficulty != "" {
		args = append(args, string(q.Difficulty))
		where += fmt.Sprintf(" AND difficulty = $%d", len(args))
	}
	if q.Title != "" {
		args = append(args, "%"+q.Title+"%")
		where += fmt.Sprintf(" AND title ILIKE $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM events` + where + ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		offset := (q.Page - 1) * q.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (s *Postgres) Count(ctx context.Context, onlyActive bool) (int, error) {
	query := `SELECT count(*) FROM events`
	if onlyActive {
		query += ` WHERE is_active = TRUE`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListRecent(ctx context.Context, limit int) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Postgres) CountByCategory(ctx context.Context) (map[event.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, count(*) FROM events GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count events by category: %w", err)
	}
	defer rows.Close()

	out := make(map[event.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out[event.Category(cat)] = n
	}
	return out, rows.Err()
}

func (s *Postgres) CountByDifficulty(ctx context.Context) (map[event.Difficulty]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT difficulty, count(*) FROM events GROUP BY difficulty`)
	if err != nil {
		return nil, fmt.Errorf("count events by difficulty: %w", err)
	}
	defer rows.Close()

	out := make(map[event.Difficulty]int)
	for rows.Next() {
		var diff string
		var n int
		if err := rows.Scan(&diff, &n); err != nil {
			return nil, fmt.Errorf("scan difficulty count: %w", err)
		}
		out[event.Difficulty(diff)] = n
	}
	return out, rows.Err()
}

func (s *Postgres) IDsByCategory(ctx context.Context) (map[event.Category][]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, id FROM events`)
	if err != nil {
		return nil, fmt.Errorf("list event ids by category: %w", err)
	}
	defer rows.Close()

	out := make(map[event.Category][]uuid.UUID)
	for rows.Next() {
		var cat string
		var id uuid.UUID
		if err := rows.Scan(&cat, &id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		out[event.Category(cat)] = append(out[event.Category(cat)], id)
	}
	return out, rows.Err()
}

func (s *Postgres) DistinctCategories(ctx context.Context) ([]event.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM events ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	defer rows.Close()

	var out []event.Category
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, event.Category(cat))
	}
	return out, rows.Err()
}

func scanEvent(row interface{ Scan(...any) error }) (*event.Event, error) {
	var e event.Event
	var category, difficulty string
	var questions []byte
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &category, &difficulty, &e.StartDate,
		&e.EndDate, &e.DurationMinutes, &e.MaxParticipants, &questions,
		&e.ImageURL, &e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Category = event.Category(category)
	e.Difficulty = event.Difficulty(difficulty)
	if err := json.Unmarshal(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*event.Event, error) {
	var out []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
