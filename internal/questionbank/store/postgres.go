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
	"certo/internal/questionbank"
	"certo/pkg/sentinel"
)

// Postgres persists the question bank in PostgreSQL. Options and tags are
// small variable-length lists, stored as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const questionColumns = `id, question, type, category, difficulty, options, correct_answer,
	points, explanation, tags, created_by, is_active, created_at`

func (s *Postgres) Create(ctx context.Context, e *questionbank.Entry) error {
	options, tags, err := marshalLists(e)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO question_bank (` + questionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.Question, string(e.Type), string(e.Category), string(e.Difficulty),
		options, e.CorrectAnswer, e.Points, e.Explanation, tags, e.CreatedBy,
		e.IsActive, e.CreatedAt,
	)
	if err != nil {
		if isQuestionUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*questionbank.Entry, error) {
	query := `SELECT ` + questionColumns + ` FROM question_bank WHERE id = $1`
	return scanQuestion(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) Update(ctx context.Context, e *questionbank.Entry) error {
	options, tags, err := marshalLists(e)
	if err != nil {
		return err
	}
	query := `
		UPDATE question_bank SET
			question = $2, type = $3, category = $4, difficulty = $5, options = $6,
			correct_answer = $7, points = $8, explanation = $9, tags = $10,
			is_active = $11
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		e.ID, e.Question, string(e.Type), string(e.Category), string(e.Difficulty),
		options, e.CorrectAnswer, e.Points, e.Explanation, tags, e.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return requireQuestionRow(res, "update question")
}

func (s *Postgres) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE question_bank SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate question: %w", err)
	}
	return requireQuestionRow(res, "deactivate question")
}

func (s *Postgres) List(ctx context.Context, f questionbank.Filter) ([]*questionbank.Entry, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.OnlyActive {
		where += " AND is_active = TRUE"
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if f.Difficulty != "" {
		args = append(args, string(f.Difficulty))
		where += fmt.Sprintf(" AND difficulty = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM question_bank`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	query := `SELECT ` + questionColumns + ` FROM question_bank` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		offset := (f.Page - 1) * f.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	entries, err := collectQuestions(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Pick returns up to n random active entries matching category and
// difficulty.
func (s *Postgres) Pick(ctx context.Context, category event.Category, difficulty event.Difficulty, n int) ([]*questionbank.Entry, error) {
	query := `
		SELECT ` + questionColumns + ` FROM question_bank
		WHERE is_active = TRUE AND category = $1 AND difficulty = $2
		ORDER BY random() LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, string(category), string(difficulty), n)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	defer rows.Close()
	return collectQuestions(rows)
}

func marshalLists(e *questionbank.Entry) (options, tags []byte, err error) {
	if options, err = json.Marshal(e.Options); err != nil {
		return nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	if tags, err = json.Marshal(e.Tags); err != nil {
		return nil, nil, fmt.Errorf("marshal tags: %w", err)
	}
	return options, tags, nil
}

func scanQuestion(row interface{ Scan(...any) error }) (*questionbank.Entry, error) {
	var e questionbank.Entry
	var qtype, category, difficulty string
	var options, tags []byte
	err := row.Scan(
		&e.ID, &e.Question, &qtype, &category, &difficulty, &options,
		&e.CorrectAnswer, &e.Points, &e.Explanation, &tags, &e.CreatedBy,
		&e.IsActive, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan question: %w", err)
	}
	e.Type = event.QuestionType(qtype)
	e.Category = event.Category(category)
	e.Difficulty = event.Difficulty(difficulty)
	if err := json.Unmarshal(options, &e.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	if err := json.Unmarshal(tags, &e.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &e, nil
}

func collectQuestions(rows *sql.Rows) ([]*questionbank.Entry, error) {
	var out []*questionbank.Entry
	for rows.Next() {
		e, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireQuestionRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isQuestionUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
