package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certo/internal/registration"
	"certo/pkg/sentinel"
)

// Postgres persists registrations in PostgreSQL. The one-active-registration
// rule is a partial unique index on (user_id, event_id) excluding cancelled
// rows, so concurrent duplicate registrations lose at the database, not in
// application sequencing.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const registrationColumns = `id, user_id, event_id, status, registration_date, score, answers,
	start_time, end_time, duration_minutes, certificate_id, certificate_issued, certificate_url,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, r *registration.Registration) error {
	answers, err := json.Marshal(answersOrEmpty(r.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	query := `
		INSERT INTO registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.UserID, r.EventID, string(r.Status), r.RegistrationDate, r.Score, answers,
		r.StartTime, r.EndTime, r.DurationMinutes,
		certID(r.Certificate), certIssued(r.Certificate), certURL(r.Certificate),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*registration.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return scanRegistration(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*registration.Registration, error) {
	query := `
		SELECT ` + registrationColumns + ` FROM registrations
		WHERE user_id = $1 AND event_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanRegistration(s.db.QueryRowContext(ctx, query, userID, eventID))
}

func (s *Postgres) Update(ctx context.Context, r *registration.Registration) error {
	answers, err := json.Marshal(answersOrEmpty(r.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	query := `
		UPDATE registrations
		SET status = $2, registration_date = $3, score = $4, answers = $5,
			start_time = $6, end_time = $7, duration_minutes = $8,
			certificate_id = $9, certificate_issued = $10, certificate_url = $11,
			updated_at = $12
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		r.ID, string(r.Status), r.RegistrationDate, r.Score, answers,
		r.StartTime, r.EndTime, r.DurationMinutes,
		certID(r.Certificate), certIssued(r.Certificate), certURL(r.Certificate),
		r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update registration: %w", err)
	}
	return requireRow(res, "update registration")
}

func (s *Postgres) ListByUser(ctx context.Context, userID uuid.UUID) ([]*registration.Registration, error) {
	query := `
		SELECT ` + registrationColumns + ` FROM registrations
		WHERE user_id = $1
		ORDER BY registration_date DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func (s *Postgres) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*registration.Registration, error) {
	query := `
		SELECT ` + registrationColumns + ` FROM registrations
		WHERE event_id = $1
		ORDER BY registration_date DESC
	`
	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations by event: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func (s *Postgres) List(ctx context.Context, page, limit int) ([]*registration.Registration, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM registrations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	query := `
		SELECT ` + registrationColumns + ` FROM registrations
		ORDER BY registration_date DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	out, err := collectRegistrations(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM registrations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (s *Postgres) GlobalCounts(ctx context.Context) (registration.StatusCounts, error) {
	query := `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'cancelled')
		FROM registrations
	`
	var counts registration.StatusCounts
	if err := s.db.QueryRowContext(ctx, query).Scan(&counts.Total, &counts.Completed, &counts.Cancelled); err != nil {
		return registration.StatusCounts{}, fmt.Errorf("count registrations by status: %w", err)
	}
	return counts, nil
}

func (s *Postgres) CountActiveByEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM registrations WHERE event_id = $1 AND status <> 'cancelled'`
	var n int
	if err := s.db.QueryRowContext(ctx, query, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return n, nil
}

func (s *Postgres) CountActiveByEvents(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT event_id, count(*) FROM registrations
		WHERE event_id = ANY($1) AND status <> 'cancelled'
		GROUP BY event_id
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("count active registrations: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int, len(eventIDs))
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan active count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (s *Postgres) AggregatesByEvent(ctx context.Context) (map[uuid.UUID]registration.Aggregate, error) {
	return s.groupedAggregates(ctx, "event_id")
}

func (s *Postgres) AggregatesByUser(ctx context.Context) (map[uuid.UUID]registration.Aggregate, error) {
	return s.groupedAggregates(ctx, "user_id")
}

func (s *Postgres) AggregateForEvents(ctx context.Context, eventIDs []uuid.UUID) (registration.Aggregate, error) {
	query := `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'cancelled'),
			avg(score), max(score), count(score)
		FROM registrations
		WHERE event_id = ANY($1)
	`
	var agg registration.Aggregate
	var avg, best sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, pq.Array(eventIDs)).Scan(
		&agg.Counts.Total, &agg.Counts.Completed, &agg.Counts.Cancelled,
		&avg, &best, &agg.Scores.Graded,
	)
	if err != nil {
		return registration.Aggregate{}, fmt.Errorf("aggregate registrations: %w", err)
	}
	if avg.Valid {
		agg.Scores.Average = &avg.Float64
	}
	if best.Valid {
		agg.Scores.Best = &best.Float64
	}
	return agg, nil
}

func (s *Postgres) Trend(ctx context.Context, days int) ([]registration.TrendPoint, error) {
	query := `
		SELECT to_char(registration_date AT TIME ZONE 'UTC', 'YYYY-MM-DD'), count(*)
		FROM registrations
		WHERE registration_date >= now() - make_interval(days => $1)
		GROUP BY 1
	`
	rows, err := s.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("registration trend: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int, days)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		byDay[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	points := make([]registration.TrendPoint, 0, days)
	today := time.Now().UTC()
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		points = append(points, registration.TrendPoint{Date: day, Count: byDay[day]})
	}
	return points, nil
}

func (s *Postgres) Leaderboard(ctx context.Context, limit int) ([]registration.LeaderboardEntry, error) {
	query := `
		SELECT user_id, avg(score), count(*)
		FROM registrations
		WHERE status = 'completed' AND score IS NOT NULL
		GROUP BY user_id
		ORDER BY avg(score) DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []registration.LeaderboardEntry
	for rows.Next() {
		var entry registration.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.AverageScore, &entry.Completed); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Postgres) groupedAggregates(ctx context.Context, column string) (map[uuid.UUID]registration.Aggregate, error) {
	query := `
		SELECT ` + column + `, count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'cancelled'),
			avg(score), max(score), count(score)
		FROM registrations
		GROUP BY ` + column
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate registrations by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]registration.Aggregate)
	for rows.Next() {
		var id uuid.UUID
		var agg registration.Aggregate
		var avg, best sql.NullFloat64
		err := rows.Scan(&id, &agg.Counts.Total, &agg.Counts.Completed, &agg.Counts.Cancelled,
			&avg, &best, &agg.Scores.Graded)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		if avg.Valid {
			agg.Scores.Average = &avg.Float64
		}
		if best.Valid {
			agg.Scores.Best = &best.Float64
		}
		out[id] = agg
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*registration.Registration, error) {
	var r registration.Registration
	var answers []byte
	var score sql.NullFloat64
	var startTime, endTime, certIssued sql.NullTime
	var duration sql.NullInt64
	var certificateID uuid.NullUUID
	var certificateURL string

	err := row.Scan(
		&r.ID, &r.UserID, &r.EventID, &r.Status, &r.RegistrationDate, &score, &answers,
		&startTime, &endTime, &duration, &certificateID, &certIssued, &certificateURL,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	if score.Valid {
		r.Score = &score.Float64
	}
	if startTime.Valid {
		r.StartTime = &startTime.Time
	}
	if endTime.Valid {
		r.EndTime = &endTime.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		r.DurationMinutes = &d
	}
	if certificateID.Valid {
		r.Certificate = &registration.CertificateRef{
			ID:      certificateID.UUID,
			FileURL: certificateURL,
		}
		if certIssued.Valid {
			r.Certificate.IssuedDate = certIssued.Time
		}
	}
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &r, nil
}

func collectRegistrations(rows *sql.Rows) ([]*registration.Registration, error) {
	var out []*registration.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func answersOrEmpty(answers []registration.Answer) []registration.Answer {
	if answers == nil {
		return []registration.Answer{}
	}
	return answers
}

func certID(c *registration.CertificateRef) uuid.NullUUID {
	if c == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: c.ID, Valid: true}
}

func certIssued(c *registration.CertificateRef) sql.NullTime {
	if c == nil || c.IssuedDate.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: c.IssuedDate, Valid: true}
}

func certURL(c *registration.CertificateRef) string {
	if c == nil {
		return ""
	}
	return c.FileURL
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
