package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certo/internal/certificate"
	"certo/pkg/sentinel"
)

// Postgres persists certificates in PostgreSQL. The unique index on
// (user_id, event_id) makes duplicate issuance lose at the database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const certificateColumns = `id, user_id, event_id, score, issued_date, file_url,
	is_revoked, revoked_date, revoked_reason, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, c *certificate.Certificate) error {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.EventID, c.Score, c.IssuedDate, c.FileURL,
		c.IsRevoked, c.RevokedDate, c.RevokedReason, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*certificate.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	return scanCertificate(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) ListByUser(ctx context.Context, userID uuid.UUID) ([]*certificate.Certificate, error) {
	query := `
		SELECT ` + certificateColumns + ` FROM certificates
		WHERE user_id = $1
		ORDER BY issued_date DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates by user: %w", err)
	}
	defer rows.Close()

	var out []*certificate.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) Update(ctx context.Context, c *certificate.Certificate) error {
	query := `
		UPDATE certificates
		SET score = $2, is_revoked = $3, revoked_date = $4, revoked_reason = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		c.ID, c.Score, c.IsRevoked, c.RevokedDate, c.RevokedReason, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return requireRow(res, "update certificate")
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return requireRow(res, "delete certificate")
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*certificate.Certificate, error) {
	var c certificate.Certificate
	var revokedDate sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.EventID, &c.Score, &c.IssuedDate, &c.FileURL,
		&c.IsRevoked, &revokedDate, &c.RevokedReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	if revokedDate.Valid {
		c.RevokedDate = &revokedDate.Time
	}
	return &c, nil
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
