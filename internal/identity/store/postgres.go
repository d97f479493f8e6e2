package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"certo/internal/identity"
	"certo/internal/policy"
	"certo/pkg/sentinel"
)

// Postgres persists users in PostgreSQL. Pure I/O; uniqueness is enforced by
// the schema's indexes so concurrent registrations cannot race past the
// duplicate check.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `id, full_name, email, password_hash, role, college_name, department,
	year, avatar_url, google_id, refresh_token, last_login, is_active, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, u *identity.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.PasswordHash, string(u.Role), u.CollegeName,
		u.Department, u.Year, u.AvatarURL, u.GoogleID, u.RefreshToken,
		u.LastLogin, u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Postgres) ExistsByName(ctx context.Context, fullName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(full_name) = lower($1))`, fullName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists by name: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Update(ctx context.Context, u *identity.User) error {
	query := `
		UPDATE users SET
			full_name = $2, email = $3, password_hash = $4, role = $5,
			college_name = $6, department = $7, year = $8, avatar_url = $9,
			google_id = $10, refresh_token = $11, last_login = $12,
			is_active = $13, updated_at = now()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.PasswordHash, string(u.Role), u.CollegeName,
		u.Department, u.Year, u.AvatarURL, u.GoogleID, u.RefreshToken,
		u.LastLogin, u.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter identity.Filter) ([]*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	args := []any{}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (full_name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListRecent(ctx context.Context, limit int) ([]*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*identity.User, error) {
	var u identity.User
	var role string
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &role, &u.CollegeName,
		&u.Department, &u.Year, &u.AvatarURL, &u.GoogleID, &u.RefreshToken,
		&lastLogin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = policy.ParseRole(role)
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*identity.User, error) {
	var out []*identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
