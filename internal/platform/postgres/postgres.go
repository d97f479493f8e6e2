package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Statements are idempotent so the command can
// run on every deploy.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		college_name TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		year INT NOT NULL DEFAULT 0,
		avatar_url TEXT NOT NULL DEFAULT '',
		google_id TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		last_login TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		duration_minutes INT NOT NULL,
		max_participants INT NOT NULL,
		questions JSONB NOT NULL DEFAULT '[]',
		image_url TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_title_description_key
		ON events (title, description)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		event_id UUID NOT NULL,
		status TEXT NOT NULL DEFAULT 'registered',
		registration_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		score DOUBLE PRECISION,
		answers JSONB NOT NULL DEFAULT '[]',
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		duration_minutes INT,
		certificate_id UUID,
		certificate_issued TIMESTAMPTZ,
		certificate_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One active registration per (user, event); cancelled rows stay behind
	// for analytics and can be reactivated in place.
	`CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_key
		ON registrations (user_id, event_id) WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS registrations_event_idx ON registrations (event_id)`,
	`CREATE INDEX IF NOT EXISTS registrations_user_idx ON registrations (user_id)`,
	`CREATE TABLE IF NOT EXISTS certificates (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		event_id UUID NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		issued_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		file_url TEXT NOT NULL,
		is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_date TIMESTAMPTZ,
		revoked_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS certificates_user_event_key
		ON certificates (user_id, event_id)`,
	`CREATE TABLE IF NOT EXISTS question_bank (
		id UUID PRIMARY KEY,
		question TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		options JSONB NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL,
		points INT NOT NULL DEFAULT 1,
		explanation TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '[]',
		created_by UUID NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
