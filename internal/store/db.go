package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Migrate creates the schema when missing.
func (d *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id              UUID PRIMARY KEY,
		name            TEXT NOT NULL,
		username        TEXT NOT NULL,
		password_hash   TEXT NOT NULL,
		rfid_tag        TEXT,
		face_descriptor JSONB,
		role            TEXT NOT NULL DEFAULT 'user',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_rfid_tag_key UNIQUE (rfid_tag)
	);

	CREATE TABLE IF NOT EXISTS attendance_entries (
		id        UUID PRIMARY KEY,
		user_id   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		day       DATE NOT NULL,
		clock_in  TIMESTAMPTZ NOT NULL,
		clock_out TIMESTAMPTZ,
		status    TEXT NOT NULL DEFAULT 'Hadir',
		CONSTRAINT attendance_entries_user_day_key UNIQUE (user_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_entries_user ON attendance_entries(user_id);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
