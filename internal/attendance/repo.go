package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry is one calendar day of attendance for one user.
type Entry struct {
	ID       string     `json:"id"`
	UserID   string     `json:"-"`
	Day      time.Time  `json:"date"`
	ClockIn  time.Time  `json:"clockIn"`
	ClockOut *time.Time `json:"clockOut,omitempty"`
	Status   string     `json:"status"`
}

// Repository persists attendance entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ClockIn creates the day's entry if none exists. The unique (user_id, day)
// constraint makes the insert the transition check itself, so two concurrent
// scans cannot both open an entry. The second return reports whether this
// call created the entry.
func (r *Repository) ClockIn(ctx context.Context, userID string, day, now time.Time) (Entry, bool, error) {
	entry := Entry{
		ID:      uuid.NewString(),
		UserID:  userID,
		Day:     day,
		ClockIn: now,
		Status:  StatusPresent,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_entries (id, user_id, day, clock_in, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, day) DO NOTHING
		RETURNING id
	`, entry.ID, entry.UserID, entry.Day, entry.ClockIn, entry.Status)
	if err := row.Scan(&entry.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

// ClockOut fills the day's clock-out, but only while it is still unset; the
// predicate doubles as the state check so the write happens at most once.
// The second return reports whether a row transitioned.
func (r *Repository) ClockOut(ctx context.Context, userID string, day, now time.Time) (Entry, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_entries
		SET clock_out = $3
		WHERE user_id = $1 AND day = $2 AND clock_out IS NULL
		RETURNING id, clock_in, status
	`, userID, day, now)
	entry := Entry{UserID: userID, Day: day, ClockOut: &now}
	if err := row.Scan(&entry.ID, &entry.ClockIn, &entry.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

// ListForUser returns the user's entries oldest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, day, clock_in, clock_out, status
		FROM attendance_entries
		WHERE user_id = $1
		ORDER BY day
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Day, &e.ClockIn, &e.ClockOut, &e.Status); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
