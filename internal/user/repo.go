package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists user records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user. RFID tags are uppercase-normalized before the
// write; unique violations are mapped to the duplicate sentinels.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.RFIDTag != nil {
		tag := NormalizeTag(*u.RFIDTag)
		if tag == "" {
			u.RFIDTag = nil
		} else {
			u.RFIDTag = &tag
		}
	}

	descriptor, err := marshalDescriptor(u.FaceDescriptor)
	if err != nil {
		return User{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, password_hash, rfid_tag, face_descriptor, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Name, u.Username, u.PasswordHash, u.RFIDTag, descriptor, u.Role, u.CreatedAt)
	if err != nil {
		return User{}, mapUniqueViolation(err)
	}
	return u, nil
}

// GetByID returns a single user by id.
func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByUsername returns a single user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.get(ctx, `WHERE username = $1`, username)
}

// GetByRFID returns the user holding the normalized tag.
func (r *Repository) GetByRFID(ctx context.Context, tag string) (User, error) {
	return r.get(ctx, `WHERE rfid_tag = $1`, NormalizeTag(tag))
}

func (r *Repository) get(ctx context.Context, where string, arg any) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, username, password_hash, rfid_tag, face_descriptor, role, created_at
		FROM users `+where, arg)
	var (
		u          User
		descriptor []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.PasswordHash, &u.RFIDTag, &descriptor, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if len(descriptor) > 0 {
		if err := json.Unmarshal(descriptor, &u.FaceDescriptor); err != nil {
			return User{}, fmt.Errorf("decode face descriptor: %w", err)
		}
	}
	return u, nil
}

// List returns all users in sanitized form.
func (r *Repository) List(ctx context.Context) ([]Public, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, username, rfid_tag, role, created_at
		FROM users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Public
	for rows.Next() {
		var (
			p   Public
			tag sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Username, &tag, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RFIDTag = tag.String
		res = append(res, p)
	}
	return res, rows.Err()
}

// Delete permanently removes a user. Admin records are refused.
func (r *Repository) Delete(ctx context.Context, id string) error {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == RoleAdmin {
		return ErrProtectedRole
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// EnsureAdmin creates the bootstrap admin account once; subsequent starts
// leave the existing record alone.
func (r *Repository) EnsureAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, password_hash, role, created_at)
		VALUES ($1, 'Administrator', $2, $3, $4, NOW())
		ON CONFLICT (username) DO NOTHING
	`, uuid.NewString(), username, passwordHash, RoleAdmin)
	return err
}

func marshalDescriptor(descriptor []float64) ([]byte, error) {
	if descriptor == nil {
		return nil, nil
	}
	if len(descriptor) != DescriptorLen {
		return nil, ErrBadDescriptor
	}
	return json.Marshal(descriptor)
}

// mapUniqueViolation translates Postgres unique violations (code 23505) into
// the duplicate sentinels by constraint name.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return ErrDuplicateUsername
		case "users_rfid_tag_key":
			return ErrDuplicateRFID
		}
	}
	return err
}
