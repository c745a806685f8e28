package user

import (
	"errors"
	"strings"
	"time"
)

// DescriptorLen is the fixed length of a face descriptor vector.
const DescriptorLen = 128

// Roles assignable to users. Enrollment always creates RoleUser; RoleAdmin
// exists only through the startup bootstrap.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateRFID     = errors.New("rfid tag already assigned")
	ErrProtectedRole     = errors.New("admin accounts cannot be deleted")
	ErrNoFaceData        = errors.New("no face descriptor enrolled")
	ErrBadDescriptor     = errors.New("face descriptor must contain exactly 128 values")
)

// User is the persisted account record.
type User struct {
	ID             string
	Name           string
	Username       string
	PasswordHash   string
	RFIDTag        *string
	FaceDescriptor []float64
	Role           string
	CreatedAt      time.Time
}

// Public is the read view of a user, with the password hash and face
// descriptor stripped.
type Public struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	RFIDTag   string    `json:"rfidTag,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns the sanitized view.
func (u User) Public() Public {
	p := Public{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.RFIDTag != nil {
		p.RFIDTag = *u.RFIDTag
	}
	return p
}

// NormalizeTag uppercases an RFID tag; empty stays empty.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
