package model

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates the identity roles on the platform.
type Role string

const (
	RoleFarmer       Role = "FARMER"
	RoleAdmin        Role = "ADMIN"
	RoleFieldOfficer Role = "FIELD_OFFICER"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleFarmer, RoleAdmin, RoleFieldOfficer:
		return true
	}
	return false
}

// Identity is a durable identity record. Username, email, and phone number
// are each globally unique among committed records.
type Identity struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Role         Role
	Active       bool
	Verified     bool
	CreatedAt    time.Time
}

// StagedRegistration is a registration request held in the ephemeral store
// pending OTP confirmation. The password is hashed at staging time so the
// plaintext never outlives the HTTP request.
type StagedRegistration struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phone_number"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	StagedAt     time.Time `json:"staged_at"`
}

// RefreshSession represents a refresh token session
type RefreshSession struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}
