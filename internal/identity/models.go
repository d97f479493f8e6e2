package identity

import (
	"time"

	"github.com/google/uuid"

	"certo/internal/policy"
)

// User is the root identity entity. PasswordHash and RefreshToken never
// leave the service layer.
type User struct {
	ID           uuid.UUID   `json:"id"`
	FullName     string      `json:"fullName"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         policy.Role `json:"role"`
	CollegeName  string      `json:"collegeName"`
	Department   string      `json:"department"`
	Year         int         `json:"year"`
	AvatarURL    string      `json:"avatar"`
	GoogleID     string      `json:"-"`
	RefreshToken string      `json:"-"`
	LastLogin    *time.Time  `json:"lastLogin,omitempty"`
	IsActive     bool        `json:"isActive"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Filter narrows admin user listings.
type Filter struct {
	Role   policy.Role
	Search string // case-insensitive match on name or email
}

// AuthResult is returned by login and refresh flows.
type AuthResult struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
