package domain

import "time"

// Role controls access to administrative procedures.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// User represents an account of the portal.
type User struct {
	ID            string
	Name          string
	Email         string
	EmailVerified bool
	PasswordHash  string
	Phone         *string
	Image         *string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
