package repository

import (
	"context"
	"errors"

	"account-portal/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// UserPatch lists the profile fields to change. Nil fields are left untouched.
type UserPatch struct {
	Name  *string
	Email *string
	Phone *string
	Image *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Image == nil
}

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// List returns every user ordered by name ascending.
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id string, patch UserPatch) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}
