package repository

import (
	"context"
	"time"

	"account-portal/internal/domain"
)

// SessionRepository persists sign-in sessions.
type SessionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every session of userID except keepID (which may be empty).
	DeleteByUser(ctx context.Context, userID, keepID string) ([]string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
