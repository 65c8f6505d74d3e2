package repository

import (
	"context"

	"account-portal/internal/domain"
)

// TodoRepository persists Todo entries.
type TodoRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, todo *domain.Todo) (int64, error)
	List(ctx context.Context) ([]domain.Todo, error)
}
