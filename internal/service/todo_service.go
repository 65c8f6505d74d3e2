package service

import (
	"context"
	"time"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

// TodoService coordinates todo operations backed by repositories.
type TodoService interface {
	CreateTodo(ctx context.Context, title, description string) (*domain.Todo, error)
	ListTodos(ctx context.Context) ([]domain.Todo, error)
}

type todoService struct {
	todos repository.TodoRepository
	now   func() time.Time
}

func NewTodoService(todos repository.TodoRepository) TodoService {
	return &todoService{
		todos: todos,
		now:   time.Now,
	}
}

func (s *todoService) CreateTodo(ctx context.Context, title, description string) (*domain.Todo, error) {
	todo := &domain.Todo{
		Title:       title,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}

	id, err := s.todos.Create(ctx, todo)
	if err != nil {
		return nil, err
	}
	todo.ID = id
	return todo, nil
}

func (s *todoService) ListTodos(ctx context.Context) ([]domain.Todo, error) {
	return s.todos.List(ctx)
}
