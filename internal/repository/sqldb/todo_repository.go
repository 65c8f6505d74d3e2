package sqldb

import (
	"context"
	"fmt"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

const createTodosTable = `
CREATE TABLE IF NOT EXISTS todos (
	id {{serial}},
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at {{timestamp}} NOT NULL
);
`

type TodoRepository struct {
	db *DB
}

func NewTodoRepository(db *DB) repository.TodoRepository {
	return &TodoRepository{db: db}
}

func (r *TodoRepository) Init(ctx context.Context) error {
	if err := r.db.execAll(ctx, createTodosTable); err != nil {
		return fmt.Errorf("create todos table: %w", err)
	}
	return nil
}

func (r *TodoRepository) Create(ctx context.Context, todo *domain.Todo) (int64, error) {
	todo.CreatedAt = now()

	row := r.db.QueryRowContext(ctx, r.db.rebind(`
INSERT INTO todos (title, description, created_at)
VALUES (?, ?, ?)
RETURNING id`),
		todo.Title,
		todo.Description,
		todo.CreatedAt,
	)
	if err := row.Scan(&todo.ID); err != nil {
		return 0, fmt.Errorf("insert todo: %w", err)
	}
	return todo.ID, nil
}

func (r *TodoRepository) List(ctx context.Context) ([]domain.Todo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, description, created_at FROM todos ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var todos []domain.Todo
	for rows.Next() {
		var t domain.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}
