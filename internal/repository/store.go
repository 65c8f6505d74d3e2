package repository

import "context"

// Store bundles the repositories shared by every request.
type Store struct {
	Users    UserRepository
	Sessions SessionRepository
	Todos    TodoRepository
}

// Init creates the tables backing every repository.
func (s Store) Init(ctx context.Context) error {
	if err := s.Users.Init(ctx); err != nil {
		return err
	}
	if err := s.Sessions.Init(ctx); err != nil {
		return err
	}
	return s.Todos.Init(ctx)
}
