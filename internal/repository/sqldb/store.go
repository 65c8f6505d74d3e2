package sqldb

import "account-portal/internal/repository"

// NewStore wires every sql-backed repository onto db.
func NewStore(db *DB) repository.Store {
	return repository.Store{
		Users:    NewUserRepository(db),
		Sessions: NewSessionRepository(db),
		Todos:    NewTodoRepository(db),
	}
}
