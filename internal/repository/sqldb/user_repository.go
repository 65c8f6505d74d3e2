package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	password_hash TEXT NOT NULL,
	phone TEXT NULL,
	image TEXT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);
`

const selectUserColumns = `id, name, email, email_verified, password_hash, phone, image, role, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := r.db.execAll(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
INSERT INTO users (id, name, email, email_verified, password_hash, phone, image, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Name,
		user.Email,
		user.EmailVerified,
		user.PasswordHash,
		nullString(user.Phone),
		nullString(user.Image),
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, repository.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+selectUserColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+selectUserColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectUserColumns+` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch repository.UserPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *patch.Phone)
	}
	if patch.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, nullString(emptyAsNil(*patch.Image)))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email: %w", repository.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectAffected(res, "user")
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`), hash, now(), id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectAffected(res, "user")
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`), string(role), now(), id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return expectAffected(res, "user")
}

func emptyAsNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func expectAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, repository.ErrNotFound)
	}
	return nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user  domain.User
		role  string
		phone sql.NullString
		image sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.EmailVerified,
		&user.PasswordHash,
		&phone,
		&image,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Phone = stringPtr(phone)
	user.Image = stringPtr(image)
	user.Role = domain.Role(role)
	return &user, nil
}
