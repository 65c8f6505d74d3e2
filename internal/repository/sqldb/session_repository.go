package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

const (
	createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	expires_at {{timestamp}} NOT NULL,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);
`
	createSessionsUserIndex = `CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);`
)

const selectSessionColumns = `id, user_id, ip_address, user_agent, expires_at, created_at, updated_at`

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Init(ctx context.Context) error {
	if err := r.db.execAll(ctx, createSessionsTable, createSessionsUserIndex); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	ts := now()
	session.CreatedAt = ts
	session.UpdatedAt = ts
	session.ExpiresAt = session.ExpiresAt.UTC().Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx, r.db.rebind(`
INSERT INTO sessions (id, user_id, ip_address, user_agent, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT `+selectSessionColumns+` FROM sessions WHERE id = ?`), id)
	return scanSession(row)
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
SELECT `+selectSessionColumns+`
FROM sessions
WHERE user_id = ?
ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectAffected(res, "session")
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID, keepID string) ([]string, error) {
	sessions, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, s := range sessions {
		if s.ID == keepID {
			continue
		}
		if _, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE id = ?`), s.ID); err != nil {
			return removed, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
		removed = append(removed, s.ID)
	}
	return removed, nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM sessions WHERE expires_at <= ?`), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return n, nil
}

func scanSession(row interface {
	Scan(dest ...any) error
}) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.IPAddress,
		&s.UserAgent,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
