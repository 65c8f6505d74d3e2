package sqldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-portal/internal/repository"
)

func openTestStore(t *testing.T) (*DB, repository.Store) {
	t.Helper()

	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	require.NoError(t, store.Init(context.Background()))
	return db, store
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "UPDATE users SET name = $1, email = $2 WHERE id = $3",
		pg.rebind("UPDATE users SET name = ?, email = ? WHERE id = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestDDL(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "id BIGSERIAL PRIMARY KEY, at TIMESTAMPTZ", pg.ddl("id {{serial}}, at {{timestamp}}"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT, at DATETIME", lite.ddl("id {{serial}}, at {{timestamp}}"))
}

func TestInit_Idempotent(t *testing.T) {
	_, store := openTestStore(t)
	require.NoError(t, store.Init(context.Background()))
}
