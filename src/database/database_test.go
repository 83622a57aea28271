package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	db, err := Open(path)
	require.NoError(t, err)

	for _, table := range []string{"users", "sessions", "contributions", "withdrawals", "welfare_services", "welfare_applications", "notifications"} {
		cols, err := tableColumns(db, table)
		require.NoError(t, err)
		assert.NotNil(t, cols, table)
	}
	require.NoError(t, db.Close())

	// Reopening an up-to-date database is a no-op.
	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenMigratesOldUsersTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO users (username, password, email) VALUES ('legacy', 'x', 'legacy@example.org')`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	cols, err := tableColumns(db, "users")
	require.NoError(t, err)
	for _, col := range []string{"full_name", "staff_number", "role", "status", "joined_at", "is_email_verified", "password_reset_token"} {
		assert.True(t, cols[col], col)
	}

	var role, status string
	require.NoError(t, db.QueryRow(`SELECT role, status FROM users WHERE username = 'legacy'`).Scan(&role, &status))
	assert.Equal(t, "member", role)
	assert.Equal(t, "active", status)
}

func TestTableColumnsMissingTable(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	cols, err := tableColumns(db, "no_such_table")
	require.NoError(t, err)
	assert.Nil(t, cols)
}
