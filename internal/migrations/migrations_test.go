package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUp_SQLite_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.NoError(t, Up(ctx, db, DialectSQLite))

	require.True(t, tableExists(t, db, "accounts"))
	require.True(t, tableExists(t, db, "entries"))

	v, err := Version(ctx, db, DialectSQLite)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestUp_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.NoError(t, Up(ctx, db, DialectSQLite))
	require.NoError(t, Up(ctx, db, DialectSQLite))
}

func TestUp_UnknownDialect(t *testing.T) {
	db := openSQLite(t)
	require.Error(t, Up(context.Background(), db, Dialect("oracle")))
}

func TestPostgresMigrationsEmbedded(t *testing.T) {
	fsys, _, err := DialectPostgres.source()
	require.NoError(t, err)

	b, err := fs.ReadFile(fsys, "00001_init.sql")
	require.NoError(t, err)
	require.Contains(t, string(b), "TIMESTAMPTZ")
}
