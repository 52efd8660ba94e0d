package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keyvault/internal/migrations"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/repositories/accounts"
	"github.com/dmitrijs2005/keyvault/internal/repositories/entries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"vault.db", "vault.db?" + sqlitePragmas},
		{"file:vault.db?mode=rwc", "file:vault.db?mode=rwc&" + sqlitePragmas},
		{"vault.db?_pragma=journal_mode(WAL)", "vault.db?_pragma=journal_mode(WAL)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDSN(tt.in))
	}
}

func TestSqliteFilePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"vault.db", "vault.db", true},
		{"file:data/vault.db?mode=rwc", "data/vault.db", true},
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:vault?mode=memory&cache=shared", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := sqliteFilePath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOpen_SQLiteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "vault.db")
	db, _, err := Open(context.Background(), DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fi, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, _, err := Open(context.Background(), "oracle", "x")
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestOpen_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	db, m, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.IsType(t, &SQLiteRepositoryManager{}, m)
	require.NoError(t, m.RunMigrations(ctx, db))

	acc, err := m.Accounts(db).Create(ctx, &models.Account{
		Username: "alice", UsernameKey: "alice",
		Verifier: []byte("v"), Salt: []byte("s"), KDFParams: "k",
		IsActive: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// foreign keys are enforced through the DSN pragma
	err = m.Entries(db).Create(ctx, &models.Entry{
		ID: "orphan", OwnerID: acc.ID + 100, SiteLabel: "x", SecretCiphertext: []byte("c"),
		CreatedAt: time.Now().UTC(), ModifiedAt: time.Now().UTC(),
	})
	require.Error(t, err)
}

func TestOpen_PingFailure(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	var mock sqlmock.Sqlmock
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driver)
		db, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		mock = m
		if err == nil {
			mock.ExpectPing().WillReturnError(errors.New("refused"))
			mock.ExpectClose()
		}
		return db, err
	}

	_, _, err := Open(context.Background(), DriverPostgres, "postgres://x")
	require.ErrorContains(t, err, "refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFactories(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var m RepositoryManager = NewPostgresRepositoryManager()
	assert.IsType(t, &accounts.PostgresRepository{}, m.Accounts(db))
	assert.IsType(t, &entries.PostgresRepository{}, m.Entries(db))
}

func TestPostgresRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := migrateUp
	t.Cleanup(func() { migrateUp = orig })

	var got migrations.Dialect
	migrateUp = func(ctx context.Context, db *sql.DB, d migrations.Dialect) error {
		got = d
		return errors.New("boom")
	}

	err = NewPostgresRepositoryManager().RunMigrations(context.Background(), db)
	require.EqualError(t, err, "boom")
	assert.Equal(t, migrations.DialectPostgres, got)
}
