// Package repomanager vends repository implementations for a storage
// backend and owns opening the database and running its migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/filex"
	"github.com/dmitrijs2005/keyvault/internal/repositories/accounts"
	"github.com/dmitrijs2005/keyvault/internal/repositories/entries"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Entries(db dbx.DBTX) entries.Repository
}

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas are appended to every SQLite DSN. Foreign keys are off by
// default in SQLite and the schema relies on them.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects to the configured backend, verifies the connection and
// returns the matching RepositoryManager. Migrations are not run.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, RepositoryManager, error) {
	var (
		db  *sql.DB
		m   RepositoryManager
		err error
	)

	switch driver {
	case DriverSQLite:
		if path, ok := sqliteFilePath(dsn); ok {
			if _, err := filex.EnsureParentDir(path); err != nil {
				return nil, nil, fmt.Errorf("prepare sqlite dir: %w", err)
			}
		}
		db, err = sqlOpen("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one writer; also keeps file-less databases on a single connection
		db.SetMaxOpenConns(1)
		m = NewSQLiteRepositoryManager()
	case DriverPostgres:
		db, err = sqlOpen("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		m = NewPostgresRepositoryManager()
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, m, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// sqliteFilePath extracts the database file from a DSN. In-memory databases
// report false.
func sqliteFilePath(dsn string) (string, bool) {
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.Contains(query, "mode=memory") {
		return "", false
	}
	return path, true
}
