// Package migrations embeds the goose schema migrations, one directory per
// SQL dialect, and applies them.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) source() (fs.FS, goose.Dialect, error) {
	var (
		root embed.FS
		gd   goose.Dialect
	)
	switch d {
	case DialectSQLite:
		root, gd = sqliteFS, goose.DialectSQLite3
	case DialectPostgres:
		root, gd = postgresFS, goose.DialectPostgres
	default:
		return nil, "", fmt.Errorf("unsupported dialect %q", d)
	}
	sub, err := fs.Sub(root, string(d))
	if err != nil {
		return nil, "", err
	}
	return sub, gd, nil
}

func newProvider(db *sql.DB, d Dialect) (*goose.Provider, error) {
	fsys, gd, err := d.source()
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gd, db, fsys)
}

// Up applies every pending migration. Running it twice is a no-op.
func Up(ctx context.Context, db *sql.DB, d Dialect) error {
	p, err := newProvider(db, d)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Version returns the schema version currently applied.
func Version(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	p, err := newProvider(db, d)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}
