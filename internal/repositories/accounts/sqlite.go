package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a SQLiteRepository bound to db.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteAccountColumns = `id, username, username_key, verifier, salt, kdf_params,
	failed_attempts, locked_until, is_active, created_at, last_login`

func (r *SQLiteRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query := `INSERT INTO accounts (username, username_key, verifier, salt, kdf_params,
			failed_attempts, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		a.Username, a.UsernameKey, a.Verifier, a.Salt, a.KDFParams, a.IsActive, dbx.UnixNano(a.CreatedAt))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.ID = id
	a.FailedAttempts = 0
	return a, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE id = ?`
	return scanSQLiteAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, usernameKey string) (*models.Account, error) {
	query := `SELECT ` + sqliteAccountColumns + ` FROM accounts WHERE username_key = ?`
	return scanSQLiteAccount(r.db.QueryRowContext(ctx, query, usernameKey))
}

func scanSQLiteAccount(row *sql.Row) (*models.Account, error) {
	var (
		a           models.Account
		lockedUntil sql.NullInt64
		createdAt   int64
		lastLogin   sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Username, &a.UsernameKey, &a.Verifier, &a.Salt, &a.KDFParams,
		&a.FailedAttempts, &lockedUntil, &a.IsActive, &createdAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.LockedUntil = dbx.TimePtr(lockedUntil)
	a.CreatedAt = dbx.FromUnixNano(createdAt)
	a.LastLogin = dbx.TimePtr(lastLogin)
	return &a, nil
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id int64) (int, error) {
	query := `UPDATE accounts SET failed_attempts = failed_attempts + 1
		WHERE id = ?
		RETURNING failed_attempts`

	var n int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Lock(ctx context.Context, id int64, until time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET locked_until = ? WHERE id = ?`, dbx.UnixNano(until), id)
}

func (r *SQLiteRepository) ClearLockout(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = ?`, id)
}

func (r *SQLiteRepository) RecordSuccess(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL, last_login = ? WHERE id = ?`,
		dbx.UnixNano(at), id)
}

func (r *SQLiteRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, active, id)
}

// exec runs a single-row update and maps zero affected rows to ErrNotFound.
func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
