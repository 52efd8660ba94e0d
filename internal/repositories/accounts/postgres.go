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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgAccountColumns = `id, username, username_key, verifier, salt, kdf_params,
	failed_attempts, locked_until, is_active, created_at, last_login`

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (username, username_key, verifier, salt, kdf_params, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		a.Username, a.UsernameKey, a.Verifier, a.Salt, a.KDFParams, a.IsActive, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.FailedAttempts = 0
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + pgAccountColumns + ` FROM accounts WHERE id = $1`
	return scanPostgresAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, usernameKey string) (*models.Account, error) {
	query := `SELECT ` + pgAccountColumns + ` FROM accounts WHERE username_key = $1`
	return scanPostgresAccount(r.db.QueryRowContext(ctx, query, usernameKey))
}

func scanPostgresAccount(row *sql.Row) (*models.Account, error) {
	var (
		a           models.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.UsernameKey, &a.Verifier, &a.Salt, &a.KDFParams,
		&a.FailedAttempts, &lockedUntil, &a.IsActive, &a.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.LockedUntil = dbx.NullTimePtr(lockedUntil)
	a.LastLogin = dbx.NullTimePtr(lastLogin)
	return &a, nil
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id int64) (int, error) {
	query :=
		`UPDATE accounts SET failed_attempts = failed_attempts + 1
		 WHERE id = $1
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

func (r *PostgresRepository) Lock(ctx context.Context, id int64, until time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET locked_until = $1 WHERE id = $2`, until, id)
}

func (r *PostgresRepository) ClearLockout(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE accounts SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, id)
}

func (r *PostgresRepository) RecordSuccess(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL, last_login = $1 WHERE id = $2`,
		at, id)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.exec(ctx, `UPDATE accounts SET is_active = $1 WHERE id = $2`, active, id)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}
