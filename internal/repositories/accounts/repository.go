// Package accounts persists master accounts and the lockout state that the
// session manager mutates on every authentication attempt.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Repository is implemented for SQLite and PostgreSQL. Lookups return
// common.ErrNotFound when no row matches; Create returns
// common.ErrAlreadyExists when the username key or salt is taken.
type Repository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	// GetByUsername looks an account up by its lower-cased username key.
	GetByUsername(ctx context.Context, usernameKey string) (*models.Account, error)

	// RecordFailure atomically increments the failure counter and returns
	// its new value.
	RecordFailure(ctx context.Context, id int64) (int, error)
	Lock(ctx context.Context, id int64, until time.Time) error
	// ClearLockout resets the failure counter and removes any lock.
	ClearLockout(ctx context.Context, id int64) error
	// RecordSuccess clears the lockout state and stamps last_login.
	RecordSuccess(ctx context.Context, id int64, at time.Time) error

	SetActive(ctx context.Context, id int64, active bool) error
}
