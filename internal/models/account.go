// Package models defines the data types persisted by the vault and the
// in-memory records kept by the session and permission managers.
package models

import "time"

// Account is a master account. The password itself is never stored; the
// Verifier and Salt together let the vault check a supplied password.
type Account struct {
	ID          int64
	Username    string
	UsernameKey string // lower-cased Username, unique
	Verifier    []byte
	Salt        []byte
	KDFParams   string

	FailedAttempts int
	LockedUntil    *time.Time
	IsActive       bool

	CreatedAt time.Time
	LastLogin *time.Time
}

// IsLocked reports whether a lockout is in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// HasStaleLock reports whether a lockout was recorded but has run out.
func (a *Account) HasStaleLock(now time.Time) bool {
	return a.LockedUntil != nil && !now.Before(*a.LockedUntil)
}
