// Package services contains the vault's business logic: the credential
// store that enforces ownership and at-rest encryption, the session manager
// that authenticates accounts and enforces lockout, and the view permission
// manager that gates plaintext disclosure. Vault composes the three for
// session-based callers.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/common"
)

// SessionValidator resolves a session token to its user.
type SessionValidator interface {
	Validate(sessionID string) (int64, error)
}

// PasswordVerifier checks a master password against an account's stored
// verifier.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID int64, password []byte) (bool, error)
}

// EntryInput holds the plaintext fields of a new entry. An empty Note means
// the entry has no note.
type EntryInput struct {
	Site   string
	Login  string
	Secret string
	Note   string
}

// EntryUpdate lists the fields to change; nil fields are left as they are.
// Setting Note to an empty string removes the note.
type EntryUpdate struct {
	Site   *string
	Login  *string
	Secret *string
	Note   *string
}

func (u EntryUpdate) empty() bool {
	return u.Site == nil && u.Login == nil && u.Secret == nil && u.Note == nil
}

// storageErr passes taxonomy errors through and hides everything else
// behind a StorageError.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrAlreadyExists),
		errors.Is(err, common.ErrValidation):
		return err
	}
	return common.Storage(op, err)
}

// eventBuffer collects events while locks are held so they can be emitted
// after the locks are released.
type eventBuffer []audit.Event

func (b *eventBuffer) add(e audit.Event) { *b = append(*b, e) }

func (b *eventBuffer) flush(ctx context.Context, em audit.Emitter) {
	for _, e := range *b {
		em.Emit(ctx, e)
	}
	*b = nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
