package services

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Vault is the session-scoped entry point used by interactive callers. It
// resolves the session to its user and cached key and routes the request
// through the credential store, requiring a view permission for reveals.
type Vault struct {
	sessions    *SessionManager
	permissions *ViewPermissionManager
	store       *CredentialStore
}

func NewVault(sessions *SessionManager, permissions *ViewPermissionManager, store *CredentialStore) *Vault {
	return &Vault{sessions: sessions, permissions: permissions, store: store}
}

// Entries lists the session user's entries with secrets withheld.
func (v *Vault) Entries(ctx context.Context, sessionID string) ([]models.CredentialView, error) {
	uid, err := v.sessions.Validate(sessionID)
	if err != nil {
		return nil, err
	}
	return v.store.ListEntries(ctx, uid)
}

// Add stores a new entry sealed with the session key.
func (v *Vault) Add(ctx context.Context, sessionID string, in EntryInput) (string, error) {
	uid, key, err := v.sessionKey(sessionID)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	return v.store.CreateEntry(ctx, uid, in, key)
}

// Unlock requests a view permission for the session.
func (v *Vault) Unlock(ctx context.Context, sessionID string, password []byte, minutes int) (*models.Grant, error) {
	uid, err := v.sessions.Validate(sessionID)
	if err != nil {
		return nil, err
	}
	return v.permissions.Grant(ctx, sessionID, uid, password, minutes)
}

// Reveal decrypts one entry. It fails with common.ErrPermissionDenied when
// the session holds no grant. A view is consumed only once the entry is
// known to exist and belong to the session user.
func (v *Vault) Reveal(ctx context.Context, sessionID, entryID string) (*models.CredentialView, error) {
	uid, key, err := v.sessionKey(sessionID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	if !v.permissions.HasPermission(sessionID) {
		return nil, common.ErrPermissionDenied
	}
	return v.store.reveal(ctx, entryID, uid, key, func() bool {
		return v.permissions.RecordView(sessionID, entryID)
	})
}

// Show returns one entry with its secret withheld.
func (v *Vault) Show(ctx context.Context, sessionID, entryID string) (*models.CredentialView, error) {
	uid, err := v.sessions.Validate(sessionID)
	if err != nil {
		return nil, err
	}
	return v.store.GetEntry(ctx, entryID, uid, nil)
}

// Edit changes an entry; new secrets are sealed with the session key.
func (v *Vault) Edit(ctx context.Context, sessionID, entryID string, upd EntryUpdate) error {
	uid, key, err := v.sessionKey(sessionID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)
	return v.store.UpdateEntry(ctx, entryID, uid, upd, key)
}

// Remove deletes an entry and reports whether it existed.
func (v *Vault) Remove(ctx context.Context, sessionID, entryID string) (bool, error) {
	uid, err := v.sessions.Validate(sessionID)
	if err != nil {
		return false, err
	}
	return v.store.DeleteEntry(ctx, entryID, uid)
}

func (v *Vault) sessionKey(sessionID string) (int64, []byte, error) {
	uid, err := v.sessions.Validate(sessionID)
	if err != nil {
		return 0, nil, err
	}
	key, err := v.sessions.Key(sessionID)
	if err != nil {
		return 0, nil, err
	}
	return uid, key, nil
}
