package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/config"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/repositories/repomanager"
	"github.com/google/uuid"
)

// Field limits for credential entries.
const (
	MaxSiteLabelLen = 256
	MaxLoginLen     = 256
	MaxSecretLen    = 4096
	MaxNoteLen      = 10 * 1024
)

// CredentialStore persists credential entries for their owners. Secrets
// and notes are sealed before they reach the repository, and every read,
// update and delete checks ownership before touching ciphertext.
type CredentialStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	version     cryptox.Version
	clock       clock.Clock
	events      audit.Emitter
	log         logging.Logger
}

// NewCredentialStore constructs a CredentialStore that seals new secrets
// with the configured cipher version.
func NewCredentialStore(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, events audit.Emitter, log logging.Logger) (*CredentialStore, error) {
	v, err := cryptox.ParseVersion(cfg.CipherVersion)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		db:          db,
		repomanager: m,
		version:     v,
		clock:       clk,
		events:      events,
		log:         log.With("service", "credential_store"),
	}, nil
}

// CreateEntry seals the secret (and note, if any) under key and stores a
// new entry owned by ownerID. It returns the new entry id.
func (s *CredentialStore) CreateEntry(ctx context.Context, ownerID int64, in EntryInput, key []byte) (string, error) {
	if err := validateEntryInput(in); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	secret, err := cryptox.EncryptWith(s.version, []byte(in.Secret), key)
	if err != nil {
		return "", err
	}
	var note []byte
	if in.Note != "" {
		if note, err = cryptox.EncryptWith(s.version, []byte(in.Note), key); err != nil {
			return "", err
		}
	}

	now := s.clock.Now().UTC()
	e := &models.Entry{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		SiteLabel:        in.Site,
		LoginIdentifier:  in.Login,
		SecretCiphertext: secret,
		NoteCiphertext:   note,
		CreatedAt:        now,
		ModifiedAt:       now,
	}
	if err := s.repomanager.Entries(s.db).Create(ctx, e); err != nil {
		s.log.Error(ctx, "create entry failed", "user_id", ownerID, "error", err)
		return "", storageErr("create entry", err)
	}

	s.events.Emit(ctx, audit.Event{
		Kind: audit.KindEntryCreated, UserID: ownerID, Outcome: audit.OutcomeSuccess,
		Detail: audit.Detail{EntryID: e.ID},
	})
	return e.ID, nil
}

// GetEntry returns one entry. Without a key the secret and note are
// withheld; with a key they are decrypted. An entry owned by someone else
// yields common.ErrOwnership before any decryption is attempted.
func (s *CredentialStore) GetEntry(ctx context.Context, entryID string, requesterID int64, key []byte) (*models.CredentialView, error) {
	e, err := s.loadOwned(ctx, s.db, entryID, requesterID, "read")
	if err != nil {
		return nil, err
	}
	if key == nil {
		view := withheldView(e)
		return &view, nil
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.decryptView(ctx, e, requesterID, key)
}

// reveal loads an owned entry, then calls admit before decrypting it. A
// missing or foreign entry never reaches admit; admit returning false
// yields common.ErrPermissionDenied.
func (s *CredentialStore) reveal(ctx context.Context, entryID string, requesterID int64, key []byte, admit func() bool) (*models.CredentialView, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	e, err := s.loadOwned(ctx, s.db, entryID, requesterID, "read")
	if err != nil {
		return nil, err
	}
	if !admit() {
		return nil, common.ErrPermissionDenied
	}
	return s.decryptView(ctx, e, requesterID, key)
}

func (s *CredentialStore) decryptView(ctx context.Context, e *models.Entry, requesterID int64, key []byte) (*models.CredentialView, error) {
	view := withheldView(e)

	secret, err := s.open(ctx, e, e.SecretCiphertext, key)
	if err != nil {
		return nil, err
	}
	view.Secret = string(secret)
	common.WipeByteArray(secret)

	if e.NoteCiphertext != nil {
		note, err := s.open(ctx, e, e.NoteCiphertext, key)
		if err != nil {
			view.Secret = ""
			return nil, err
		}
		view.Note = string(note)
		common.WipeByteArray(note)
	}
	view.Withheld = false

	s.events.Emit(ctx, audit.Event{
		Kind: audit.KindEntryRevealed, UserID: requesterID, Outcome: audit.OutcomeSuccess,
		Detail: audit.Detail{EntryID: e.ID},
	})
	return &view, nil
}

// ListEntries returns the owner's entries with secrets withheld. Listing
// never decrypts.
func (s *CredentialStore) ListEntries(ctx context.Context, ownerID int64) ([]models.CredentialView, error) {
	list, err := s.repomanager.Entries(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error(ctx, "list entries failed", "user_id", ownerID, "error", err)
		return nil, storageErr("list entries", err)
	}
	views := make([]models.CredentialView, 0, len(list))
	for i := range list {
		views = append(views, withheldView(&list[i]))
	}
	return views, nil
}

// UpdateEntry applies the non-nil fields of upd. New secrets and notes are
// sealed with a fresh nonce; key is only needed when one of them changes.
func (s *CredentialStore) UpdateEntry(ctx context.Context, entryID string, requesterID int64, upd EntryUpdate, key []byte) error {
	if upd.empty() {
		return common.NewValidationError("update", "nothing to change")
	}
	if err := validateEntryUpdate(upd); err != nil {
		return err
	}
	if upd.Secret != nil || upd.Note != nil {
		if err := validateKey(key); err != nil {
			return err
		}
	}

	var violation bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := s.repomanager.Entries(tx).GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		if e.OwnerID != requesterID {
			violation = true
			return common.ErrOwnership
		}

		if upd.Site != nil {
			e.SiteLabel = *upd.Site
		}
		if upd.Login != nil {
			e.LoginIdentifier = *upd.Login
		}
		if upd.Secret != nil {
			if e.SecretCiphertext, err = cryptox.EncryptWith(s.version, []byte(*upd.Secret), key); err != nil {
				return err
			}
		}
		if upd.Note != nil {
			e.NoteCiphertext = nil
			if *upd.Note != "" {
				if e.NoteCiphertext, err = cryptox.EncryptWith(s.version, []byte(*upd.Note), key); err != nil {
					return err
				}
			}
		}
		e.ModifiedAt = s.clock.Now().UTC()
		return s.repomanager.Entries(tx).Update(ctx, e)
	})

	switch {
	case violation:
		s.ownershipViolation(ctx, entryID, requesterID, "update")
		return common.ErrOwnership
	case err != nil:
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Error(ctx, "update entry failed", "entry_id", entryID, "error", err)
		}
		return storageErr("update entry", err)
	}

	s.events.Emit(ctx, audit.Event{
		Kind: audit.KindEntryUpdated, UserID: requesterID, Outcome: audit.OutcomeSuccess,
		Detail: audit.Detail{EntryID: entryID},
	})
	return nil
}

// DeleteEntry removes an entry owned by requesterID. It returns false, nil
// when the entry does not exist and common.ErrOwnership when it belongs to
// another account.
func (s *CredentialStore) DeleteEntry(ctx context.Context, entryID string, requesterID int64) (bool, error) {
	if _, err := s.loadOwned(ctx, s.db, entryID, requesterID, "delete"); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := s.repomanager.Entries(s.db).Delete(ctx, entryID, requesterID)
	if err != nil {
		s.log.Error(ctx, "delete entry failed", "entry_id", entryID, "error", err)
		return false, storageErr("delete entry", err)
	}
	if deleted {
		s.events.Emit(ctx, audit.Event{
			Kind: audit.KindEntryDeleted, UserID: requesterID, Outcome: audit.OutcomeSuccess,
			Detail: audit.Detail{EntryID: entryID},
		})
	}
	return deleted, nil
}

func (s *CredentialStore) loadOwned(ctx context.Context, db dbx.DBTX, entryID string, requesterID int64, op string) (*models.Entry, error) {
	e, err := s.repomanager.Entries(db).GetByID(ctx, entryID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Error(ctx, "load entry failed", "entry_id", entryID, "error", err)
		}
		return nil, storageErr(op+" entry", err)
	}
	if e.OwnerID != requesterID {
		s.ownershipViolation(ctx, entryID, requesterID, op)
		return nil, common.ErrOwnership
	}
	return e, nil
}

func (s *CredentialStore) ownershipViolation(ctx context.Context, entryID string, requesterID int64, op string) {
	s.log.Warn(ctx, "ownership violation", "entry_id", entryID, "user_id", requesterID, "op", op)
	s.events.Emit(ctx, audit.Event{
		Kind: audit.KindOwnershipViolation, UserID: requesterID, Outcome: audit.OutcomeDenied,
		Detail: audit.Detail{EntryID: entryID, Reason: op},
	})
}

func (s *CredentialStore) open(ctx context.Context, e *models.Entry, blob, key []byte) ([]byte, error) {
	pt, err := cryptox.Decrypt(blob, key)
	if err != nil {
		s.log.Warn(ctx, "decryption failed", "entry_id", e.ID, "user_id", e.OwnerID)
		s.events.Emit(ctx, audit.Event{
			Kind: audit.KindDecryptionFailure, UserID: e.OwnerID, Outcome: audit.OutcomeFailure,
			Detail: audit.Detail{EntryID: e.ID},
		})
		return nil, common.ErrDecryption
	}
	return pt, nil
}

func withheldView(e *models.Entry) models.CredentialView {
	return models.CredentialView{
		ID:              e.ID,
		OwnerID:         e.OwnerID,
		SiteLabel:       e.SiteLabel,
		LoginIdentifier: e.LoginIdentifier,
		HasNote:         e.NoteCiphertext != nil,
		Withheld:        true,
		CreatedAt:       e.CreatedAt,
		ModifiedAt:      e.ModifiedAt,
	}
}

func validateKey(key []byte) error {
	if len(key) != cryptox.KeySize {
		return common.NewValidationError("key", fmt.Sprintf("must be %d bytes", cryptox.KeySize))
	}
	return nil
}

func validateSite(site string) error {
	if strings.TrimSpace(site) == "" {
		return common.NewValidationError("site", "must not be empty")
	}
	if utf8.RuneCountInString(site) > MaxSiteLabelLen {
		return common.NewValidationError("site", fmt.Sprintf("must be at most %d characters", MaxSiteLabelLen))
	}
	return nil
}

func validateLogin(login string) error {
	if utf8.RuneCountInString(login) > MaxLoginLen {
		return common.NewValidationError("login", fmt.Sprintf("must be at most %d characters", MaxLoginLen))
	}
	return nil
}

func validateSecret(secret string) error {
	if secret == "" {
		return common.NewValidationError("secret", "must not be empty")
	}
	if len(secret) > MaxSecretLen {
		return common.NewValidationError("secret", fmt.Sprintf("must be at most %d bytes", MaxSecretLen))
	}
	return nil
}

func validateNote(note string) error {
	if len(note) > MaxNoteLen {
		return common.NewValidationError("note", fmt.Sprintf("must be at most %d bytes", MaxNoteLen))
	}
	return nil
}

func validateEntryInput(in EntryInput) error {
	return errors.Join(validateSite(in.Site), validateLogin(in.Login), validateSecret(in.Secret), validateNote(in.Note))
}

func validateEntryUpdate(u EntryUpdate) error {
	var errs []error
	if u.Site != nil {
		errs = append(errs, validateSite(*u.Site))
	}
	if u.Login != nil {
		errs = append(errs, validateLogin(*u.Login))
	}
	if u.Secret != nil {
		errs = append(errs, validateSecret(*u.Secret))
	}
	if u.Note != nil {
		errs = append(errs, validateNote(*u.Note))
	}
	return errors.Join(errs...)
}
