package models

import "time"

// Entry is a stored credential. Secret and note fields only ever hold
// sealed blobs (see cryptox.EncryptWith).
type Entry struct {
	ID              string
	OwnerID         int64
	SiteLabel       string
	LoginIdentifier string

	SecretCiphertext []byte
	// NoteCiphertext is nil when the entry has no note.
	NoteCiphertext []byte

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// CredentialView is what the vault hands back to callers. Secret and Note
// are empty and Withheld is true unless the entry was decrypted on purpose.
type CredentialView struct {
	ID              string
	OwnerID         int64
	SiteLabel       string
	LoginIdentifier string
	HasNote         bool

	Withheld bool
	Secret   string
	Note     string

	CreatedAt  time.Time
	ModifiedAt time.Time
}
