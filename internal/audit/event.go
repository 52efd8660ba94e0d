// Package audit defines the security event emitted by the vault core and a
// synchronous listener bus that delivers events to sinks.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened.
type Kind string

const (
	KindAuthAttempt     Kind = "auth.attempt"
	KindAccountCreated  Kind = "account.created"
	KindAccountLocked   Kind = "account.locked"
	KindAccountUnlocked Kind = "account.unlocked"

	KindSessionCreated Kind = "session.created"
	KindSessionLogout  Kind = "session.logout"
	KindSessionExpired Kind = "session.expired"
	KindSessionRevoked Kind = "session.revoked"

	KindPermissionGranted     Kind = "permission.granted"
	KindPermissionDenied      Kind = "permission.denied"
	KindPermissionRateLimited Kind = "permission.rate_limited"
	KindPermissionSuperseded  Kind = "permission.superseded"
	KindPermissionExpired     Kind = "permission.expired"
	KindPermissionExtended    Kind = "permission.extended"
	KindPermissionRevoked     Kind = "permission.revoked"
	KindPermissionView        Kind = "permission.view"

	KindEntryCreated  Kind = "entry.created"
	KindEntryUpdated  Kind = "entry.updated"
	KindEntryDeleted  Kind = "entry.deleted"
	KindEntryRevealed Kind = "entry.revealed"

	KindOwnershipViolation Kind = "ownership.violation"
	KindDecryptionFailure  Kind = "decryption.failure"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeLocked  Outcome = "locked"
	OutcomeDenied  Outcome = "denied"
	OutcomeInfo    Outcome = "info"
)

// DetailVersion is the layout version of Detail. Bump it when a field
// changes meaning.
const DetailVersion = 1

// Detail carries the optional, kind-specific fields of an Event. Zero
// values mean "not applicable".
type Detail struct {
	Version   int
	Reason    string
	EntryID   string
	Until     *time.Time
	Attempts  int
	Count     int
	RiskScore int
}

// Event is a single security-relevant occurrence.
//
// SessionID is the live session token. Sinks that persist or print events
// should use SessionRef instead.
type Event struct {
	ID        uuid.UUID
	Kind      Kind
	UserID    int64
	SessionID string
	Outcome   Outcome
	Timestamp time.Time
	Detail    Detail
}

// SessionRef returns a short, non-reversible reference to the event's
// session, or "" if there is none.
func (e Event) SessionRef() string {
	return SessionRef(e.SessionID)
}

// SessionRef hashes a session token into a 12-character reference that is
// stable for the token's lifetime.
func SessionRef(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}
