package models

import "time"

// Session is an authenticated handle. The derived key it unlocks is kept by
// the session manager and is not part of this record.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its lifetime at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthStrength describes how a view permission was obtained.
type AuthStrength string

const (
	// AuthStrengthStandard is a clean master-password re-verification.
	AuthStrengthStandard AuthStrength = "standard"
	// AuthStrengthReduced is a re-verification preceded by failed attempts
	// in the current rate-limit window.
	AuthStrengthReduced AuthStrength = "reduced"
)

// Grant is a time-boxed permission to view plaintext secrets, attached to
// one session.
type Grant struct {
	SessionID    string
	UserID       int64
	GrantedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	ViewCount    int
	RiskScore    int
	AuthStrength AuthStrength
}

// Active reports whether the grant may still be used at now.
func (g *Grant) Active(now time.Time) bool {
	return now.Before(g.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (g *Grant) Remaining(now time.Time) time.Duration {
	if d := g.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
