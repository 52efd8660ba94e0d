package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccount_LockStates(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)

	a := &Account{}
	assert.False(t, a.IsLocked(now))
	assert.False(t, a.HasStaleLock(now))

	a.LockedUntil = &until
	assert.True(t, a.IsLocked(now))
	assert.False(t, a.HasStaleLock(now))

	assert.False(t, a.IsLocked(until))
	assert.True(t, a.HasStaleLock(until))
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(time.Second)}

	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Second)))
}

func TestGrant_ActiveAndRemaining(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	g := &Grant{ExpiresAt: now.Add(time.Minute)}

	assert.True(t, g.Active(now.Add(59*time.Second)))
	assert.False(t, g.Active(now.Add(time.Minute)))
	assert.Equal(t, 30*time.Second, g.Remaining(now.Add(30*time.Second)))
	assert.Equal(t, time.Duration(0), g.Remaining(now.Add(2*time.Minute)))
}
