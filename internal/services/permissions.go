package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/config"
	"github.com/dmitrijs2005/keyvault/internal/janitor"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
)

// Bounds for view permission lifetimes, in minutes.
const (
	MinViewMinutes = 1
	MaxViewMinutes = 60
)

// maxGrantLifetime caps how far ahead of now an extended grant may expire.
const maxGrantLifetime = MaxViewMinutes * time.Minute

type grantAttempt struct {
	at time.Time
	ok bool
}

// ViewPermissionManager issues short-lived, re-authenticated permissions
// to view plaintext secrets, one per session. Expiry is checked on every
// query; the background sweep only reclaims memory.
type ViewPermissionManager struct {
	sessions SessionValidator
	verifier PasswordVerifier
	scorer   RiskScorer
	clock    clock.Clock
	events   audit.Emitter
	log      logging.Logger

	defaultMinutes int
	rateLimit      int
	rateWindow     time.Duration
	maxViews       int

	mu       sync.Mutex
	grants   map[string]*models.Grant
	attempts map[string][]*grantAttempt

	janitor *janitor.Janitor
}

// NewViewPermissionManager constructs the manager and starts its sweeper
// when cfg.SweepInterval is positive. A nil scorer selects
// NewDefaultRiskScorer.
func NewViewPermissionManager(sessions SessionValidator, verifier PasswordVerifier, scorer RiskScorer,
	cfg *config.Config, clk clock.Clock, events audit.Emitter, log logging.Logger) *ViewPermissionManager {
	if scorer == nil {
		scorer = NewDefaultRiskScorer()
	}
	m := &ViewPermissionManager{
		sessions:       sessions,
		verifier:       verifier,
		scorer:         scorer,
		clock:          clk,
		events:         events,
		log:            log.With("service", "view_permissions"),
		defaultMinutes: int(cfg.DefaultViewTimeout / time.Minute),
		rateLimit:      cfg.GrantRateLimit,
		rateWindow:     cfg.GrantRateWindow,
		maxViews:       cfg.MaxViewsPerGrant,
		grants:         make(map[string]*models.Grant),
		attempts:       make(map[string][]*grantAttempt),
	}
	m.janitor = janitor.New("view_permissions", cfg.SweepInterval, m.log, func(context.Context) { m.Sweep() })
	m.janitor.Start()
	return m
}

// Grant re-verifies password for the session's user and, on success,
// replaces any existing grant for the session with a new one lasting
// timeoutMinutes (clamped to 1..60; 0 selects the configured default).
//
// Each call counts against the per-session attempt ceiling before the
// password is looked at, so once the ceiling is hit even a correct
// password fails with *common.RateLimitError.
func (m *ViewPermissionManager) Grant(ctx context.Context, sessionID string, userID int64, password []byte, timeoutMinutes int) (*models.Grant, error) {
	owner, err := m.sessions.Validate(sessionID)
	if err != nil {
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionDenied, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeDenied, Detail: audit.Detail{Reason: "session invalid"}})
		return nil, common.ErrSessionExpired
	}

	attempt, failures, retryAfter := m.recordAttempt(sessionID)
	if attempt == nil {
		m.log.Warn(ctx, "view permission rate limited", "user_id", userID)
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionRateLimited, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeDenied, Detail: audit.Detail{Attempts: m.rateLimit}})
		return nil, &common.RateLimitError{RetryAfter: retryAfter}
	}

	if owner != userID {
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionDenied, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeDenied, Detail: audit.Detail{Reason: "user mismatch"}})
		return nil, common.ErrPermissionDenied
	}

	ok, err := m.verifier.VerifyPassword(ctx, userID, password)
	if err != nil {
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionDenied, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeFailure, Detail: audit.Detail{Reason: "verification unavailable"}})
		return nil, err
	}
	if !ok {
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionDenied, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeDenied, Detail: audit.Detail{Reason: "wrong password", Attempts: failures + 1}})
		return nil, common.ErrPermissionDenied
	}

	now := m.clock.Now()
	minutes := timeoutMinutes
	if minutes == 0 {
		minutes = m.defaultMinutes
	}
	minutes = clampInt(minutes, MinViewMinutes, MaxViewMinutes)

	strength := models.AuthStrengthStandard
	if failures > 0 {
		strength = models.AuthStrengthReduced
	}
	g := &models.Grant{
		SessionID:    sessionID,
		UserID:       userID,
		GrantedAt:    now,
		ExpiresAt:    now.Add(time.Duration(minutes) * time.Minute),
		LastActivity: now,
		RiskScore:    m.scorer.Score(RiskInput{UserID: userID, At: now, RecentFailures: failures}),
		AuthStrength: strength,
	}

	m.mu.Lock()
	attempt.ok = true
	prior, hadPrior := m.grants[sessionID]
	m.grants[sessionID] = g
	out := *g
	m.mu.Unlock()

	// the session may have ended while the password was being verified
	if _, err := m.sessions.Validate(sessionID); err != nil {
		m.mu.Lock()
		if m.grants[sessionID] == g {
			delete(m.grants, sessionID)
		}
		m.mu.Unlock()
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionDenied, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeDenied, Detail: audit.Detail{Reason: "session ended"}})
		return nil, common.ErrSessionExpired
	}

	if hadPrior && prior.Active(now) {
		m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionSuperseded, UserID: userID, SessionID: sessionID,
			Outcome: audit.OutcomeInfo, Detail: audit.Detail{Count: prior.ViewCount}})
	}
	until := out.ExpiresAt
	m.events.Emit(ctx, audit.Event{Kind: audit.KindPermissionGranted, UserID: userID, SessionID: sessionID,
		Outcome: audit.OutcomeSuccess, Detail: audit.Detail{Until: &until, RiskScore: out.RiskScore,
			Reason: string(out.AuthStrength)}})
	return &out, nil
}

// recordAttempt prunes the session's attempt log and appends a new entry.
// It returns nil and the wait time when the ceiling is already reached,
// along with the number of failed attempts still in the window.
func (m *ViewPermissionManager) recordAttempt(sessionID string) (*grantAttempt, int, time.Duration) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.pruneAttemptsLocked(sessionID, now)
	if len(history) >= m.rateLimit {
		return nil, 0, history[0].at.Add(m.rateWindow).Sub(now)
	}
	failures := 0
	for _, a := range history {
		if !a.ok {
			failures++
		}
	}
	a := &grantAttempt{at: now}
	m.attempts[sessionID] = append(history, a)
	return a, failures, 0
}

func (m *ViewPermissionManager) pruneAttemptsLocked(sessionID string, now time.Time) []*grantAttempt {
	history := m.attempts[sessionID]
	cutoff := now.Add(-m.rateWindow)
	i := 0
	for i < len(history) && !history[i].at.After(cutoff) {
		i++
	}
	history = history[i:]
	if len(history) == 0 {
		delete(m.attempts, sessionID)
		return nil
	}
	m.attempts[sessionID] = history
	return history
}

// HasPermission reports whether the session holds an unexpired grant and
// is itself still valid. A stale grant is removed on the spot.
func (m *ViewPermissionManager) HasPermission(sessionID string) bool {
	_, ok := m.active(sessionID)
	return ok
}

// Status returns a copy of the session's active grant.
func (m *ViewPermissionManager) Status(sessionID string) (models.Grant, bool) {
	return m.active(sessionID)
}

func (m *ViewPermissionManager) active(sessionID string) (models.Grant, bool) {
	if !m.sessionValid(sessionID) {
		return models.Grant{}, false
	}

	m.mu.Lock()
	g, expired := m.activeLocked(sessionID, m.clock.Now())
	var out models.Grant
	if g != nil {
		out = *g
	}
	m.mu.Unlock()

	m.emitExpired(expired)
	return out, g != nil
}

// sessionValid checks the backing session and drops the grant of a
// session that has ended.
func (m *ViewPermissionManager) sessionValid(sessionID string) bool {
	if _, err := m.sessions.Validate(sessionID); err != nil {
		m.Revoke(sessionID, "session invalid")
		return false
	}
	return true
}

// activeLocked returns the live grant, or removes and returns an expired one
// as the second value.
func (m *ViewPermissionManager) activeLocked(sessionID string, now time.Time) (*models.Grant, *models.Grant) {
	g, ok := m.grants[sessionID]
	if !ok {
		return nil, nil
	}
	if !g.Active(now) {
		delete(m.grants, sessionID)
		return nil, g
	}
	return g, nil
}

func (m *ViewPermissionManager) emitExpired(g *models.Grant) {
	if g == nil {
		return
	}
	m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionExpired, UserID: g.UserID,
		SessionID: g.SessionID, Outcome: audit.OutcomeInfo, Detail: audit.Detail{Count: g.ViewCount}})
}

// RecordView consumes one view of the session's grant. It returns false,
// without counting, when there is no valid grant or when the grant's view
// budget is spent; a spent grant is revoked.
func (m *ViewPermissionManager) RecordView(sessionID, entryID string) bool {
	if !m.sessionValid(sessionID) {
		return false
	}
	now := m.clock.Now()

	m.mu.Lock()
	g, expired := m.activeLocked(sessionID, now)
	var (
		exhausted *models.Grant
		view      models.Grant
	)
	switch {
	case g == nil:
	case m.maxViews > 0 && g.ViewCount >= m.maxViews:
		delete(m.grants, sessionID)
		exhausted, g = g, nil
	default:
		g.ViewCount++
		g.LastActivity = now
		view = *g
	}
	m.mu.Unlock()

	m.emitExpired(expired)
	if exhausted != nil {
		m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionRevoked, UserID: exhausted.UserID,
			SessionID: sessionID, Outcome: audit.OutcomeInfo,
			Detail: audit.Detail{Reason: "view budget exhausted", Count: exhausted.ViewCount}})
	}
	if g == nil {
		return false
	}
	m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionView, UserID: view.UserID,
		SessionID: sessionID, Outcome: audit.OutcomeSuccess, Detail: audit.Detail{EntryID: entryID, Count: view.ViewCount}})
	return true
}

// Extend pushes the expiry of an active grant back by additionalMinutes
// (clamped to 1..60), never beyond an hour from now. An expired or absent
// grant cannot be extended.
func (m *ViewPermissionManager) Extend(sessionID string, additionalMinutes int) bool {
	if !m.sessionValid(sessionID) {
		return false
	}
	now := m.clock.Now()
	add := time.Duration(clampInt(additionalMinutes, MinViewMinutes, MaxViewMinutes)) * time.Minute

	m.mu.Lock()
	g, expired := m.activeLocked(sessionID, now)
	var out models.Grant
	if g != nil {
		next := g.ExpiresAt.Add(add)
		if limit := now.Add(maxGrantLifetime); next.After(limit) {
			next = limit
		}
		g.ExpiresAt = next
		g.LastActivity = now
		out = *g
	}
	m.mu.Unlock()

	m.emitExpired(expired)
	if g == nil {
		return false
	}
	m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionExtended, UserID: out.UserID,
		SessionID: sessionID, Outcome: audit.OutcomeSuccess, Detail: audit.Detail{Until: &out.ExpiresAt}})
	return true
}

// Revoke removes the session's grant. It reports whether one was present;
// revoking twice is harmless.
func (m *ViewPermissionManager) Revoke(sessionID, reason string) bool {
	m.mu.Lock()
	g, ok := m.grants[sessionID]
	delete(m.grants, sessionID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionRevoked, UserID: g.UserID,
		SessionID: sessionID, Outcome: audit.OutcomeInfo, Detail: audit.Detail{Reason: reason, Count: g.ViewCount}})
	return true
}

// RevokeAll removes every grant and returns how many were removed.
func (m *ViewPermissionManager) RevokeAll(reason string) int {
	m.mu.Lock()
	revoked := make([]*models.Grant, 0, len(m.grants))
	for id, g := range m.grants {
		revoked = append(revoked, g)
		delete(m.grants, id)
	}
	m.mu.Unlock()

	for _, g := range revoked {
		m.events.Emit(context.Background(), audit.Event{Kind: audit.KindPermissionRevoked, UserID: g.UserID,
			SessionID: g.SessionID, Outcome: audit.OutcomeInfo, Detail: audit.Detail{Reason: reason, Count: g.ViewCount}})
	}
	if len(revoked) > 0 {
		m.log.Warn(context.Background(), "all view permissions revoked", "count", len(revoked), "reason", reason)
	}
	return len(revoked)
}

// Sweep drops expired grants, grants whose session has ended and attempt
// records older than the rate-limit window. It returns the number of grants
// dropped.
func (m *ViewPermissionManager) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	var (
		expired []*models.Grant
		live    []string
	)
	for id, g := range m.grants {
		if !g.Active(now) {
			delete(m.grants, id)
			expired = append(expired, g)
			continue
		}
		live = append(live, id)
	}
	for id := range m.attempts {
		m.pruneAttemptsLocked(id, now)
	}
	m.mu.Unlock()

	for _, g := range expired {
		m.emitExpired(g)
	}

	dropped := len(expired)
	for _, id := range live {
		if _, err := m.sessions.Validate(id); err != nil {
			m.Revoke(id, "session invalid")
			dropped++
		}
	}
	return dropped
}

// HandleEvent revokes the grant of a session that has ended. Subscribe the
// manager to the audit bus that the SessionManager emits on.
func (m *ViewPermissionManager) HandleEvent(_ context.Context, e audit.Event) error {
	switch e.Kind {
	case audit.KindSessionLogout, audit.KindSessionExpired, audit.KindSessionRevoked:
		m.Revoke(e.SessionID, string(e.Kind))
	}
	return nil
}

// trackedGrants returns the number of grants held, expired ones included.
func (m *ViewPermissionManager) trackedGrants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

// trackedAttempts returns the number of sessions with attempt records.
func (m *ViewPermissionManager) trackedAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// Shutdown stops the sweeper and revokes every grant.
func (m *ViewPermissionManager) Shutdown() {
	m.janitor.Stop()
	m.RevokeAll("shutdown")
}

var _ audit.Listener = (*ViewPermissionManager)(nil)
