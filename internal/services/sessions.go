package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/config"
	"github.com/dmitrijs2005/keyvault/internal/cryptox"
	"github.com/dmitrijs2005/keyvault/internal/dbx"
	"github.com/dmitrijs2005/keyvault/internal/janitor"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/repositories/repomanager"
)

// sessionIDBytes is the entropy of a session token before hex encoding.
const sessionIDBytes = 32

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{3,64}$`)

type sessionRecord struct {
	session models.Session
	key     []byte
}

// SessionManager authenticates master accounts, enforces lockout and owns
// the table of live sessions. A session caches the derived key in memory;
// the key is wiped when the session ends.
type SessionManager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	kdf         cryptox.KDF
	clock       clock.Clock
	events      audit.Emitter
	log         logging.Logger

	timeout           time.Duration
	lockoutThreshold  int
	lockoutDuration   time.Duration
	minPasswordLength int
	revokeOnLockout   bool

	// dummySalt feeds the key derivation run for unknown accounts.
	dummySalt []byte
	accounts  *keyedMutex

	mu       sync.Mutex
	sessions map[string]*sessionRecord
	// revoked maps ended session ids to their original expiry; entries are
	// pruned once that time has passed.
	revoked map[string]time.Time

	janitor *janitor.Janitor
}

// NewSessionManager constructs a SessionManager from the configuration and
// starts its sweeper when cfg.SweepInterval is positive.
func NewSessionManager(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	clk clock.Clock, events audit.Emitter, log logging.Logger) (*SessionManager, error) {
	kdf := cfg.KDF()
	if err := kdf.Validate(); err != nil {
		return nil, err
	}

	s := &SessionManager{
		db:                db,
		repomanager:       m,
		kdf:               kdf,
		clock:             clk,
		events:            events,
		log:               log.With("service", "sessions"),
		timeout:           cfg.SessionTimeout,
		lockoutThreshold:  cfg.LockoutThreshold,
		lockoutDuration:   cfg.LockoutDuration,
		minPasswordLength: cfg.MinPasswordLength,
		revokeOnLockout:   cfg.RevokeSessionsOnLockout,
		dummySalt:         common.GenerateRandByteArray(kdf.SaltLen),
		accounts:          newKeyedMutex(),
		sessions:          make(map[string]*sessionRecord),
		revoked:           make(map[string]time.Time),
	}
	s.janitor = janitor.New("sessions", cfg.SweepInterval, s.log, func(context.Context) { s.Sweep() })
	s.janitor.Start()
	return s, nil
}

func usernameKey(username string) string {
	return strings.ToLower(username)
}

// CreateAccount registers a new master account. Only the salt and the
// verifier derived from password are stored.
func (s *SessionManager) CreateAccount(ctx context.Context, username string, password []byte) (*models.Account, error) {
	if !usernamePattern.MatchString(username) {
		return nil, common.NewValidationError("username", "must be 3-64 characters of letters, digits, '.', '_', '@' or '-'")
	}
	if utf8.RuneCount(password) < s.minPasswordLength {
		return nil, common.NewValidationError("password", fmt.Sprintf("must be at least %d characters", s.minPasswordLength))
	}

	salt, key, err := s.kdf.Derive(password, nil)
	if err != nil {
		return nil, err
	}
	verifier := cryptox.MakeVerifier(key)
	common.WipeByteArray(key)

	acc := &models.Account{
		Username:    username,
		UsernameKey: usernameKey(username),
		Verifier:    verifier,
		Salt:        salt,
		KDFParams:   s.kdf.String(),
		IsActive:    true,
		CreatedAt:   s.clock.Now().UTC(),
	}

	unlock := s.accounts.Lock(acc.UsernameKey)
	created, err := s.repomanager.Accounts(s.db).Create(ctx, acc)
	unlock()
	if err != nil {
		if !errors.Is(err, common.ErrAlreadyExists) {
			s.log.Error(ctx, "create account failed", "error", err)
		}
		return nil, storageErr("create account", err)
	}

	s.log.Info(ctx, "account created", "user_id", created.ID)
	s.events.Emit(ctx, audit.Event{Kind: audit.KindAccountCreated, UserID: created.ID, Outcome: audit.OutcomeSuccess})
	return created, nil
}

// Authenticate checks password for username and returns a new session id.
//
// A username that could never have been registered is a
// *common.ValidationError. Unknown and inactive accounts fail with
// common.ErrAuthentication after
// the same key derivation a real attempt costs. A locked account fails with
// *common.AccountLockedError. A wrong password increments the failure
// counter and locks the account once the threshold is reached. Attempts for
// one account are serialized.
func (s *SessionManager) Authenticate(ctx context.Context, username string, password []byte) (string, error) {
	if !usernamePattern.MatchString(username) {
		return "", common.NewValidationError("username", "must be 3-64 characters of letters, digits, '.', '_', '@' or '-'")
	}
	if len(password) == 0 {
		return "", common.NewValidationError("password", "must not be empty")
	}
	uk := usernameKey(username)

	var events eventBuffer
	defer func() { events.flush(ctx, s.events) }()

	unlock := s.accounts.Lock(uk)
	defer unlock()

	acc, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, uk)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.log.Error(ctx, "account lookup failed", "error", err)
		return "", storageErr("authenticate", err)
	}
	if acc == nil || !acc.IsActive {
		s.burnDerivation(password)
		reason := "unknown account"
		var uid int64
		if acc != nil {
			reason, uid = "inactive account", acc.ID
		}
		events.add(audit.Event{Kind: audit.KindAuthAttempt, UserID: uid, Outcome: audit.OutcomeFailure,
			Detail: audit.Detail{Reason: reason}})
		return "", common.ErrAuthentication
	}

	now := s.clock.Now().UTC()
	if acc.IsLocked(now) {
		until := *acc.LockedUntil
		events.add(audit.Event{Kind: audit.KindAuthAttempt, UserID: acc.ID, Outcome: audit.OutcomeLocked,
			Detail: audit.Detail{Reason: "account locked", Until: &until}})
		return "", &common.AccountLockedError{Until: until, Remaining: until.Sub(now)}
	}
	if acc.HasStaleLock(now) {
		if err := s.repomanager.Accounts(s.db).ClearLockout(ctx, acc.ID); err != nil {
			s.log.Error(ctx, "clear lockout failed", "user_id", acc.ID, "error", err)
			return "", storageErr("authenticate", err)
		}
		acc.FailedAttempts = 0
		acc.LockedUntil = nil
		events.add(audit.Event{Kind: audit.KindAccountUnlocked, UserID: acc.ID, Outcome: audit.OutcomeInfo})
	}

	key, ok, err := s.checkPassword(acc, password)
	if err != nil {
		s.log.Error(ctx, "stored kdf parameters unusable", "user_id", acc.ID, "error", err)
		return "", storageErr("authenticate", err)
	}
	if !ok {
		return "", s.recordFailure(ctx, acc, now, &events)
	}

	if err := s.repomanager.Accounts(s.db).RecordSuccess(ctx, acc.ID, now); err != nil {
		common.WipeByteArray(key)
		s.log.Error(ctx, "record login failed", "user_id", acc.ID, "error", err)
		return "", storageErr("authenticate", err)
	}

	sess, err := s.openSession(acc.ID, key, now)
	if err != nil {
		common.WipeByteArray(key)
		return "", err
	}
	events.add(audit.Event{Kind: audit.KindAuthAttempt, UserID: acc.ID, SessionID: sess.ID, Outcome: audit.OutcomeSuccess})
	events.add(audit.Event{Kind: audit.KindSessionCreated, UserID: acc.ID, SessionID: sess.ID, Outcome: audit.OutcomeSuccess,
		Detail: audit.Detail{Until: &sess.ExpiresAt}})
	return sess.ID, nil
}

// recordFailure bumps the failure counter and, at the threshold, locks the
// account, all in one transaction. It always returns the error to hand
// back to the caller.
func (s *SessionManager) recordFailure(ctx context.Context, acc *models.Account, now time.Time, events *eventBuffer) error {
	var (
		attempts int
		until    *time.Time
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		n, err := repo.RecordFailure(ctx, acc.ID)
		if err != nil {
			return err
		}
		attempts = n
		if n >= s.lockoutThreshold {
			t := now.Add(s.lockoutDuration)
			if err := repo.Lock(ctx, acc.ID, t); err != nil {
				return err
			}
			until = &t
		}
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "record failed attempt failed", "user_id", acc.ID, "error", err)
		return storageErr("authenticate", err)
	}

	events.add(audit.Event{Kind: audit.KindAuthAttempt, UserID: acc.ID, Outcome: audit.OutcomeFailure,
		Detail: audit.Detail{Reason: "wrong password", Attempts: attempts}})
	if until != nil {
		s.log.Warn(ctx, "account locked", "user_id", acc.ID, "attempts", attempts)
		events.add(audit.Event{Kind: audit.KindAccountLocked, UserID: acc.ID, Outcome: audit.OutcomeLocked,
			Detail: audit.Detail{Until: until, Attempts: attempts}})
		if s.revokeOnLockout {
			for _, e := range s.revokeWhere(func(r *sessionRecord) bool { return r.session.UserID == acc.ID }, "account locked") {
				events.add(e)
			}
		}
	}
	return common.ErrAuthentication
}

// checkPassword derives the key for password with the account's stored
// salt and parameters. On a match the key is returned; otherwise it has
// already been wiped.
func (s *SessionManager) checkPassword(acc *models.Account, password []byte) ([]byte, bool, error) {
	kdf, err := cryptox.ParseKDF(acc.KDFParams)
	if err != nil {
		return nil, false, err
	}
	_, key, err := kdf.Derive(password, acc.Salt)
	if err != nil {
		return nil, false, err
	}
	if !cryptox.VerifierMatches(acc.Verifier, cryptox.MakeVerifier(key)) {
		common.WipeByteArray(key)
		return nil, false, nil
	}
	return key, true, nil
}

func (s *SessionManager) burnDerivation(password []byte) {
	if _, key, err := s.kdf.Derive(password, s.dummySalt); err == nil {
		common.WipeByteArray(key)
	}
}

func (s *SessionManager) openSession(userID int64, key []byte, now time.Time) (models.Session, error) {
	id, err := common.MakeRandHexString(sessionIDBytes)
	if err != nil {
		return models.Session{}, fmt.Errorf("generate session id: %w", err)
	}
	rec := &sessionRecord{
		session: models.Session{ID: id, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(s.timeout)},
		key:     key,
	}

	s.mu.Lock()
	s.sessions[id] = rec
	s.mu.Unlock()
	return rec.session, nil
}

// VerifyPassword checks password against the account's stored verifier in
// constant time without touching the failure counter. Unknown, inactive
// and locked accounts never verify.
func (s *SessionManager) VerifyPassword(ctx context.Context, userID int64, password []byte) (bool, error) {
	if len(password) == 0 {
		return false, nil
	}
	acc, err := s.repomanager.Accounts(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.burnDerivation(password)
			return false, nil
		}
		return false, storageErr("verify password", err)
	}
	if !acc.IsActive || acc.IsLocked(s.clock.Now()) {
		s.burnDerivation(password)
		return false, nil
	}

	key, ok, err := s.checkPassword(acc, password)
	if err != nil {
		return false, storageErr("verify password", err)
	}
	if ok {
		common.WipeByteArray(key)
	}
	return ok, nil
}

// Validate returns the user owning sessionID. Unknown, revoked and expired
// sessions fail with common.ErrSessionExpired; an expired session is
// removed and its key wiped. Validation never extends a session.
func (s *SessionManager) Validate(sessionID string) (int64, error) {
	rec, err := s.live(sessionID)
	if err != nil {
		return 0, err
	}
	return rec.session.UserID, nil
}

// Session returns a copy of the live session record.
func (s *SessionManager) Session(sessionID string) (models.Session, error) {
	rec, err := s.live(sessionID)
	if err != nil {
		return models.Session{}, err
	}
	return rec.session, nil
}

// Key returns a copy of the session's derived key. The caller should wipe
// it when done.
func (s *SessionManager) Key(sessionID string) ([]byte, error) {
	s.mu.Lock()
	rec, expired := s.liveLocked(sessionID)
	var key []byte
	if rec != nil {
		key = common.CloneBytes(rec.key)
	}
	s.mu.Unlock()

	s.emitExpired(expired)
	if rec == nil {
		return nil, common.ErrSessionExpired
	}
	return key, nil
}

func (s *SessionManager) live(sessionID string) (*sessionRecord, error) {
	s.mu.Lock()
	rec, expired := s.liveLocked(sessionID)
	var out *sessionRecord
	if rec != nil {
		out = &sessionRecord{session: rec.session}
	}
	s.mu.Unlock()

	s.emitExpired(expired)
	if out == nil {
		return nil, common.ErrSessionExpired
	}
	return out, nil
}

// liveLocked looks up a valid session. If the session has just expired it
// is ended and returned as the second value.
func (s *SessionManager) liveLocked(sessionID string) (*sessionRecord, *models.Session) {
	if _, gone := s.revoked[sessionID]; gone {
		return nil, nil
	}
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if rec.session.Expired(s.clock.Now()) {
		s.endLocked(rec)
		sess := rec.session
		return nil, &sess
	}
	return rec, nil
}

func (s *SessionManager) endLocked(rec *sessionRecord) {
	common.WipeByteArray(rec.key)
	rec.key = nil
	delete(s.sessions, rec.session.ID)
	s.revoked[rec.session.ID] = rec.session.ExpiresAt
}

func (s *SessionManager) emitExpired(sess *models.Session) {
	if sess == nil {
		return
	}
	s.events.Emit(context.Background(), audit.Event{
		Kind: audit.KindSessionExpired, UserID: sess.UserID, SessionID: sess.ID, Outcome: audit.OutcomeInfo,
	})
}

// Logout ends the session and wipes its key. It reports whether a live
// session was ended; logging out twice is harmless.
func (s *SessionManager) Logout(sessionID string) bool {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if ok {
		s.endLocked(rec)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.events.Emit(context.Background(), audit.Event{
		Kind: audit.KindSessionLogout, UserID: rec.session.UserID, SessionID: sessionID, Outcome: audit.OutcomeSuccess,
	})
	return true
}

// RevokeUser ends every session of userID and returns how many were ended.
func (s *SessionManager) RevokeUser(userID int64, reason string) int {
	events := s.revokeWhere(func(r *sessionRecord) bool { return r.session.UserID == userID }, reason)
	for _, e := range events {
		s.events.Emit(context.Background(), e)
	}
	return len(events)
}

// RevokeAll ends every live session.
func (s *SessionManager) RevokeAll(reason string) int {
	events := s.revokeWhere(func(*sessionRecord) bool { return true }, reason)
	for _, e := range events {
		s.events.Emit(context.Background(), e)
	}
	if len(events) > 0 {
		s.log.Warn(context.Background(), "all sessions revoked", "count", len(events), "reason", reason)
	}
	return len(events)
}

func (s *SessionManager) revokeWhere(match func(*sessionRecord) bool, reason string) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []audit.Event
	for _, rec := range s.sessions {
		if !match(rec) {
			continue
		}
		s.endLocked(rec)
		events = append(events, audit.Event{
			Kind: audit.KindSessionRevoked, UserID: rec.session.UserID, SessionID: rec.session.ID,
			Outcome: audit.OutcomeInfo, Detail: audit.Detail{Reason: reason},
		})
	}
	return events
}

// Sweep ends expired sessions and forgets revoked ids that would have
// expired anyway. It returns the number of sessions ended.
func (s *SessionManager) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	var expired []models.Session
	for _, rec := range s.sessions {
		if rec.session.Expired(now) {
			s.endLocked(rec)
			expired = append(expired, rec.session)
		}
	}
	for id, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, id)
		}
	}
	s.mu.Unlock()

	for i := range expired {
		s.emitExpired(&expired[i])
	}
	return len(expired)
}

// ActiveSessions returns the number of live sessions.
func (s *SessionManager) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops the sweeper and ends every session, wiping cached keys.
func (s *SessionManager) Shutdown() {
	s.janitor.Stop()
	s.RevokeAll("shutdown")
}
