package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/config"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

// t0 is midday so the default risk scorer adds no after-hours points.
var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const alicePassword = "CorrectHorse1!"

type testEnv struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	cfg      *config.Config
	clock    *clock.Fake
	bus      *audit.Bus
	rec      *audit.Recorder
	sessions *SessionManager
	perms    *ViewPermissionManager
	store    *CredentialStore
	vault    *Vault
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	// light KDF profile keeps tests fast
	cfg.KDFTime = 1
	cfg.KDFMemoryKiB = 64
	cfg.KDFThreads = 1
	cfg.SweepInterval = 0
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := testConfig()
	for _, f := range mutate {
		f(cfg)
	}

	db, rm, err := repomanager.Open(ctx, repomanager.DriverSQLite, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, rm.RunMigrations(ctx, db))

	log := logging.Discard()
	env := &testEnv{
		db:    db,
		rm:    rm,
		cfg:   cfg,
		clock: clock.NewFake(t0),
		bus:   audit.NewBus(log),
		rec:   audit.NewRecorder(),
	}
	env.bus.Subscribe(env.rec)

	env.sessions, err = NewSessionManager(db, rm, cfg, env.clock, env.bus, log)
	require.NoError(t, err)

	scorer := &DefaultRiskScorer{Location: time.UTC, AfterHoursPoints: 30, FailurePoints: 15}
	env.perms = NewViewPermissionManager(env.sessions, env.sessions, scorer, cfg, env.clock, env.bus, log)
	env.bus.Subscribe(env.perms)

	env.store, err = NewCredentialStore(db, rm, cfg, env.clock, env.bus, log)
	require.NoError(t, err)
	env.vault = NewVault(env.sessions, env.perms, env.store)

	t.Cleanup(func() {
		env.perms.Shutdown()
		env.sessions.Shutdown()
		env.bus.Close()
	})
	return env
}

func (e *testEnv) createAccount(t *testing.T, name, password string) int64 {
	t.Helper()
	acc, err := e.sessions.CreateAccount(context.Background(), name, []byte(password))
	require.NoError(t, err)
	return acc.ID
}

// login authenticates and returns the session id, user id and a copy of
// the session key.
func (e *testEnv) login(t *testing.T, name, password string) (string, int64, []byte) {
	t.Helper()
	sid, err := e.sessions.Authenticate(context.Background(), name, []byte(password))
	require.NoError(t, err)
	uid, err := e.sessions.Validate(sid)
	require.NoError(t, err)
	key, err := e.sessions.Key(sid)
	require.NoError(t, err)
	return sid, uid, key
}

// signup creates an account and logs in.
func (e *testEnv) signup(t *testing.T, name, password string) (string, int64, []byte) {
	t.Helper()
	e.createAccount(t, name, password)
	return e.login(t, name, password)
}

func strPtr(s string) *string { return &s }
