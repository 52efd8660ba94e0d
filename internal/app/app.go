// Package app wires the vault together: configuration, logging, storage,
// the audit bus, the services and the interactive shell. It owns their
// lifecycle and shuts them down in reverse order.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/keyvault/internal/audit"
	"github.com/dmitrijs2005/keyvault/internal/cli"
	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/config"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/repositories/repomanager"
	"github.com/dmitrijs2005/keyvault/internal/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	clock  clock.Clock

	db          *sql.DB
	bus         *audit.Bus
	sessions    *services.SessionManager
	permissions *services.ViewPermissionManager
	store       *services.CredentialStore
	vault       *services.Vault

	shutdown sync.Once
}

// New opens the database, applies migrations and builds the services.
// Log records, audit events included, are written to logOut.
func New(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(c.LogLevel, c.LogFormat, logOut)
	if err != nil {
		return nil, err
	}

	db, rm, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	app := &App{config: c, logger: logger, clock: clock.Real{}, db: db}
	app.bus = audit.NewBus(logger)
	app.bus.Subscribe(audit.NewLogSink(logger))

	app.sessions, err = services.NewSessionManager(db, rm, c, app.clock, app.bus, logger)
	if err != nil {
		app.closeStorage()
		return nil, err
	}
	app.permissions = services.NewViewPermissionManager(app.sessions, app.sessions, nil, c, app.clock, app.bus, logger)
	app.bus.Subscribe(app.permissions)

	app.store, err = services.NewCredentialStore(db, rm, c, app.clock, app.bus, logger)
	if err != nil {
		app.Shutdown()
		return nil, err
	}
	app.vault = services.NewVault(app.sessions, app.permissions, app.store)

	logger.Info(ctx, "vault ready", "driver", c.DatabaseDriver)
	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the shell on in/out and blocks until the user exits, input
// ends, ctx is cancelled or a termination signal arrives. Everything is
// shut down before Run returns.
func (app *App) Run(ctx context.Context, in io.Reader, out io.Writer) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Shutdown()

	app.initSignalHandler(cancelFunc)

	shell := cli.NewApp(app.sessions, app.vault, app.permissions, app.clock, app.logger, in, out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		shell.Run(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// a read blocked on the terminal cannot be interrupted
		app.logger.Info(context.Background(), "interrupted, shutting down")
	}
}

// Shutdown ends every session and permission, wiping cached keys, then
// closes the audit bus and the database. It is safe to call more than once.
func (app *App) Shutdown() {
	app.shutdown.Do(func() {
		if app.permissions != nil {
			app.permissions.Shutdown()
		}
		if app.sessions != nil {
			app.sessions.Shutdown()
		}
		app.bus.Close()
		app.closeStorage()
	})
}

func (app *App) closeStorage() {
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "close database", "error", err)
	}
}
