package cli

import (
	"bufio"
	"context"
	"io"

	"github.com/dmitrijs2005/keyvault/internal/clock"
	"github.com/dmitrijs2005/keyvault/internal/logging"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/services"
)

// AuthService is the account side of the vault used by the shell.
type AuthService interface {
	CreateAccount(ctx context.Context, username string, password []byte) (*models.Account, error)
	Authenticate(ctx context.Context, username string, password []byte) (string, error)
	Logout(sessionID string) bool
}

// VaultService is the session-scoped entry API used by the shell.
type VaultService interface {
	Entries(ctx context.Context, sessionID string) ([]models.CredentialView, error)
	Add(ctx context.Context, sessionID string, in services.EntryInput) (string, error)
	Show(ctx context.Context, sessionID, entryID string) (*models.CredentialView, error)
	Reveal(ctx context.Context, sessionID, entryID string) (*models.CredentialView, error)
	Edit(ctx context.Context, sessionID, entryID string, upd services.EntryUpdate) error
	Remove(ctx context.Context, sessionID, entryID string) (bool, error)
	Unlock(ctx context.Context, sessionID string, password []byte, minutes int) (*models.Grant, error)
}

// PermissionService exposes the view permission of the current session.
type PermissionService interface {
	Status(sessionID string) (models.Grant, bool)
	Extend(sessionID string, additionalMinutes int) bool
	Revoke(sessionID, reason string) bool
}

// App is the interactive shell state: the services it talks to, the
// current session and the terminal streams.
type App struct {
	auth        AuthService
	vault       VaultService
	permissions PermissionService
	clock       clock.Clock
	log         logging.Logger

	reader *bufio.Reader
	out    io.Writer

	sessionID string
	userName  string
}

// NewApp returns a shell reading commands from in and writing to out.
func NewApp(auth AuthService, vault VaultService, permissions PermissionService, clk clock.Clock,
	log logging.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		auth:        auth,
		vault:       vault,
		permissions: permissions,
		clock:       clk,
		log:         log.With("component", "cli"),
		reader:      bufio.NewReader(in),
		out:         out,
	}
}

// Run prints a banner and runs the command loop until exit or end of input.
// A session still open at that point is logged out.
func (a *App) Run(ctx context.Context) {
	a.println("Welcome to keyvault (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
	if a.isLoggedIn() {
		_ = a.Logout(ctx)
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessionID != ""
}

func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return ""
	}
	s := a.userName
	if _, ok := a.permissions.Status(a.sessionID); ok {
		s += " unlocked"
	}
	return "(" + s + ") "
}

// endSession forgets the local session after the vault reported it gone.
func (a *App) endSession() {
	a.sessionID = ""
	a.userName = ""
}
