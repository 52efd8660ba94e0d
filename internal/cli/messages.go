package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
)

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// fail reports err to the user and returns it. Storage failures are logged
// with their cause; the user only sees a generic message.
func (a *App) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, common.ErrSessionExpired) {
		a.endSession()
	}
	var serr *common.StorageError
	if errors.As(err, &serr) {
		a.log.Error(ctx, "command failed", "op", op, "error", serr.Unwrap())
	}
	a.println(userMessage(err))
	return err
}

// userMessage turns a vault error into one line of text for the terminal.
func userMessage(err error) string {
	var (
		locked  *common.AccountLockedError
		limited *common.RateLimitError
		invalid *common.ValidationError
	)
	switch {
	case errors.As(err, &locked):
		return fmt.Sprintf("Account locked, try again in %s", locked.Remaining.Round(time.Second))
	case errors.As(err, &limited):
		return fmt.Sprintf("Too many unlock attempts, try again in %s", limited.RetryAfter.Round(time.Second))
	case errors.As(err, &invalid):
		return fmt.Sprintf("Invalid %s: %s", invalid.Field, invalid.Reason)
	case errors.Is(err, common.ErrAuthentication):
		return "Invalid username or password"
	case errors.Is(err, common.ErrSessionExpired):
		return "Session expired, please log in again"
	case errors.Is(err, common.ErrPermissionDenied):
		return "Permission denied, use 'unlock' first"
	case errors.Is(err, common.ErrOwnership):
		return "Access denied"
	case errors.Is(err, common.ErrNotFound):
		return "Entry not found"
	case errors.Is(err, common.ErrAlreadyExists):
		return "That username is taken"
	case errors.Is(err, common.ErrDecryption):
		return "Entry could not be decrypted"
	case errors.Is(err, common.ErrStorage):
		return "Storage unavailable, see the log for details"
	}
	return "Error: " + err.Error()
}
