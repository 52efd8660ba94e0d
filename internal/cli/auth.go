package cli

import (
	"context"

	"github.com/dmitrijs2005/keyvault/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getHidden     = GetHidden
)

// Register prompts for a username and a master password (twice) and
// creates the account. It does not log in.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Choose a username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	again, err := getHidden(a.reader, "Repeat master password: ", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if string(password) != string(again) {
		a.println("Passwords do not match")
		return common.NewValidationError("password", "confirmation does not match")
	}

	if _, err := a.auth.CreateAccount(ctx, userName, password); err != nil {
		return a.fail(ctx, "register", err)
	}
	a.println("Account created, you can log in now")
	return nil
}

// Login prompts for credentials and opens a session. An existing session
// is closed first.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if a.isLoggedIn() {
		a.auth.Logout(a.sessionID)
		a.endSession()
	}

	sid, err := a.auth.Authenticate(ctx, userName, password)
	if err != nil {
		return a.fail(ctx, "login", err)
	}
	a.sessionID = sid
	a.userName = userName
	a.println("Login successful")
	return nil
}

// Logout ends the session; any view permission ends with it.
func (a *App) Logout(ctx context.Context) error {
	a.auth.Logout(a.sessionID)
	a.endSession()
	a.println("Logged out")
	return nil
}
