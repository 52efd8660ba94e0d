// Package cli provides the interactive keyvault shell.
//
// The shell drives the vault services for one local user at a time: create
// an account, log in, manage entries, and unlock a short view permission
// before revealing a secret. Passwords and secrets are read without echo
// when stdin is a terminal.
//
// The shell is started via App.Run(ctx), which blocks until the user exits
// or input ends. See App and runREPL for details.
package cli
