package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Add(ctx context.Context) error
	Show(ctx context.Context) error
	Reveal(ctx context.Context) error
	Edit(ctx context.Context) error
	Delete(ctx context.Context) error
	Unlock(ctx context.Context) error
	Extend(ctx context.Context) error
	Lock(ctx context.Context) error
	Status(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, exit"
	helpLoggedIn  = "Available commands: (l)ist, add, show, reveal, edit, delete, unlock, extend, lock, status, logout, exit"
)

// runREPL reads commands from reader, one per line, and dispatches them to
// a. The prompt shows the current status (from statusFn). The loop exits
// on EOF or when the user types "exit" or "quit".
//
// Commands that need a session are refused while logged out. Errors
// returned by command handlers are ignored here; handlers report their
// own errors to the user.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "kv %s> ", statusFn())
		line, err := readLine(reader)
		if err != nil {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, helpLoggedIn)
			} else {
				fmt.Fprintln(w, helpLoggedOut)
			}
			continue
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		case "register":
			_ = a.Register(ctx)
			continue
		case "login":
			_ = a.Login(ctx)
			continue
		}

		handler := sessionCommand(a, cmd)
		switch {
		case handler == nil:
			fmt.Fprintln(w, "Unknown command:", cmd)
		case !a.isLoggedIn():
			fmt.Fprintln(w, "Please log in first")
		default:
			_ = handler(ctx)
		}
	}
}

func sessionCommand(a execIface, cmd string) func(context.Context) error {
	switch cmd {
	case "l", "list":
		return a.List
	case "add":
		return a.Add
	case "show":
		return a.Show
	case "reveal":
		return a.Reveal
	case "edit":
		return a.Edit
	case "delete", "rm":
		return a.Delete
	case "unlock":
		return a.Unlock
	case "extend":
		return a.Extend
	case "lock":
		return a.Lock
	case "status":
		return a.Status
	case "logout":
		return a.Logout
	}
	return nil
}
