package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/models"
	"github.com/dmitrijs2005/keyvault/internal/services"
)

const timeLayout = "2006-01-02 15:04"

// List prints the user's entries, secrets withheld.
func (a *App) List(ctx context.Context) error {
	list, err := a.vault.Entries(ctx, a.sessionID)
	if err != nil {
		return a.fail(ctx, "list", err)
	}
	if len(list) == 0 {
		a.println("No entries")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSITE\tLOGIN\tNOTE\tMODIFIED")
	for _, e := range list {
		note := ""
		if e.HasNote {
			note = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.SiteLabel, e.LoginIdentifier, note, e.ModifiedAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

// Add prompts for the fields of a new entry and stores it.
func (a *App) Add(ctx context.Context) error {
	site, err := getSimpleText(a.reader, "Site", a.out)
	if err != nil {
		return err
	}
	login, err := getSimpleText(a.reader, "Login", a.out)
	if err != nil {
		return err
	}
	secret, err := getHidden(a.reader, "Secret: ", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)
	note, err := GetMultiline(a.reader, "Note (optional)", a.out)
	if err != nil {
		return err
	}

	id, err := a.vault.Add(ctx, a.sessionID, services.EntryInput{Site: site, Login: login, Secret: string(secret), Note: note})
	if err != nil {
		return a.fail(ctx, "add", err)
	}
	a.printf("Entry %s added\n", id)
	return nil
}

// Show prints one entry with its secret withheld.
func (a *App) Show(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Entry id", a.out)
	if err != nil {
		return err
	}
	view, err := a.vault.Show(ctx, a.sessionID, id)
	if err != nil {
		return a.fail(ctx, "show", err)
	}
	a.printEntry(view)
	return nil
}

// Reveal prints one entry with its secret. It needs an unlocked session.
func (a *App) Reveal(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Entry id", a.out)
	if err != nil {
		return err
	}
	view, err := a.vault.Reveal(ctx, a.sessionID, id)
	if err != nil {
		return a.fail(ctx, "reveal", err)
	}
	a.printEntry(view)
	return nil
}

func (a *App) printEntry(v *models.CredentialView) {
	a.printf("Site:     %s\n", v.SiteLabel)
	a.printf("Login:    %s\n", v.LoginIdentifier)
	if v.Withheld {
		a.println("Secret:   ******** (use 'reveal')")
	} else {
		a.printf("Secret:   %s\n", v.Secret)
		if v.Note != "" {
			a.printf("Note:\n%s\n", v.Note)
		}
	}
	if v.Withheld && v.HasNote {
		a.println("Note:     (hidden)")
	}
	a.printf("Created:  %s\n", v.CreatedAt.Local().Format(timeLayout))
	a.printf("Modified: %s\n", v.ModifiedAt.Local().Format(timeLayout))
}

// Edit prompts for the fields to change. Empty answers keep the current
// value.
func (a *App) Edit(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Entry id", a.out)
	if err != nil {
		return err
	}

	var upd services.EntryUpdate
	site, err := getSimpleText(a.reader, "New site (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if site != "" {
		upd.Site = &site
	}
	login, err := getSimpleText(a.reader, "New login (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if login != "" {
		upd.Login = &login
	}

	change, err := Confirm(a.reader, "Change secret?", a.out)
	if err != nil {
		return err
	}
	if change {
		b, err := getHidden(a.reader, "New secret: ", a.out)
		if err != nil {
			return err
		}
		secret := string(b)
		common.WipeByteArray(b)
		upd.Secret = &secret
	}

	change, err = Confirm(a.reader, "Change note?", a.out)
	if err != nil {
		return err
	}
	if change {
		note, err := GetMultiline(a.reader, "New note (empty removes it)", a.out)
		if err != nil {
			return err
		}
		upd.Note = &note
	}

	if err := a.vault.Edit(ctx, a.sessionID, id, upd); err != nil {
		return a.fail(ctx, "edit", err)
	}
	a.println("Entry updated")
	return nil
}

// Delete removes an entry after confirmation.
func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Entry id", a.out)
	if err != nil {
		return err
	}
	ok, err := Confirm(a.reader, "Delete entry "+id+"?", a.out)
	if err != nil || !ok {
		return err
	}
	deleted, err := a.vault.Remove(ctx, a.sessionID, id)
	if err != nil {
		return a.fail(ctx, "delete", err)
	}
	if !deleted {
		a.println("Entry not found")
		return nil
	}
	a.println("Entry deleted")
	return nil
}

// Unlock re-verifies the master password and opens a view permission.
func (a *App) Unlock(ctx context.Context) error {
	minutes, err := a.readMinutes("View minutes (empty for default)")
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	g, err := a.vault.Unlock(ctx, a.sessionID, password, minutes)
	if errors.Is(err, common.ErrPermissionDenied) {
		a.println("Wrong master password")
		return err
	}
	if err != nil {
		return a.fail(ctx, "unlock", err)
	}
	a.printf("Secrets visible until %s\n", g.ExpiresAt.Local().Format(time.TimeOnly))
	return nil
}

// Extend lengthens the current view permission.
func (a *App) Extend(ctx context.Context) error {
	minutes, err := a.readMinutes("Additional minutes")
	if err != nil {
		return err
	}
	if !a.permissions.Extend(a.sessionID, minutes) {
		a.println("Nothing to extend, use 'unlock'")
		return nil
	}
	return a.Status(ctx)
}

// Lock drops the current view permission.
func (a *App) Lock(ctx context.Context) error {
	if a.permissions.Revoke(a.sessionID, "user request") {
		a.println("Locked")
	} else {
		a.println("Already locked")
	}
	return nil
}

// Status prints the current view permission, if any.
func (a *App) Status(ctx context.Context) error {
	g, ok := a.permissions.Status(a.sessionID)
	if !ok {
		a.println("Locked")
		return nil
	}
	now := a.clock.Now()
	a.printf("Unlocked for %s, %d view(s) so far, risk %d, %s authentication\n",
		g.Remaining(now).Round(time.Second), g.ViewCount, g.RiskScore, g.AuthStrength)
	return nil
}

func (a *App) readMinutes(prompt string) (int, error) {
	s, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		a.println("Not a number:", s)
		return 0, common.NewValidationError("minutes", "must be a whole number")
	}
	return n, nil
}
