package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/remote"
	"github.com/illarion/lockvault/internal/vault"
)

// Push uploads the vault to the sync directory
func Push(ctx context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	n, err := app.Push(ctx)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("pushed: %d entries\n", n)
}

// Pull fetches entries sealed under this account from the sync directory
func Pull(ctx context.Context, env Env) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	res, err := app.Pull(ctx)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("pulled: %d, unreadable: %d, failed: %d\n", res.Applied, res.Skipped, res.Failed)
}

// Merge folds in the entries of a sync directory owned by another account
func Merge(ctx context.Context, env Env, dryRun bool) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	cloudPassword, err := core.ReadPassword("Enter password of the remote account: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(cloudPassword)

	conflicts, res, err := app.Merge(ctx, cloudPassword, dryRun)
	if err != nil {
		HandleError(err)
	}

	if !dryRun {
		fmt.Printf("merged: %d, kept local: %d, failed: %d\n", res.Applied, res.Skipped, res.Failed)
		return
	}
	if len(conflicts) == 0 {
		fmt.Println("remote is empty")
		return
	}
	for _, c := range conflicts {
		printConflict(c)
	}
}

func printConflict(c vault.Conflict) {
	switch c.Action {
	case vault.ActionUnreadable:
		fmt.Printf("%s %s: %v\n", c.Action, shortID(c.ID), c.Err)
		return
	case vault.ActionInsert:
		fmt.Printf("%s %s %s\n", c.Action, shortID(c.ID), c.Title)
		return
	}
	fmt.Printf("%s %s %s (local %s, remote %s)\n", c.Action, shortID(c.ID), c.Title,
		formatMillis(c.LocalUpdatedAt), formatMillis(c.IncomingUpdatedAt))
	if c.Diff != "" {
		fmt.Print(c.Diff)
	}
}

// Adopt replaces the local vault with the sync directory's account
func Adopt(ctx context.Context, env Env, force bool) {
	app := env.open()
	defer closeApp(app)

	if !force && !core.Confirm("This deletes every local entry. Continue?") {
		return
	}
	if err := app.AdoptCloud(ctx); err != nil {
		HandleError(err)
	}
	unlock(ctx, app)

	res, err := app.Pull(ctx)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("adopted remote account, pulled %d entries\n", res.Applied)
}

// CredentialsExport writes this account's salt and verifier as JSON
func CredentialsExport(ctx context.Context, env Env, path string) {
	app := env.open()
	defer closeApp(app)

	c, err := app.Credentials(ctx)
	if err != nil {
		HandleError(err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		HandleError(err)
	}
	if path == "-" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		HandleError(err)
	}
	fmt.Fprintf(os.Stderr, "credentials written to %s\n", path)
}

// CredentialsImport adopts another device's salt and verifier. Local
// entries sealed under the old key become unreadable unless discarded.
func CredentialsImport(ctx context.Context, env Env, path string, discardLocal bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		HandleError(err)
	}
	var c remote.Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		HandleError(fmt.Errorf("invalid credentials file: %w", err))
	}

	app := env.open()
	defer closeApp(app)

	if !discardLocal && !core.Confirm("Entries under the current password will no longer decrypt. Continue?") {
		return
	}
	if err := app.ImportCredentials(ctx, c); err != nil {
		HandleError(err)
	}
	if discardLocal {
		if err := app.Vault.ClearLocalVault(ctx); err != nil {
			HandleError(err)
		}
	}
	fmt.Println("credentials imported, unlock with the other device's password")
}

// Clear deletes every local entry, keeping the account
func Clear(ctx context.Context, env Env, force bool) {
	app := env.open()
	defer closeApp(app)

	if !force && !core.Confirm("Delete every local entry?") {
		return
	}
	if err := app.Vault.ClearLocalVault(ctx); err != nil {
		HandleError(err)
	}
	fmt.Println("local vault cleared")
}
