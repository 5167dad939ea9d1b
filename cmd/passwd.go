package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/keyring"
)

// Passwd changes the master password
func Passwd(ctx context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	// Get vault ID for keyring lookup
	vaultID, _ := app.VaultID(ctx)

	currentPassword, _, err := GetPasswordWithRetry("Enter current password: ", vaultID,
		func(p []byte) error { return app.Session.VerifyPassword(ctx, p) })
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(currentPassword)

	newPassword, err := core.ReadPasswordConfirm("Enter new password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(newPassword)

	if err := app.ChangePassword(ctx, currentPassword, newPassword); err != nil {
		HandleError(err)
	}

	// Update the keyring only if it already held the old password
	if vaultID != "" && keyring.Has(vaultID) {
		if err := keyring.Save(vaultID, newPassword); err == nil {
			fmt.Println("Keyring updated with new password")
		}
	}

	// Compact database after rewriting all data
	if err := app.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("password changed successfully")
}
