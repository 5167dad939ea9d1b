package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/keyring"
)

// KeyringSave saves the master password to the OS keyring
func KeyringSave(ctx context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	password, err := core.ReadPassword("Enter master password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := app.Session.VerifyPassword(ctx, password); err != nil {
		HandleError(err)
	}

	vaultID, err := app.VaultID(ctx)
	if err != nil {
		HandleError(err)
	}
	if err := keyring.Save(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the master password from the OS keyring
func KeyringDelete(ctx context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	vaultID, err := app.VaultID(ctx)
	if err != nil || !keyring.Has(vaultID) {
		fmt.Println("No password stored in keyring")
		return
	}
	if err := keyring.Delete(vaultID); err != nil {
		HandleError(err)
	}
	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(ctx context.Context, env Env) {
	app := env.open()
	defer closeApp(app)

	vaultID, err := app.VaultID(ctx)
	if err == nil && keyring.Has(vaultID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}
