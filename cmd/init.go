package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/crypto"
)

// Init creates a new vault at the configured path
func Init(ctx context.Context, env Env) {
	if _, err := os.Stat(env.Config.VaultPath); err == nil {
		HandleError(core.ErrAlreadyExists)
	}

	password := core.GetPasswordFromEnv()
	if password == nil {
		var err error
		password, err = core.ReadPasswordConfirm("Choose master password: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	defer crypto.ClearBytes(password)

	app, err := core.Init(ctx, env.Config, env.Log, password)
	if err != nil {
		HandleError(err)
	}
	defer closeApp(app)

	fmt.Printf("initialized vault at %s\n", app.Path())
	fmt.Println("The master password is not stored anywhere - you must remember it.")
}
