package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/crypto"
)

// Export writes a passphrase protected backup to path, or stdout for "-"
func Export(ctx context.Context, env Env, path string) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	passphrase, err := core.ReadPasswordConfirm("Backup passphrase: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(passphrase)

	data, err := app.Backup(ctx, passphrase)
	if err != nil {
		HandleError(err)
	}

	if path == "-" {
		os.Stdout.Write(append(data, '\n'))
		return
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		HandleError(err)
	}
	fmt.Fprintf(os.Stderr, "backup written to %s\n", path)
}

// Import merges a backup file into the vault. Newer local entries win.
func Import(ctx context.Context, env Env, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		HandleError(err)
	}

	app := env.openUnlocked(ctx)
	defer closeApp(app)

	passphrase, err := core.ReadPassword("Backup passphrase: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(passphrase)

	res, err := app.Restore(ctx, data, passphrase)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("imported: %d, kept local: %d, failed: %d\n", res.Applied, res.Skipped, res.Failed)
}
