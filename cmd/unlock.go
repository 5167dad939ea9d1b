package cmd

import (
	"context"
	"fmt"
)

// Unlock checks the master password and reports how many entries decrypt.
// It is the way to seed the keyring from a prompt.
func Unlock(ctx context.Context, env Env) {
	app := env.openUnlocked(ctx)
	defer closeApp(app)

	res, err := app.Vault.Reload(ctx)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("unlocked: %d entries\n", res.Applied)
	if res.Failed > 0 {
		fmt.Printf("warning: %d entries could not be decrypted\n", res.Failed)
	}
}
