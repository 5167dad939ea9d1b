package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/lockvault/internal/git"
	"github.com/illarion/lockvault/internal/keyring"
)

// Status shows the vault state. Does not require a password.
func Status(ctx context.Context, env Env) {
	if _, err := os.Stat(env.Config.VaultPath); os.IsNotExist(err) {
		fmt.Printf("No vault found at %s\n", env.Config.VaultPath)
		fmt.Println("Run 'lockvault init' to create one")
		return
	}

	app := env.open()
	defer closeApp(app)

	st, err := app.Status(ctx)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Vault:    %s (%s)\n", st.Path, st.Backend)
	fmt.Printf("Size:     %s\n", formatSize(diskSize(st.Path)))
	fmt.Printf("Entries:  %d\n", st.Records)
	if !st.Modified.IsZero() {
		fmt.Printf("Modified: %s\n", st.Modified.Format(time.RFC3339))
	}
	if !st.Setup {
		fmt.Println("Account:  not set up")
	}

	if st.SyncDir != "" {
		fmt.Printf("Sync:     %s\n", st.SyncDir)
		fmt.Print(git.FormatSyncDir(git.IsGitRepo(ctx, st.SyncDir)))
	} else {
		fmt.Println("Sync:     not configured")
	}

	if vaultID, err := app.VaultID(ctx); err == nil && keyring.Has(vaultID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}

	fmt.Print(git.FormatVault(git.Inspect(ctx, st.Path)))
}

// diskSize sums a file, or every file below a directory for badger.
func diskSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
