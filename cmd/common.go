package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/config"
	"github.com/illarion/lockvault/internal/core"
	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/keyring"
	"github.com/illarion/lockvault/internal/session"
	"github.com/illarion/lockvault/internal/vault"
)

// PasswordSource tells where a master password came from.
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

// Env bundles what every command needs.
type Env struct {
	Config *config.Config
	Log    *zap.Logger
}

// open opens the configured vault or exits.
func (e Env) open() *core.App {
	app, err := core.Open(e.Config, e.Log)
	if err != nil {
		HandleError(err)
	}
	return app
}

// closeApp flushes pending sync operations before the process exits.
func closeApp(app *core.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", err)
	}
}

// GetPassword retrieves the master password from the environment, the
// keyring or a prompt, in that order.
// The caller is responsible for calling crypto.ClearBytes on the returned password
func GetPassword(prompt, vaultID string) ([]byte, PasswordSource, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, SourceEnv, nil
	}

	if vaultID != "" {
		if password, err := keyring.Load(vaultID); err == nil {
			return password, SourceKeyring, nil
		}
	}

	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// GetPasswordWithRetry is GetPassword with one retry at the prompt when the
// keyring holds a stale password. The stale entry is removed.
func GetPasswordWithRetry(prompt, vaultID string, verify func([]byte) error) ([]byte, PasswordSource, error) {
	password, source, err := GetPassword(prompt, vaultID)
	if err != nil {
		return nil, source, err
	}
	err = verify(password)
	if err == nil {
		return password, source, nil
	}
	crypto.ClearBytes(password)
	if source != SourceKeyring || !errors.Is(err, session.ErrWrongPassword) {
		return nil, source, err
	}

	fmt.Fprintln(os.Stderr, "Password in keyring is out of date, removing it")
	_ = keyring.Delete(vaultID)

	password, err = core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	if err := verify(password); err != nil {
		crypto.ClearBytes(password)
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// OfferToSavePassword asks whether to remember a prompted password.
func OfferToSavePassword(vaultID string, password []byte) {
	if keyring.Has(vaultID) {
		return
	}
	if !core.Confirm("Save password to system keyring?") {
		return
	}
	if err := keyring.Save(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Println("Password saved to keyring")
}

// unlock authenticates the session of app, exiting on failure.
func unlock(ctx context.Context, app *core.App) {
	vaultID, _ := app.VaultID(ctx)
	password, source, err := GetPasswordWithRetry("Enter master password: ", vaultID,
		func(p []byte) error { return app.Unlock(ctx, p) })
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if source == SourcePrompt && vaultID != "" {
		OfferToSavePassword(vaultID, password)
	}
}

// openUnlocked opens the vault and unlocks it.
func (e Env) openUnlocked(ctx context.Context) *core.App {
	app := e.open()
	unlock(ctx, app)
	return app
}

// resolve finds an entry by id, id prefix or title.
func resolve(ctx context.Context, app *core.App, ref string) credential.Record {
	if r, err := app.Vault.Entry(ctx, ref); err == nil {
		return r
	}
	entries, err := app.Vault.Entries(ctx)
	if err != nil {
		HandleError(err)
	}
	var matches []credential.Record
	for _, e := range entries {
		if strings.HasPrefix(e.ID, ref) || strings.EqualFold(e.Title, ref) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		HandleError(fmt.Errorf("%w: %s", vault.ErrEntryNotFound, ref))
	case 1:
		return matches[0]
	}
	fmt.Fprintf(os.Stderr, "Error: %q matches %d entries:\n", ref, len(matches))
	for _, m := range matches {
		fmt.Fprintf(os.Stderr, "  %s  %s\n", shortID(m.ID), m.Title)
	}
	os.Exit(1)
	return credential.Record{}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// HandleError prints err with a hint where one helps, then exits.
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: lockvault not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'lockvault init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: a vault already exists at this path\n")
		fmt.Fprintf(os.Stderr, "Use 'lockvault status' to see current state\n")
	case errors.Is(err, session.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, session.ErrVaultLocked):
		fmt.Fprintf(os.Stderr, "Error: vault is locked\n")
	case errors.Is(err, vault.ErrEntryNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'lockvault ls' to list entries\n")
	case errors.Is(err, core.ErrNoSyncDir):
		fmt.Fprintf(os.Stderr, "Error: no sync directory configured\n")
		fmt.Fprintf(os.Stderr, "Pass -sync-dir or set %s\n", config.EnvSyncDir)
	case errors.Is(err, core.ErrCredentialsDiffer):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'lockvault merge' to fold it in or 'lockvault adopt' to switch accounts\n")
	case errors.Is(err, crypto.ErrDecryptionFailure):
		fmt.Fprintf(os.Stderr, "Error: decryption failed, wrong passphrase or corrupted data\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
