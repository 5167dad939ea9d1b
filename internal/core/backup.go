package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/vault"
)

const (
	backupVersion = 1
	backupKDF     = "pbkdf2-sha256"
)

var ErrInvalidBackup = errors.New("invalid backup file")

// backupFile wraps a vault export with the passphrase derivation inputs.
type backupFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Vault      string `json:"vault"`
}

// Backup exports the vault sealed under a key derived from passphrase,
// independent of the master password.
func (a *App) Backup(ctx context.Context, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	key := crypto.DerivePassphraseKey(passphrase, salt, crypto.DefaultPBKDF2Iters)
	defer crypto.ClearBytes(key)

	blob, err := a.Vault.ExportVault(ctx, key)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(backupFile{
		Version:    backupVersion,
		KDF:        backupKDF,
		Iterations: crypto.DefaultPBKDF2Iters,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Vault:      blob,
	}, "", "  ")
}

// Restore merges a backup into the vault. Entries newer locally are kept.
func (a *App) Restore(ctx context.Context, data, passphrase []byte) (vault.BatchResult, error) {
	var bf backupFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return vault.BatchResult{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if bf.Version != backupVersion || bf.KDF != backupKDF || bf.Iterations <= 0 {
		return vault.BatchResult{}, fmt.Errorf("%w: unsupported version %d / kdf %q", ErrInvalidBackup, bf.Version, bf.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(bf.Salt)
	if err != nil || len(salt) == 0 {
		return vault.BatchResult{}, fmt.Errorf("%w: bad salt", ErrInvalidBackup)
	}

	key := crypto.DerivePassphraseKey(passphrase, salt, bf.Iterations)
	defer crypto.ClearBytes(key)
	return a.Vault.ImportVault(ctx, bf.Vault, key)
}
