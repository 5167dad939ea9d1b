package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/remote"
	"github.com/illarion/lockvault/internal/session"
	"github.com/illarion/lockvault/internal/vault"
)

// Push uploads every local record and publishes this vault's credentials.
// Remote records missing locally are left alone; they may come from another
// device and not have been pulled yet.
func (a *App) Push(ctx context.Context) (int, error) {
	if a.remote == nil {
		return 0, ErrNoSyncDir
	}
	if err := a.PublishCredentials(ctx); err != nil {
		return 0, err
	}
	records, err := a.Vault.StorageRecords(ctx)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		if err := a.remote.Upload(ctx, rec); err != nil {
			return i, err
		}
	}
	a.log.Info("pushed vault", zap.Int("records", len(records)))
	return len(records), nil
}

// PublishCredentials writes this vault's salt and verifier to the remote.
func (a *App) PublishCredentials(ctx context.Context) error {
	if a.remote == nil {
		return ErrNoSyncDir
	}
	c, err := a.Credentials(ctx)
	if err != nil {
		return err
	}
	return a.remote.PublishCredentials(ctx, c)
}

// Credentials returns the cross-device exchange pair of this vault.
func (a *App) Credentials(ctx context.Context) (remote.Credentials, error) {
	salt, verifier, err := a.Session.ExportCloudCredentials(ctx)
	if err != nil {
		return remote.Credentials{}, err
	}
	return remote.Credentials{Salt: salt, Verifier: verifier}, nil
}

// ImportCredentials adopts another device's exchange pair. The session is
// Locked afterwards; the caller unlocks with that device's password.
func (a *App) ImportCredentials(ctx context.Context, c remote.Credentials) error {
	if err := a.Session.ImportCloudCredentials(ctx, c.Salt, c.Verifier); err != nil {
		return err
	}
	a.Vault.Purge()
	return nil
}

// sameAccount reports whether the remote was published by this account.
// A remote without credentials counts as compatible.
func (a *App) sameAccount(ctx context.Context) (bool, error) {
	theirs, err := a.remote.Credentials(ctx)
	if errors.Is(err, remote.ErrNoCredentials) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	ours, err := a.Credentials(ctx)
	if err != nil {
		return false, err
	}
	return theirs.Salt == ours.Salt, nil
}

// Pull adopts remote records sealed under this vault's key.
func (a *App) Pull(ctx context.Context) (vault.BatchResult, error) {
	if a.remote == nil {
		return vault.BatchResult{}, ErrNoSyncDir
	}
	same, err := a.sameAccount(ctx)
	if err != nil {
		return vault.BatchResult{}, err
	}
	if !same {
		return vault.BatchResult{}, ErrCredentialsDiffer
	}
	items, err := a.remote.List(ctx)
	if err != nil {
		return vault.BatchResult{}, err
	}
	return a.Vault.ProcessCloudEntries(ctx, items)
}

// cloudKey derives the remote account's key from its published credentials.
func (a *App) cloudKey(ctx context.Context, password []byte) ([]byte, error) {
	c, err := a.remote.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return a.Session.DeriveCloudKey(c.Salt, c.Verifier, password)
}

// Merge folds the records of a remote account with a different password
// into this vault. With dryRun nothing is written and the planned actions
// are returned instead.
func (a *App) Merge(ctx context.Context, cloudPassword []byte, dryRun bool) ([]vault.Conflict, vault.BatchResult, error) {
	var res vault.BatchResult
	if a.remote == nil {
		return nil, res, ErrNoSyncDir
	}
	key, err := a.cloudKey(ctx, cloudPassword)
	if err != nil {
		return nil, res, fmt.Errorf("failed to derive cloud key: %w", err)
	}
	defer crypto.ClearBytes(key)

	items, err := a.remote.List(ctx)
	if err != nil {
		return nil, res, err
	}
	if dryRun {
		conflicts, err := a.Vault.PreviewMerge(ctx, items, key)
		return conflicts, res, err
	}
	res, err = a.Vault.MergeCloudEntries(ctx, items, key)
	return nil, res, err
}

// AdoptCloud discards the local vault and takes over the remote account's
// credentials. The session ends Locked; unlock with the remote password and
// Pull to fetch the records.
//
// Records are cleared before the credentials are replaced, so a failed
// clear never leaves old records behind foreign credentials.
func (a *App) AdoptCloud(ctx context.Context) error {
	if a.remote == nil {
		return ErrNoSyncDir
	}
	c, err := a.remote.Credentials(ctx)
	if err != nil {
		return err
	}
	if err := session.ValidateCloudCredentials(c.Salt, c.Verifier); err != nil {
		return fmt.Errorf("remote credentials rejected: %w", err)
	}
	if err := a.Vault.ClearLocalVault(ctx); err != nil {
		return err
	}
	if err := a.ImportCredentials(ctx, c); err != nil {
		return err
	}
	a.log.Info("local vault replaced by cloud account")
	return nil
}
