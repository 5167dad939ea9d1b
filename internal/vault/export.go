package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/credential"
	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

var ErrInvalidExport = errors.New("invalid vault export")

// envelope is the export wire format. Byte fields are base64 in JSON.
type envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// ExportVault seals every readable credential under key and returns the
// JSON envelope. key is chosen by the caller and need not be the session
// key.
func (v *Vault) ExportVault(ctx context.Context, key []byte) (string, error) {
	entries, err := v.Entries(ctx)
	if err != nil {
		return "", err
	}
	if entries == nil {
		entries = []credential.Record{}
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vault: %w", err)
	}
	defer crypto.ClearBytes(plain)

	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()
	sealed, err := enc.Seal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt export: %w", err)
	}
	out, err := json.Marshal(envelope{Ciphertext: sealed.Ciphertext, Nonce: sealed.Nonce})
	if err != nil {
		return "", err
	}

	v.log.Info("vault exported", zap.Int("records", len(entries)))
	return string(out), nil
}

// ImportVault opens an export produced by ExportVault and merges it into
// the vault, last writer wins with the local copy winning ties. A wrong
// key fails the whole import with crypto.ErrDecryptionFailure.
func (v *Vault) ImportVault(ctx context.Context, blob string, key []byte) (BatchResult, error) {
	var res BatchResult

	var env envelope
	if err := json.Unmarshal([]byte(blob), &env); err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if len(env.Ciphertext) == 0 || len(env.Nonce) == 0 {
		return res, fmt.Errorf("%w: missing ciphertext or nonce", ErrInvalidExport)
	}
	enc := crypto.NewEncryptor(key)
	defer enc.Destroy()
	plain, err := enc.Open(crypto.Sealed{Ciphertext: env.Ciphertext, Nonce: env.Nonce})
	if err != nil {
		return res, err
	}
	defer crypto.ClearBytes(plain)

	var incoming []credential.Record
	if err := json.Unmarshal(plain, &incoming); err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}

	var applied []storage.Record
	err = v.keys.WithKey(func(sessionKey []byte) error {
		v.mu.Lock()
		defer v.mu.Unlock()
		if err := v.ensureLoaded(ctx, sessionKey); err != nil {
			return err
		}

		for _, r := range incoming {
			if r.ID == "" {
				res.Failed++
				continue
			}
			if local, ok := v.entries[r.ID]; ok && local.UpdatedAt >= r.UpdatedAt {
				res.Skipped++
				continue
			}
			r.Strength = credential.ClassifyStrength(r.Password)
			rec, err := v.write(ctx, r, sessionKey)
			if err != nil {
				v.log.Error("failed to import entry", zap.String("record_id", r.ID), zap.Error(err))
				res.Failed++
				continue
			}
			applied = append(applied, rec)
			res.Applied++
		}
		return ctx.Err()
	})
	if err != nil {
		return res, err
	}
	for _, rec := range applied {
		v.notifier.NotifyUpload(rec)
	}

	v.log.Info("vault imported",
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}
