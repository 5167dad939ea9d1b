// Package keyring keeps opaque secrets in the OS keyring, one per vault id.
// The CLI stores the master password there so unlocking does not prompt.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "lockvault"

var ErrNotFound = errors.New("secret not found in keyring")

// Save stores secret for vaultID, replacing any previous one.
func Save(vaultID string, secret []byte) error {
	if err := keyring.Set(serviceName, vaultID, base64.StdEncoding.EncodeToString(secret)); err != nil {
		return fmt.Errorf("failed to save secret to keyring: %w", err)
	}
	return nil
}

// Load returns the secret stored for vaultID.
func Load(vaultID string) ([]byte, error) {
	encoded, err := keyring.Get(serviceName, vaultID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("corrupt keyring entry: %w", err)
	}
	return secret, nil
}

// Delete removes the secret for vaultID. A missing entry is not an error.
func Delete(vaultID string) error {
	err := keyring.Delete(serviceName, vaultID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

// Has reports whether a secret is stored for vaultID.
func Has(vaultID string) bool {
	_, err := keyring.Get(serviceName, vaultID)
	return err == nil
}
