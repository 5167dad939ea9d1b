package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Metadata keys
const (
	KeySalt          = "salt"
	KeySetupComplete = "setup_complete"
	KeyVerifier      = "auth_verifier"
	KeyVaultID       = "vault_id"
)

var ErrMalformed = errors.New("malformed value")

// Verifier is the sentinel sealed under the session key. Payload and Nonce
// marshal as base64 strings.
type Verifier struct {
	Payload []byte `json:"payload"`
	Nonce   []byte `json:"nonce"`
}

// ParseVerifier decodes a verifier and requires both fields to be present
func ParseVerifier(data []byte) (*Verifier, error) {
	var v Verifier
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: verifier: %v", ErrMalformed, err)
	}
	if len(v.Payload) == 0 || len(v.Nonce) == 0 {
		return nil, fmt.Errorf("%w: verifier missing payload or nonce", ErrMalformed)
	}
	return &v, nil
}

// Marshal encodes the verifier in its persisted JSON form
func (v *Verifier) Marshal() ([]byte, error) {
	return json.Marshal(v)
}

// GetSalt retrieves the KDF salt; ErrNotFound when the account was never set up
func GetSalt(ctx context.Context, s Store) ([]byte, error) {
	salt, err := s.Get(ctx, NamespaceMetadata, KeySalt)
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, ErrNotFound
	}
	return salt, nil
}

// IsSetupComplete reports whether setup_complete is stored as true
func IsSetupComplete(ctx context.Context, s Store) (bool, error) {
	data, err := s.Get(ctx, NamespaceMetadata, KeySetupComplete)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var done bool
	if err := json.Unmarshal(data, &done); err != nil {
		return false, fmt.Errorf("%w: setup flag: %v", ErrMalformed, err)
	}
	return done, nil
}

// GetVerifier retrieves the stored verifier; ErrNotFound when absent
func GetVerifier(ctx context.Context, s Store) (*Verifier, error) {
	data, err := s.Get(ctx, NamespaceMetadata, KeyVerifier)
	if err != nil {
		return nil, err
	}
	return ParseVerifier(data)
}

// SaltMutation stores a new salt
func SaltMutation(salt []byte) Mutation {
	return Put(NamespaceMetadata, KeySalt, append([]byte(nil), salt...))
}

// SetupMutation marks the account as set up
func SetupMutation() Mutation {
	return Put(NamespaceMetadata, KeySetupComplete, []byte("true"))
}

// VerifierMutation stores a verifier
func VerifierMutation(v *Verifier) (Mutation, error) {
	data, err := v.Marshal()
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to marshal verifier: %w", err)
	}
	return Put(NamespaceMetadata, KeyVerifier, data), nil
}

// GetVaultID returns the vault's stable identifier
func GetVaultID(ctx context.Context, s Store) (string, error) {
	data, err := s.Get(ctx, NamespaceMetadata, KeyVaultID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetOrCreateVaultID returns the vault id, generating and storing one on
// first use
func GetOrCreateVaultID(ctx context.Context, s Store) (string, error) {
	id, err := GetVaultID(ctx, s)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	if err := s.Put(ctx, NamespaceMetadata, KeyVaultID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to store vault id: %w", err)
	}
	return id, nil
}
