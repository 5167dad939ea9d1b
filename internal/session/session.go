package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/crypto"
	"github.com/illarion/lockvault/internal/storage"
)

const sentinel = "VALID"

var (
	ErrAccountNotSetup = errors.New("account not set up")
	ErrWrongPassword   = errors.New("wrong password")
	ErrVaultLocked     = errors.New("vault is locked")
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrMissingVerifier = errors.New("verifier missing")
	ErrInvalidVerifier = errors.New("verifier invalid")
	ErrInvalidSalt     = errors.New("salt missing or invalid")
	ErrNoRekeyer       = errors.New("no vault bound to session")
)

// Rekeyer re-encrypts every stored record from oldKey to newKey and commits
// the result together with extra in one store batch. Nothing may be written
// when it returns an error.
type Rekeyer interface {
	Reencrypt(ctx context.Context, oldKey, newKey []byte, extra ...storage.Mutation) error
}

// Session holds the live master key of one vault.
type Session struct {
	store   storage.Store
	params  crypto.Params
	log     *zap.Logger
	rekeyer Rekeyer

	// identity is the key identity lock: read mode for key users,
	// write mode for anything that replaces the key or the salt.
	identity sync.RWMutex

	mu  sync.Mutex
	key []byte
	// gen counts Lock calls; a key derived before a Lock is never adopted.
	gen uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithParams overrides the Argon2id parameters.
func WithParams(p crypto.Params) Option {
	return func(s *Session) { s.params = p }
}

// New returns a Locked session over store.
func New(store storage.Store, opts ...Option) *Session {
	s := &Session{
		store:  store,
		params: crypto.DefaultParams,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UseRekeyer binds the vault that ChangeMasterPassword re-encrypts. It is
// the second phase of wiring, called once the vault exists.
func (s *Session) UseRekeyer(r Rekeyer) {
	s.identity.Lock()
	defer s.identity.Unlock()
	s.rekeyer = r
}

// generation returns the current lock generation.
func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// adoptKey installs key unless the session was locked since gen was read.
// A rejected key is cleared and the session stays Locked.
func (s *Session) adoptKey(key []byte, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		crypto.ClearBytes(key)
		return false
	}
	if s.key != nil {
		crypto.ClearBytes(s.key)
	}
	s.key = key
	return true
}

// IsUnlocked reports whether a master key is live.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// MasterKey returns a copy of the live key. The caller should clear it.
func (s *Session) MasterKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrVaultLocked
	}
	return append([]byte(nil), s.key...), nil
}

// WithKey runs fn with the live key while holding the key identity lock in
// read mode. The key is read once; fn must not retain it.
func (s *Session) WithKey(fn func(key []byte) error) error {
	s.identity.RLock()
	defer s.identity.RUnlock()

	key, err := s.MasterKey()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(key)
	return fn(key)
}

// Lock forgets the master key. It never blocks on in-flight operations,
// which keep the copy they already read, but a key they derive afterwards
// is not adopted.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.ClearBytes(s.key)
	}
	s.key = nil
	s.gen++
}

// IsSetup reports whether an account exists in the store.
func (s *Session) IsSetup(ctx context.Context) (bool, error) {
	done, err := storage.IsSetupComplete(ctx, s.store)
	if err != nil || done {
		return done, err
	}
	_, err = storage.GetSalt(ctx, s.store)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func newVerifier(key []byte) (*storage.Verifier, error) {
	sealed, err := crypto.Encrypt([]byte(sentinel), key)
	if err != nil {
		return nil, fmt.Errorf("failed to seal verifier: %w", err)
	}
	return &storage.Verifier{Payload: sealed.Ciphertext, Nonce: sealed.Nonce}, nil
}

// SetupAccount creates a fresh salt and verifier for password and unlocks
// the session. Running it again replaces the previous key.
func (s *Session) SetupAccount(ctx context.Context, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	s.identity.Lock()
	defer s.identity.Unlock()
	gen := s.generation()

	kdf, err := crypto.NewKDF(s.params)
	if err != nil {
		return fmt.Errorf("failed to create KDF: %w", err)
	}
	key := kdf.DeriveKey(password)

	verifier, err := newVerifier(key)
	if err != nil {
		crypto.ClearBytes(key)
		return err
	}
	vm, err := storage.VerifierMutation(verifier)
	if err != nil {
		crypto.ClearBytes(key)
		return err
	}

	err = s.store.Batch(ctx, []storage.Mutation{
		storage.SaltMutation(kdf.Salt),
		storage.SetupMutation(),
		vm,
	})
	if err != nil {
		crypto.ClearBytes(key)
		return fmt.Errorf("failed to store account metadata: %w", err)
	}

	s.adoptKey(key, gen)
	s.log.Info("account set up")
	return nil
}

// Authenticate derives a key from password and unlocks the session if the
// key validates. A failure leaves the session Locked.
func (s *Session) Authenticate(ctx context.Context, password []byte) error {
	s.identity.Lock()
	defer s.identity.Unlock()
	gen := s.generation()

	salt, err := storage.GetSalt(ctx, s.store)
	if errors.Is(err, storage.ErrNotFound) {
		s.Lock()
		return ErrAccountNotSetup
	}
	if err != nil {
		return fmt.Errorf("failed to read salt: %w", err)
	}

	candidate := crypto.DeriveKey(password, salt, s.params)
	ok, err := s.validate(ctx, candidate)
	if err != nil || !ok {
		crypto.ClearBytes(candidate)
		s.Lock()
		if err != nil {
			return err
		}
		return ErrWrongPassword
	}

	if !s.adoptKey(candidate, gen) {
		return ErrVaultLocked
	}
	return nil
}

// validate checks candidate against the verifier, then against one vault
// record. It heals the verifier when only the record check succeeds.
func (s *Session) validate(ctx context.Context, candidate []byte) (bool, error) {
	verifier, err := storage.GetVerifier(ctx, s.store)
	switch {
	case err == nil:
		if opens(verifier, candidate) {
			return true, nil
		}
		s.log.Warn("verifier did not validate, falling back to vault records")
	case errors.Is(err, storage.ErrNotFound):
		s.log.Info("no verifier stored, falling back to vault records")
	case errors.Is(err, storage.ErrMalformed):
		s.log.Warn("stored verifier is malformed, falling back to vault records", zap.Error(err))
	default:
		return false, fmt.Errorf("failed to read verifier: %w", err)
	}

	records, _, err := storage.GetRecords(ctx, s.store)
	if err != nil {
		return false, fmt.Errorf("failed to read vault records: %w", err)
	}
	if len(records) == 0 {
		// Nothing to check against: accepting here would bind a verifier
		// to an unverified key.
		s.log.Warn("no verifier and no vault records, refusing password")
		return false, nil
	}

	// Known weak point: one decryptable record is taken as proof of the
	// password. A mis-migrated record could validate an unintended key.
	first := records[0]
	if _, err := crypto.Decrypt(first.Payload, first.Nonce, candidate); err != nil {
		return false, nil
	}

	if err := s.writeVerifier(ctx, candidate); err != nil {
		return false, err
	}
	s.log.Info("verifier rebuilt from vault record", zap.String("record_id", first.ID))
	return true, nil
}

func opens(v *storage.Verifier, key []byte) bool {
	plain, err := crypto.Decrypt(v.Payload, v.Nonce, key)
	return err == nil && crypto.ConstantTimeCompare(plain, []byte(sentinel))
}

func parseCloudCredentials(saltB64, verifierJSON string) ([]byte, *storage.Verifier, error) {
	if strings.TrimSpace(verifierJSON) == "" {
		return nil, nil, ErrMissingVerifier
	}
	salt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(saltB64))
	if err != nil || len(salt) == 0 {
		return nil, nil, ErrInvalidSalt
	}
	verifier, err := storage.ParseVerifier([]byte(verifierJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}
	return salt, verifier, nil
}

// ValidateCloudCredentials checks an exchange pair without importing it.
func ValidateCloudCredentials(saltB64, verifierJSON string) error {
	_, _, err := parseCloudCredentials(saltB64, verifierJSON)
	return err
}

// DeriveCloudKey derives the key another device uses from its exchange pair
// and password, without touching this session. It fails with
// ErrWrongPassword unless the key opens the given verifier.
func (s *Session) DeriveCloudKey(saltB64, verifierJSON string, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	salt, verifier, err := parseCloudCredentials(saltB64, verifierJSON)
	if err != nil {
		return nil, err
	}

	key := crypto.DeriveKey(password, salt, s.params)
	if !opens(verifier, key) {
		crypto.ClearBytes(key)
		return nil, ErrWrongPassword
	}
	return key, nil
}

func (s *Session) writeVerifier(ctx context.Context, key []byte) error {
	verifier, err := newVerifier(key)
	if err != nil {
		return err
	}
	vm, err := storage.VerifierMutation(verifier)
	if err != nil {
		return err
	}
	if err := s.store.Batch(ctx, []storage.Mutation{vm}); err != nil {
		return fmt.Errorf("failed to store verifier: %w", err)
	}
	return nil
}

// VerifyPassword checks password without touching state when Unlocked. When
// Locked it delegates to Authenticate, which unlocks on success.
func (s *Session) VerifyPassword(ctx context.Context, password []byte) error {
	s.identity.RLock()
	current, err := s.MasterKey()
	if err != nil {
		s.identity.RUnlock()
		return s.Authenticate(ctx, password)
	}
	defer s.identity.RUnlock()
	defer crypto.ClearBytes(current)

	salt, err := storage.GetSalt(ctx, s.store)
	if err != nil {
		return fmt.Errorf("failed to read salt: %w", err)
	}
	candidate := crypto.DeriveKey(password, salt, s.params)
	defer crypto.ClearBytes(candidate)

	if !crypto.ConstantTimeCompare(candidate, current) {
		return ErrWrongPassword
	}
	return nil
}

// ChangeMasterPassword re-encrypts the vault under a key derived from
// newPassword and a fresh salt. Records, salt and verifier are committed in
// one batch; on any failure the old password stays valid.
func (s *Session) ChangeMasterPassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}

	s.identity.Lock()
	defer s.identity.Unlock()

	if s.rekeyer == nil {
		return ErrNoRekeyer
	}

	gen := s.generation()
	current, err := s.MasterKey()
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(current)

	salt, err := storage.GetSalt(ctx, s.store)
	if err != nil {
		return fmt.Errorf("failed to read salt: %w", err)
	}
	candidate := crypto.DeriveKey(oldPassword, salt, s.params)
	match := crypto.ConstantTimeCompare(candidate, current)
	crypto.ClearBytes(candidate)
	if !match {
		return ErrWrongPassword
	}

	kdf, err := crypto.NewKDF(s.params)
	if err != nil {
		return fmt.Errorf("failed to create new KDF: %w", err)
	}
	newKey := kdf.DeriveKey(newPassword)

	verifier, err := newVerifier(newKey)
	if err != nil {
		crypto.ClearBytes(newKey)
		return err
	}
	vm, err := storage.VerifierMutation(verifier)
	if err != nil {
		crypto.ClearBytes(newKey)
		return err
	}

	if err := s.rekeyer.Reencrypt(ctx, current, newKey, storage.SaltMutation(kdf.Salt), vm); err != nil {
		crypto.ClearBytes(newKey)
		s.log.Error("password change aborted", zap.Error(err))
		return fmt.Errorf("failed to re-encrypt vault: %w", err)
	}

	if !s.adoptKey(newKey, gen) {
		s.log.Info("master password changed, session was locked meanwhile")
		return nil
	}
	s.log.Info("master password changed")
	return nil
}

// ImportCloudCredentials adopts a salt and verifier produced on another
// device. Both are required. The session is Locked afterwards so the user
// has to enter the password that matches them.
func (s *Session) ImportCloudCredentials(ctx context.Context, saltB64, verifierJSON string) error {
	salt, verifier, err := parseCloudCredentials(saltB64, verifierJSON)
	if err != nil {
		return err
	}
	vm, err := storage.VerifierMutation(verifier)
	if err != nil {
		return err
	}

	s.identity.Lock()
	defer s.identity.Unlock()

	err = s.store.Batch(ctx, []storage.Mutation{
		storage.SaltMutation(salt),
		storage.SetupMutation(),
		vm,
	})
	if err != nil {
		return fmt.Errorf("failed to store imported credentials: %w", err)
	}

	s.Lock()
	s.log.Info("cloud credentials imported, session locked")
	return nil
}

// ExportCloudCredentials returns the salt (base64) and verifier (JSON) pair
// another device needs to adopt this vault.
func (s *Session) ExportCloudCredentials(ctx context.Context) (saltB64, verifierJSON string, err error) {
	s.identity.RLock()
	defer s.identity.RUnlock()

	salt, err := storage.GetSalt(ctx, s.store)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", ErrAccountNotSetup
	}
	if err != nil {
		return "", "", err
	}
	verifier, err := storage.GetVerifier(ctx, s.store)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", ErrMissingVerifier
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidVerifier, err)
	}
	data, err := verifier.Marshal()
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(salt), string(data), nil
}
