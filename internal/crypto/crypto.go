package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize           = 32     // Salt size in bytes
	KeySize            = 32     // AES-256 key size
	NonceSize          = 12     // GCM nonce size
	TagSize            = 16     // GCM authentication tag size
	DefaultPBKDF2Iters = 210000 // PBKDF2 iterations for passphrase backups (OWASP minimum)
)

var (
	ErrDecryptionFailure = errors.New("decryption failed")
	ErrInvalidKey        = errors.New("invalid key size")
)

// Params are the Argon2id cost parameters.
type Params struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
}

// DefaultParams is used for every vault unless overridden by configuration.
var DefaultParams = Params{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

// Validate rejects parameters argon2 would panic on or that are trivially weak.
func (p Params) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("argon2 time must be positive")
	}
	if p.Threads == 0 {
		return fmt.Errorf("argon2 threads must be positive")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("argon2 memory must be at least %d KiB", 8*uint32(p.Threads))
	}
	return nil
}

// KDF handles key derivation from passwords
type KDF struct {
	Salt   []byte
	Params Params
}

// NewKDF creates a new KDF with a random salt
func NewKDF(params Params) (*KDF, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	return &KDF{
		Salt:   salt,
		Params: params,
	}, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) []byte {
	return DeriveKey(password, k.Salt, k.Params)
}

// DeriveKey runs Argon2id over (password, salt). Identical inputs always
// yield the identical key.
func DeriveKey(password, salt []byte, params Params) []byte {
	return argon2.IDKey(password, salt, params.Time, params.MemoryKiB, params.Threads, KeySize)
}

// DerivePassphraseKey derives a backup key from a user-chosen passphrase.
func DerivePassphraseKey(passphrase, salt []byte, iterations int) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)
}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// Sealed is an AES-GCM ciphertext together with the nonce it was sealed with.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM under a fresh random nonce
func Encrypt(plaintext, key []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return Sealed{
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
	}, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return nil, ErrDecryptionFailure
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailure
	}

	return plaintext, nil
}

// Encryptor provides authenticated encryption under one key
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor holding its own copy of key
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: append([]byte(nil), key...),
	}
}

// Seal encrypts plaintext with a fresh nonce
func (e *Encryptor) Seal(plaintext []byte) (Sealed, error) {
	return Encrypt(plaintext, e.key)
}

// Open decrypts a sealed value
func (e *Encryptor) Open(s Sealed) ([]byte, error) {
	return Decrypt(s.Ciphertext, s.Nonce, e.key)
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
