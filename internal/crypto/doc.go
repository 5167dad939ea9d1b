// Package crypto provides cryptographic operations for lockvault.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from the master password via Argon2id
//   - 12-byte random nonce per encryption operation, stored next to
//     (not inside) the ciphertext
//   - Authenticated encryption: a wrong key, wrong nonce or tampered
//     ciphertext fails with ErrDecryptionFailure
//
// Key derivation uses Argon2id with:
//   - 32-byte random salt (stored unencrypted)
//   - 3 passes over 64 MiB with 4 lanes by default
//
// Backup files exported under a chosen passphrase use PBKDF2-HMAC-SHA256
// instead, so they stay independent of the session key.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
