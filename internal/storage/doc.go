// Package storage provides the persistent key-value store for lockvault.
//
// The store exposes two namespaces:
//   - metadata: salt, setup flag and password verifier (unencrypted structure)
//   - vault: one StorageRecord per credential (ciphertext + nonce + a clear
//     projection of category, favorite, icon and timestamps)
//
// The clear projection lets listing and sorting work without a password.
// Stores hold opaque bytes and apply no validation. Batch applies a group of
// puts and deletes in one transaction so a key rotation or a credential
// import is never half-written.
//
// Two backends are available: BBolt (default, single file with ACID
// transactions and file locking) and Badger (directory based LSM store).
package storage
