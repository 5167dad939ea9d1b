// Package vault owns the decrypted working set of credentials.
//
// Records are persisted as storage.Record: the sensitive projection sealed
// under the session key with a fresh nonce, plus a clear projection used
// for listing. The in-memory cache is filled lazily on first read and can
// be rebuilt from the store at any time; a record that does not decrypt
// under the live key is logged and left out of the cache.
//
// Core operations:
//   - AddEntry/UpdateEntry/DeleteEntry: local writes, announced to a
//     Notifier after they are durable
//   - Reencrypt: re-wrap every record under a new key in one batch
//   - ProcessCloudEntries: adopt remote records already sealed under the
//     shared key
//   - MergeCloudEntries: adopt remote records sealed under another key,
//     last writer wins, local wins ties
//   - ExportVault/ImportVault: whole-vault snapshot sealed under a
//     caller-chosen key
package vault
