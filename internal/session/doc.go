// Package session owns the in-memory master key and the locked/unlocked
// state of a vault.
//
// A session starts Locked. SetupAccount or a successful Authenticate moves
// it to Unlocked; Lock returns it to Locked at any time.
//
// Passwords are checked against a verifier: the sentinel "VALID" sealed
// under the derived key. When the verifier is missing or was written under
// a stale key, Authenticate falls back to decrypting one stored vault record
// and, on success, rewrites the verifier. With neither a verifier nor a
// record there is nothing to check a password against, so authentication
// is always refused.
//
// Key users call WithKey, which holds the key identity lock in read mode.
// ChangeMasterPassword holds it in write mode while every record is
// re-encrypted, so rotation never interleaves with ordinary writes.
package session
