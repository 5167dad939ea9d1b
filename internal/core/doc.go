// Package core wires lockvault's components and implements the workflows
// the CLI exposes.
//
// Core operations include:
//   - Init/Open: create or open a vault and bind session, vault and sync
//   - Unlock/Lock: authenticate the master password or forget the key
//   - ChangePassword: rotate the master password and re-encrypt every entry
//   - Push/Pull: mirror records through a sync directory
//   - Merge: fold in a remote account sealed under another password,
//     newest entry wins
//   - AdoptCloud: drop the local vault in favor of the remote account
//   - Backup/Restore: passphrase protected export files
//
// Entries are edited through the user's $EDITOR as a plain key/value form.
package core
