// Package git reports how the vault and the sync directory relate to git.
//
// Checks performed:
//   - Whether the vault database is tracked by git (should not be: it holds
//     the salt and verifier, enough for offline password guessing)
//   - Whether the vault database is in .gitignore (should be)
//   - Whether the sync directory is a git work tree, which makes git usable
//     as the sync transport
package git
