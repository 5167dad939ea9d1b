package core

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/illarion/lockvault/internal/crypto"
)

// EnvPassword names the variable holding a non-interactive master password.
const EnvPassword = "LOCKVAULT_PASSWORD"

// ReadPassword reads a password from the terminal without echoing
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func ReadPasswordConfirm(prompt string) ([]byte, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := ReadPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}
	return append([]byte(nil), first...), nil
}

// GetPasswordFromEnv reads the master password from LOCKVAULT_PASSWORD
func GetPasswordFromEnv() []byte {
	password := os.Getenv(EnvPassword)
	if password == "" {
		return nil
	}
	return []byte(password)
}
