package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// keychainService groups bento's entries in the login keychain.
const keychainService = "bento"

// exitItemNotFound is what `security` exits with for a missing item.
const exitItemNotFound = 44

// KeychainStore keeps secrets in the macOS login keychain through the
// `security` command.
type KeychainStore struct {
	// Service overrides keychainService, mainly for tests.
	Service string
}

// NewKeychainStore returns a store using the default service name.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{Service: keychainService}
}

func (k *KeychainStore) security(verb, key string, extra ...string) *exec.Cmd {
	args := append([]string{verb, "-a", key, "-s", k.Service}, extra...)
	return exec.Command("security", args...)
}

// Set stores value under key, replacing any previous value.
func (k *KeychainStore) Set(key string, value []byte) error {
	out, err := k.security("add-generic-password", key, "-w", string(value), "-U").CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain set %s: %s: %w", key, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get returns the value stored under key.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.security("find-generic-password", key, "-w").Output()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr) && exitErr.ExitCode() == exitItemNotFound:
		return nil, fmt.Errorf("keychain %s: %w", key, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes key. A missing entry is not an error.
func (k *KeychainStore) Delete(key string) error {
	err := k.security("delete-generic-password", key).Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitItemNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}
