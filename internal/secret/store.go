// Package secret keeps credentials such as storage DSNs out of the config
// file.
package secret

import "errors"

// ErrNotFound is returned by Get for a key that holds no secret.
var ErrNotFound = errors.New("secret not found")

// SecretStore holds credentials by key.
type SecretStore interface {
	Set(key string, value []byte) error
	// Get returns ErrNotFound for an unknown key.
	Get(key string) ([]byte, error)
	// Delete is idempotent.
	Delete(key string) error
}

// MapStore is an in-memory SecretStore.
type MapStore map[string][]byte

func (m MapStore) Set(key string, value []byte) error {
	m[key] = append([]byte(nil), value...)
	return nil
}

func (m MapStore) Get(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m MapStore) Delete(key string) error {
	delete(m, key)
	return nil
}
