package credentials

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Backend.Get for keys that have no value.
var ErrNotFound = errors.New("credential not found")

// Persisted keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyOAuthClient  = "oauth_client"
	KeyPKCEVerifier = "pkce_verifier"
	KeyOAuthState   = "oauth_state"
	KeyWorkspaceID  = "workspace_id"
)

// Backend is a flat string key/value store.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryBackend is an in-process Backend. The zero value is ready to use.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

// Get implements Backend.
func (b *MemoryBackend) Get(key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = make(map[string]string)
	}
	b.values[key] = value
	return nil
}

// Delete implements Backend. Deleting a missing key is not an error.
func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// Keys returns the keys currently set, for assertions in tests.
func (b *MemoryBackend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	return keys
}
