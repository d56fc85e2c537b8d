package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mnemo/pkg/logging"
)

// DefaultStorageDir is the default credentials directory, relative to the
// user's home directory.
const DefaultStorageDir = ".config/mnemo/credentials"

// FileBackend stores all keys for one server in a single JSON file.
//
// Every Get reads the file so that writes made by other processes are
// visible immediately. Writes are serialized within the process and land
// atomically through a temp file and rename.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates the storage directory if needed and returns a
// backend for serverURL. An empty dir selects ~/.config/mnemo/credentials.
func NewFileBackend(dir, serverURL string) (*FileBackend, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	return &FileBackend{path: filepath.Join(dir, FileName(serverURL))}, nil
}

// FileName returns the credentials file name used for serverURL.
// Uses a SHA256 prefix to create filesystem-safe identifiers.
func FileName(serverURL string) string {
	hash := sha256.Sum256([]byte(serverURL))
	return hex.EncodeToString(hash[:16]) + ".json"
}

// Path returns the credentials file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Get implements Backend.
func (b *FileBackend) Get(key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := b.readLocked()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Backend.
func (b *FileBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := b.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return b.writeLocked(values)
}

// Delete implements Backend. The file is removed once it holds no keys.
func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := b.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)

	if len(values) == 0 {
		if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}
	return b.writeLocked(values)
}

// readLocked loads the file. A missing file is an empty store.
func (b *FileBackend) readLocked() (map[string]string, error) {
	// #nosec G304 -- path is derived from a hash, not user input
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", b.path, err)
	}
	return values, nil
}

func (b *FileBackend) writeLocked(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}

	logging.Debug("Credentials", "Wrote %d key(s) to %s", len(values), b.path)
	return nil
}
