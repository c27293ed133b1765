package sessionstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/dyosync/internal/session"
)

const (
	defaultPath = "./data/session.json"
	envPath     = "DYOSYNC_SESSION_FILE"
)

// FileStore persists the session as a JSON file so restarts keep the credential
// and preferences.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// ResolvePath picks the session file: explicit path, then env, then default.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if fromEnv := os.Getenv(envPath); fromEnv != "" {
		return fromEnv
	}
	return defaultPath
}

// NewFileStore creates a file store, creating the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	path = ResolvePath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create session dir")
	}
	return &FileStore{path: path}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the session from disk.
func (s *FileStore) Load() (*session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read session file")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state session.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode session file")
	}

	return &state, nil
}

// Save writes the session to disk atomically via temp file.
func (s *FileStore) Save(state session.State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	// the token is a credential
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write session temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist session")
	}

	return nil
}
