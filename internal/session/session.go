// Package session holds the credential and display preferences shared by every view.
// A single Session is created at startup and injected where needed; it is the only
// component that touches the underlying storage.
package session

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the persisted form of a session.
type State struct {
	Token       string            `json:"token,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Storage persists session state between process runs.
// Load returns (nil, nil) when nothing was stored yet.
type Storage interface {
	Load() (*State, error)
	Save(state State) error
}

// Session is safe for concurrent use. Writes are last-write-wins.
type Session struct {
	mu      sync.RWMutex
	state   State
	storage Storage
	logger  *zap.Logger
}

// Open restores the session from storage.
func Open(storage Storage, logger *zap.Logger) (*Session, error) {
	if storage == nil {
		return nil, errors.New("session storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stored, err := storage.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}

	s := &Session{storage: storage, logger: logger}
	if stored != nil {
		s.state = *stored
	}
	if s.state.Preferences == nil {
		s.state.Preferences = make(map[string]string)
	}
	return s, nil
}

// Token returns the bearer token, empty when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// LoggedIn reports whether a token is present.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// SetToken stores a new bearer token.
func (s *Session) SetToken(token string) error {
	return s.update(func(st *State) { st.Token = token })
}

// ClearToken drops the credential, e.g. after the server reported it expired.
func (s *Session) ClearToken() error {
	return s.update(func(st *State) { st.Token = "" })
}

// Preference returns a stored display preference.
func (s *Session) Preference(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.Preferences[key]
	return v, ok
}

// SetPreference stores a display preference.
func (s *Session) SetPreference(key, value string) error {
	return s.update(func(st *State) { st.Preferences[key] = value })
}

func (s *Session) update(fn func(st *State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)
	snapshot := State{Token: s.state.Token, Preferences: make(map[string]string, len(s.state.Preferences))}
	for k, v := range s.state.Preferences {
		snapshot.Preferences[k] = v
	}

	if err := s.storage.Save(snapshot); err != nil {
		s.logger.Error("failed to persist session", zap.Error(err))
		return errors.Wrap(err, "persist session")
	}
	return nil
}

// MemoryStorage keeps the session in process memory only.
type MemoryStorage struct {
	mu    sync.Mutex
	state *State
	saves int
}

// NewMemoryStorage creates storage optionally seeded with state.
func NewMemoryStorage(initial *State) *MemoryStorage {
	return &MemoryStorage{state: initial}
}

func (m *MemoryStorage) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

func (m *MemoryStorage) Save(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &state
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
