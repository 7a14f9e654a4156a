// Package credentials keeps the bearer token the transport injects into requests.
package credentials

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// User is the identity returned by the backend alongside a token.
type User struct {
	ID       string `yaml:"id" json:"id"`
	Username string `yaml:"username" json:"username"`
}

// Store holds one bearer token. Clear is called by the transport on a 401.
type Store interface {
	Token() string
	User() *User
	Set(token string, user *User) error
	Clear() error
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
	user  *User
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryStore) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *MemoryStore) Set(token string, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.user = user
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Set("", nil)
}

type fileState struct {
	AccessToken string `yaml:"access_token"`
	User        *User  `yaml:"user,omitempty"`
}

// FileStore persists the token as YAML, readable only by the current user.
type FileStore struct {
	path string

	mu    sync.RWMutex
	state fileState
}

var _ Store = (*FileStore)(nil)

// DefaultPath returns $XDG_CONFIG_HOME/streamchat/credentials.yaml (or the platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(dir, "streamchat", "credentials.yaml"), nil
}

// NewFileStore loads path if it exists. A missing file means "logged out".
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credentials: empty path")
	}
	fs := &FileStore{path: path}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, errors.Wrapf(err, "credentials: read %s", path)
	}
	if err := yaml.Unmarshal(b, &fs.state); err != nil {
		return nil, errors.Wrapf(err, "credentials: parse %s", path)
	}
	return fs, nil
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Token() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.AccessToken
}

func (f *FileStore) User() *User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state.User == nil {
		return nil
	}
	u := *f.state.User
	return &u
}

func (f *FileStore) Set(token string, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = fileState{AccessToken: token, User: user}
	return f.writeLocked()
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = fileState{}
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "credentials: remove %s", f.path)
	}
	log.Debug().Str("component", "credentials").Str("path", f.path).Msg("credentials cleared")
	return nil
}

func (f *FileStore) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "credentials: create dir")
	}
	b, err := yaml.Marshal(&f.state)
	if err != nil {
		return errors.Wrap(err, "credentials: encode")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, "credentials: write")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "credentials: replace")
}
