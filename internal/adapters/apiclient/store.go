package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

// SessionStore persists the operator's session between invocations.
type SessionStore interface {
	Load() (identity.Session, bool, error)
	Save(identity.Session) error
	Clear() error
}

type MemorySessionStore struct {
	mu   sync.Mutex
	sess *identity.Session
}

func NewMemorySessionStore() *MemorySessionStore { return &MemorySessionStore{} }

func (m *MemorySessionStore) Load() (identity.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return identity.Session{}, false, nil
	}
	return *m.sess, true, nil
}

func (m *MemorySessionStore) Save(s identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &s
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}

// FileSessionStore keeps the session as JSON in a file readable only by its owner.
// Sessions past their expiry load as absent.
type FileSessionStore struct {
	Path string
	Now  func() time.Time
}

type sessionFile struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{Path: path, Now: time.Now}
}

func (f *FileSessionStore) Load() (identity.Session, bool, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return identity.Session{}, false, nil
	}
	if err != nil {
		return identity.Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return identity.Session{}, false, fmt.Errorf("decode session %s: %w", f.Path, err)
	}
	if sf.AccessToken == "" {
		return identity.Session{}, false, nil
	}
	if !sf.ExpiresAt.IsZero() && !f.now().Before(sf.ExpiresAt) {
		return identity.Session{}, false, nil
	}
	return identity.Session{
		AccessToken: sf.AccessToken,
		ExpiresAt:   sf.ExpiresAt,
		User:        identity.User{ID: sf.UserID, Email: sf.Email},
	}, true, nil
}

func (f *FileSessionStore) Save(s identity.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.MarshalIndent(sessionFile{
		AccessToken: s.AccessToken,
		ExpiresAt:   s.ExpiresAt,
		UserID:      s.User.ID,
		Email:       s.User.Email,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f *FileSessionStore) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (f *FileSessionStore) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
