package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/code100x/contestauth"
)

// ProfileStore is durable client storage for the signed-in user's profile,
// so a restarted client can show who was signed in before the silent
// refresh completes. Load reports false when nothing is stored.
type ProfileStore interface {
	Load() (contestauth.PublicUser, bool, error)
	Save(user contestauth.PublicUser) error
	Clear() error
}

// MemoryProfileStore keeps the profile for the life of the process.
type MemoryProfileStore struct {
	mu   sync.Mutex
	user *contestauth.PublicUser
}

func (s *MemoryProfileStore) Load() (contestauth.PublicUser, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return contestauth.PublicUser{}, false, nil
	}
	return *s.user, true, nil
}

func (s *MemoryProfileStore) Save(user contestauth.PublicUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	return nil
}

func (s *MemoryProfileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return nil
}

// FileProfileStore persists the profile as a JSON file readable only by the
// owner. Writes go through a temporary file and rename.
type FileProfileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileProfileStore(path string) *FileProfileStore {
	return &FileProfileStore{path: path}
}

func (s *FileProfileStore) Load() (contestauth.PublicUser, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return contestauth.PublicUser{}, false, nil
	}
	if err != nil {
		return contestauth.PublicUser{}, false, err
	}

	var user contestauth.PublicUser
	if err := json.Unmarshal(data, &user); err != nil {
		return contestauth.PublicUser{}, false, fmt.Errorf("decode profile %s: %w", s.path, err)
	}
	if user.ID == "" {
		return contestauth.PublicUser{}, false, nil
	}
	return user, true, nil
}

func (s *FileProfileStore) Save(user contestauth.PublicUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileProfileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
