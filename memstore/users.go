// Package memstore is an in-process [contestauth.UserStore] for development
// servers and tests. Contents are lost on restart.
package memstore

import (
	"context"
	"sync"

	"github.com/code100x/contestauth"
)

// Users keeps accounts in two maps guarded by one lock.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]contestauth.User
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]contestauth.User),
		byEmail: make(map[string]string),
	}
}

func (s *Users) GetUserByEmail(_ context.Context, email string) (contestauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return contestauth.User{}, contestauth.ErrStoreUserNotFound
	}
	return s.byID[id], nil
}

func (s *Users) GetUserByID(_ context.Context, userID string) (contestauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return contestauth.User{}, contestauth.ErrStoreUserNotFound
	}
	return u, nil
}

// CreateUser inserts user. The email check and insert happen under one lock
// so two concurrent signups for the same address cannot both succeed.
func (s *Users) CreateUser(_ context.Context, user contestauth.User) (contestauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return contestauth.User{}, contestauth.ErrStoreDuplicateEmail
	}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return user, nil
}

func (s *Users) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return contestauth.ErrStoreUserNotFound
	}
	u.PasswordHash = passwordHash
	s.byID[userID] = u
	return nil
}

// Len reports the number of stored accounts.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var (
	_ contestauth.UserStore           = (*Users)(nil)
	_ contestauth.PasswordHashUpdater = (*Users)(nil)
)
