// Package accounttest provides an in-memory UserStore for exercising the
// lifecycle service and its HTTP surface without a database.
package accounttest

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ae-platform/account-management/internal/domain"
)

// Store is an in-memory account.UserStore. It enforces the same
// case-insensitive login/email uniqueness a real store would, and returns
// defensive copies so callers only mutate persisted state through Update.
type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{users: make(map[uuid.UUID]*domain.User)}
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Login, login) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) FindByActivationKey(ctx context.Context, key string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ActivationKey != nil && *u.ActivationKey == key {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) FindByResetKey(ctx context.Context, key string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetKey != nil && *u.ResetKey == key {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Login, user.Login) {
			return domain.ErrLoginAlreadyUsed
		}
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailAlreadyUsed
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	for _, u := range s.users {
		if u.ID != user.ID && strings.EqualFold(u.Email, user.Email) {
			return domain.ErrEmailAlreadyUsed
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// Get returns the persisted state of a user by ID, for test assertions.
func (s *Store) Get(id uuid.UUID) (*domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return copyUser(u), true
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.ActivationKey != nil {
		k := *u.ActivationKey
		c.ActivationKey = &k
	}
	if u.ResetKey != nil {
		k := *u.ResetKey
		c.ResetKey = &k
	}
	if u.ResetDate != nil {
		d := *u.ResetDate
		c.ResetDate = &d
	}
	if u.Authorities != nil {
		c.Authorities = append([]string(nil), u.Authorities...)
	}
	return &c
}
