package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/teemow/followmail/internal/threads"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func copyUser(u *User) *User {
	return &User{
		GoogleID:     u.GoogleID,
		Email:        u.Email,
		RefreshToken: u.RefreshToken,
		FollowedFrom: slices.Clone(u.FollowedFrom),
		FollowedTo:   slices.Clone(u.FollowedTo),
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, googleID, email, refreshToken string) (*User, error) {
	if googleID == "" {
		return nil, fmt.Errorf("google ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[googleID]
	if !ok {
		u = &User{GoogleID: googleID, FollowedFrom: []string{}, FollowedTo: []string{}}
		s.users[googleID] = u
	}
	u.Email = email
	if refreshToken != "" {
		u.RefreshToken = refreshToken
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUser(_ context.Context, googleID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[googleID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryStore) AddFollowed(_ context.Context, googleID string, role threads.Role, address string) (bool, error) {
	if err := validateRole(role); err != nil {
		return false, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return false, fmt.Errorf("address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[googleID]
	if !ok {
		return false, ErrNotFound
	}

	list := &u.FollowedFrom
	if role == threads.RoleTo {
		list = &u.FollowedTo
	}
	if slices.Contains(*list, address) {
		return false, nil
	}
	*list = append(*list, address)
	return true, nil
}

func (s *MemoryStore) SetFollowed(_ context.Context, googleID string, from, to []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[googleID]
	if !ok {
		return ErrNotFound
	}
	u.FollowedFrom = cleanAddresses(from)
	u.FollowedTo = cleanAddresses(to)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
