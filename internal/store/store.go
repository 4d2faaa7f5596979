package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/followmail/internal/threads"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a logged-in Google account.
type User struct {
	GoogleID     string
	Email        string
	RefreshToken string

	// FollowedFrom and FollowedTo keep insertion order.
	FollowedFrom []string
	FollowedTo   []string
}

// Followed returns the list for role.
func (u *User) Followed(role threads.Role) []string {
	switch role {
	case threads.RoleFrom:
		return u.FollowedFrom
	case threads.RoleTo:
		return u.FollowedTo
	}
	return nil
}

// Store persists users and their follow lists.
type Store interface {
	// UpsertUser creates or updates a user. An empty refreshToken keeps the
	// stored one, since Google only sends it on consent.
	UpsertUser(ctx context.Context, googleID, email, refreshToken string) (*User, error)

	// GetUser returns the user with both follow lists loaded.
	GetUser(ctx context.Context, googleID string) (*User, error)

	// AddFollowed appends address to the role's list unless it is already
	// there. It reports whether the list changed.
	AddFollowed(ctx context.Context, googleID string, role threads.Role, address string) (bool, error)

	// SetFollowed replaces both lists. Duplicates keep their first position.
	SetFollowed(ctx context.Context, googleID string, from, to []string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

func validateRole(role threads.Role) error {
	if role != threads.RoleFrom && role != threads.RoleTo {
		return fmt.Errorf("invalid follow role %q", role)
	}
	return nil
}

// cleanAddresses trims entries, drops empty ones and removes exact duplicates
// keeping the first occurrence.
func cleanAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
