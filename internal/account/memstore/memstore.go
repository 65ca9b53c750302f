// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-process account.UserStore.
//
// Records are copied on the way in and out, so callers never share mutable
// state with the store. Each call is serialized; sequences of calls are not.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// Store implements account.UserStore in memory.
type Store struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*account.User
	byEmail map[string]ulid.ULID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*account.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FindByEmail looks a user up by normalized email.
func (s *Store) FindByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, oops.With("email", email).Wrap(account.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// FindByVerificationToken looks a user up by verification token digest.
func (s *Store) FindByVerificationToken(_ context.Context, tokenHash string) (*account.User, error) {
	return s.findBy(func(u *account.User) bool {
		return u.Verification != nil && u.Verification.Hash == tokenHash
	})
}

// FindByResetToken looks a user up by reset token digest.
func (s *Store) FindByResetToken(_ context.Context, tokenHash string) (*account.User, error) {
	return s.findBy(func(u *account.User) bool {
		return u.Reset != nil && u.Reset.Hash == tokenHash
	})
}

// FindByID looks a user up by ID.
func (s *Store) FindByID(_ context.Context, id ulid.ULID) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, oops.With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return u.Clone(), nil
}

// List returns all users ordered by creation time.
func (s *Store) List(_ context.Context) ([]*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*account.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.Compare(users[j].ID) < 0
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Insert stores a new user.
func (s *Store) Insert(_ context.Context, user *account.User) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := account.NormalizeEmail(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return nil, oops.With("email", email).Wrap(account.ErrEmailTaken)
	}
	if _, exists := s.byID[user.ID]; exists {
		return nil, oops.With("id", user.ID.String()).Errorf("user id already exists")
	}

	stored := user.Clone()
	stored.Email = email
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return stored.Clone(), nil
}

// Save replaces the stored state of an existing user. Last write wins.
func (s *Store) Save(_ context.Context, user *account.User) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[user.ID]
	if !ok {
		return nil, oops.With("id", user.ID.String()).Wrap(account.ErrNotFound)
	}

	stored := user.Clone()
	stored.Email = account.NormalizeEmail(stored.Email)
	if stored.Email != current.Email {
		if _, taken := s.byEmail[stored.Email]; taken {
			return nil, oops.With("email", stored.Email).Wrap(account.ErrEmailTaken)
		}
		delete(s.byEmail, current.Email)
		s.byEmail[stored.Email] = stored.ID
	}
	s.byID[stored.ID] = stored
	return stored.Clone(), nil
}

// DeleteByID removes a user together with its settings.
func (s *Store) DeleteByID(_ context.Context, id ulid.ULID) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, oops.With("id", id.String()).Wrap(account.ErrNotFound)
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	return u, nil
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) findBy(match func(*account.User) bool) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.byID {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, account.ErrNotFound
}
