// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// UserStore is durable storage for users and their settings.
//
// Find methods return ErrNotFound (possibly wrapped) when nothing matches.
// Token lookups take the stored digest (see HashToken) and match it exactly.
// Implementations do not coordinate concurrent writers: Save is last-write-wins.
type UserStore interface {
	// FindByEmail looks a user up by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByVerificationToken looks a user up by verification token digest.
	FindByVerificationToken(ctx context.Context, tokenHash string) (*User, error)

	// FindByResetToken looks a user up by reset token digest.
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)

	// FindByID looks a user up by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]*User, error)

	// Insert stores a new user and its settings.
	// Returns ErrEmailTaken if the email is already stored.
	Insert(ctx context.Context, user *User) (*User, error)

	// Save replaces the stored state of an existing user.
	Save(ctx context.Context, user *User) (*User, error)

	// DeleteByID removes a user and its settings, returning the removed user.
	DeleteByID(ctx context.Context, id ulid.ULID) (*User, error)
}
