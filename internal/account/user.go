// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	// nameRegex requires a full name: two or more alphabetic words.
	nameRegex  = regexp.MustCompile(`^[A-Za-z]+(?:\s+[A-Za-z]+)+$`)
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// User is the stored identity and credential state of an account.
type User struct {
	ID                ulid.ULID
	Name              string
	Email             string
	PasswordHash      string `json:"-"`
	IsVerified        bool
	Active            bool
	Verification      *OneTimeToken `json:"-"`
	Reset             *OneTimeToken `json:"-"`
	Settings          *Settings
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Settings holds per-user preferences owned by exactly one User.
type Settings struct {
	ReceiveNotifications bool `json:"receive_notifications"`
}

// PublicUser is the externally visible projection of a User.
type PublicUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	Active     bool      `json:"active"`
	Settings   *Settings `json:"settings,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Public projects u to its public view. Credential material is never included.
func (u *User) Public() PublicUser {
	var settings *Settings
	if u.Settings != nil {
		s := *u.Settings
		settings = &s
	}
	return PublicUser{
		ID:         u.ID.String(),
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		Active:     u.Active,
		Settings:   settings,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	if u.Verification != nil {
		v := *u.Verification
		c.Verification = &v
	}
	if u.Reset != nil {
		r := *u.Reset
		c.Reset = &r
	}
	if u.Settings != nil {
		s := *u.Settings
		c.Settings = &s
	}
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	return &c
}

// NormalizeEmail trims and lowercases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName checks that name is a full name of alphabetic words.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationError("name", "name cannot be empty")
	}
	if !nameRegex.MatchString(strings.TrimSpace(name)) {
		return validationError("name", "please enter your full name (first and last), using alphabets only")
	}
	return nil
}

// ValidateEmail checks the syntax of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return validationError("email", "email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return validationError("email", "please provide a valid email address")
	}
	return nil
}

// ValidatePassword checks the password length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return validationError("password", "password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}
