// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account manages user accounts and their credential lifecycle.
//
// # Lifecycle
//
// A user signs up unverified and receives a one-time verification token.
// Redeeming it marks the email verified. Only verified users can log in;
// a successful login issues a signed session token. A forgotten password is
// replaced by redeeming a one-time reset token.
//
// One-time tokens are 64 hex characters. Only their SHA-256 digest is stored
// (see HashToken), and each token is cleared when redeemed.
//
// # Errors
//
// Every error returned by Service carries one of the Code* values; use Code
// to read it. Collaborators (UserStore, PasswordHasher, Notifier) return
// plain or uncoded oops errors and the Service assigns the code.
//
// # Concurrency
//
// Service does no locking. Operations are read-modify-write against the
// UserStore and the last Save wins.
package account
