// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// One-time token configuration.
const (
	TokenBytes           = 32        // 32 bytes = 64 hex chars
	VerificationTokenTTL = time.Hour // email verification link lifetime
	ResetTokenTTL        = time.Hour // password reset link lifetime
)

// TokenGenerator issues opaque random tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator reads TokenBytes from crypto/rand and hex-encodes them.
type RandomTokenGenerator struct{}

// NewRandomTokenGenerator creates a new RandomTokenGenerator.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{}
}

// Generate returns a 64-character hex token.
func (g *RandomTokenGenerator) Generate() (string, error) {
	tokenBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", oops.
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// OneTimeToken is a stored single-use token. Only the digest of the
// plaintext is kept; the plaintext goes to the user out of band.
type OneTimeToken struct {
	Hash      string
	ExpiresAt time.Time
}

// NewOneTimeToken digests token and sets its expiry.
func NewOneTimeToken(token string, expiresAt time.Time) *OneTimeToken {
	return &OneTimeToken{Hash: HashToken(token), ExpiresAt: expiresAt}
}

// IsExpiredAt reports whether the token is past its expiry at now.
func (t *OneTimeToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// HashToken computes the SHA-256 hex digest used to store and look up tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
