// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// SessionTTL is how long an issued session token stays valid.
const SessionTTL = time.Hour

// minSecretLength is the shortest accepted HS256 signing key.
const minSecretLength = 32

// Session validation failures.
var (
	ErrSessionInvalid = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session token expired")
)

// Claims are the identity fields carried by a session token.
// There is deliberately no password or token field.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string    `json:"uid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	Active     bool      `json:"active"`
	Settings   *Settings `json:"settings,omitempty"`
}

// ClaimsFor builds session claims from the public view of u.
func ClaimsFor(u *User) Claims {
	pub := u.Public()
	return Claims{
		UserID:     pub.ID,
		Name:       pub.Name,
		Email:      pub.Email,
		IsVerified: pub.IsVerified,
		Active:     pub.Active,
		Settings:   pub.Settings,
	}
}

// SessionIssuer mints and validates signed session tokens.
type SessionIssuer interface {
	// Issue signs claims and returns the token and its expiry.
	Issue(claims Claims) (string, time.Time, error)

	// Validate verifies signature and expiry and returns the claims.
	// Returns ErrSessionExpired or ErrSessionInvalid (wrapped) on failure.
	Validate(token string) (*Claims, error)
}

// JWTIssuer implements SessionIssuer with HS256 JWTs.
type JWTIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTIssuer creates a JWTIssuer. A zero ttl uses SessionTTL.
func NewJWTIssuer(secret []byte, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, oops.
			With("min_length", minSecretLength).
			Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &JWTIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and validating.
func (j *JWTIssuer) WithClock(now func() time.Time) *JWTIssuer {
	j.now = now
	return j
}

// Issue signs the claims with a fresh issued-at and expiry.
func (j *JWTIssuer) Issue(claims Claims) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, oops.With("operation", "sign session token").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a session token.
func (j *JWTIssuer) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrSessionInvalid
	}

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return j.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Wrap(errors.Join(ErrSessionExpired, err))
		}
		return nil, oops.Wrap(errors.Join(ErrSessionInvalid, err))
	}
	if !token.Valid {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}
