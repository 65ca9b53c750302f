// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/pkg/errutil"
)

// Acknowledgement messages returned to callers.
const (
	MsgSignup        = "User created. Please check your email to verify account."
	MsgVerified      = "Email successfully verified. You can now log in."
	MsgResetSent     = "Password reset email sent."
	MsgPasswordReset = "Password successfully reset."
)

// Operation names reported to Metrics.
const (
	operationSignup   = "signup"
	operationVerify   = "verify_email"
	operationLogin    = "login"
	operationForgot   = "forgot_password"
	operationReset    = "reset_password"
	operationAuth     = "authenticate"
	operationUpdate   = "update_user"
	operationDelete   = "delete_user"
	operationGet      = "get_user"
	operationList     = "list_users"
	operationRehash   = "rehash_password"
	operationNotified = "notify"
)

const (
	outcomeSuccess   = "success"
	notifyVerifyKind = "verification"
	notifyResetKind  = "reset"
)

// dummyPassword is hashed once per Service with the configured hasher.
// Login verifies against that hash when the email is unknown.
//
//nolint:gosec // G101: not a credential; an unknown email never logs in.
const dummyPassword = "accountd-dummy-password"

// Metrics receives operation outcomes. observability.Metrics implements it.
type Metrics interface {
	RecordOperation(operation, outcome string)
	RecordNotificationFailure(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string)   {}
func (noopMetrics) RecordNotificationFailure(string) {}

// Service runs the account credential lifecycle: signup, email verification,
// login, forgot/reset password, and administrative reads and writes.
//
// Every operation is a plain read-modify-write against the UserStore. Nothing
// is retried and concurrent writers are not coordinated.
type Service struct {
	users           UserStore
	notifier        Notifier
	hasher          PasswordHasher
	tokens          TokenGenerator
	sessions        SessionIssuer
	logger          *slog.Logger
	metrics         Metrics
	now             func() time.Time
	verificationTTL time.Duration
	resetTTL        time.Duration
	allowedDomains  []glob.Glob
	dummyHash       string
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) error {
		if m == nil {
			return oops.Errorf("metrics cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		s.now = now
		return nil
	}
}

// WithTokenTTLs overrides the verification and reset token lifetimes.
// Zero values keep the defaults.
func WithTokenTTLs(verification, reset time.Duration) Option {
	return func(s *Service) error {
		if verification < 0 || reset < 0 {
			return oops.Errorf("token TTLs cannot be negative")
		}
		if verification > 0 {
			s.verificationTTL = verification
		}
		if reset > 0 {
			s.resetTTL = reset
		}
		return nil
	}
}

// WithAllowedEmailDomains restricts signup to emails whose domain matches
// one of the glob patterns (e.g. "example.com", "*.example.org").
// No patterns allows every domain.
func WithAllowedEmailDomains(patterns ...string) Option {
	return func(s *Service) error {
		for _, p := range patterns {
			g, err := glob.Compile(strings.ToLower(p), '.')
			if err != nil {
				return oops.With("pattern", p).Wrap(err)
			}
			s.allowedDomains = append(s.allowedDomains, g)
		}
		return nil
	}
}

// NewService creates a Service from its collaborators.
func NewService(
	users UserStore,
	notifier Notifier,
	hasher PasswordHasher,
	tokens TokenGenerator,
	sessions SessionIssuer,
	opts ...Option,
) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Errorf("user store is required")
	case notifier == nil:
		return nil, oops.Errorf("notifier is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Errorf("token generator is required")
	case sessions == nil:
		return nil, oops.Errorf("session issuer is required")
	}

	s := &Service{
		users:           users,
		notifier:        notifier,
		hasher:          hasher,
		tokens:          tokens,
		sessions:        sessions,
		logger:          slog.Default(),
		metrics:         noopMetrics{},
		now:             time.Now,
		verificationTTL: VerificationTokenTTL,
		resetTTL:        ResetTokenTTL,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, oops.With("operation", "apply option").Wrap(err)
		}
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.With("operation", "hash dummy password").Wrap(err)
	}
	s.dummyHash = dummy
	return s, nil
}

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Settings        *Settings
}

// SignupResult acknowledges a created account.
// NotificationSent is false when the account exists but the verification
// email could not be handed to the notifier.
type SignupResult struct {
	Message          string
	User             PublicUser
	NotificationSent bool
}

// Signup creates an unverified account and sends its verification token.
// The user is persisted before the notifier is called; a notifier failure
// does not undo the signup.
func (s *Service) Signup(ctx context.Context, in SignupInput) (result *SignupResult, err error) {
	defer func() { s.record(operationSignup, err) }()

	email := NormalizeEmail(in.Email)
	if err := s.validateSignup(in, email); err != nil {
		return nil, err
	}

	_, err = s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, duplicateEmail(email)
	case !errors.Is(err, ErrNotFound):
		return nil, storageError("find user by email", err)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return nil, internalError("generate verification token", err)
	}

	now := s.now()
	user := &User{
		ID:           ulid.Make(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		IsVerified:   false,
		Active:       true,
		Verification: NewOneTimeToken(token, now.Add(s.verificationTTL)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Settings != nil {
		settings := *in.Settings
		user.Settings = &settings
	}

	stored, err := s.users.Insert(ctx, user)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, duplicateEmail(email)
		}
		return nil, storageError("insert user", err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", stored.ID.String(),
		"email", stored.Email,
	)

	sent := s.notify(ctx, notifyVerifyKind, stored, func() error {
		return s.notifier.SendVerification(ctx, stored.Email, token)
	})

	return &SignupResult{
		Message:          MsgSignup,
		User:             stored.Public(),
		NotificationSent: sent,
	}, nil
}

// VerifyEmail redeems a verification token. Tokens are single use: a
// redeemed token is cleared and later attempts fail with CodeInvalidToken.
func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { s.record(operationVerify, err) }()

	if token == "" {
		return invalidToken("verification token cannot be empty")
	}

	user, err := s.users.FindByVerificationToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken("invalid or expired token")
		}
		return storageError("find user by verification token", err)
	}
	if user.Verification == nil {
		return invalidToken("invalid or expired token")
	}

	now := s.now()
	if user.Verification.IsExpiredAt(now) {
		return oops.Code(CodeTokenExpired).
			With("user_id", user.ID.String()).
			With("expired_at", user.Verification.ExpiresAt).
			Errorf("token has expired")
	}

	user.IsVerified = true
	user.Verification = nil
	user.UpdatedAt = now

	if _, err := s.users.Save(ctx, user); err != nil {
		return storageError("save verified user", err)
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return nil
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Claims    Claims
}

// Login checks credentials and issues a session token.
//
// An unknown email and a wrong password both fail with
// CodeInvalidCredentials. A correct password on an unverified account fails
// with CodeEmailNotVerified.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { s.record(operationLogin, err) }()

	email = NormalizeEmail(email)

	user, lookupErr := s.users.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, storageError("find user by email", lookupErr)
	}

	targetHash := s.dummyHash
	if lookupErr == nil {
		targetHash = user.PasswordHash
	}

	// Always verify so an unknown email costs the same as a wrong password.
	valid := s.hasher.Verify(password, targetHash)
	if lookupErr != nil || !valid {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
	}

	if !user.IsVerified {
		return nil, oops.Code(CodeEmailNotVerified).
			With("user_id", user.ID.String()).
			Errorf("email not verified, please check your inbox")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	claims := ClaimsFor(user)
	token, expiresAt, err := s.sessions.Issue(claims)
	if err != nil {
		return nil, internalError("issue session", err)
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Claims:    claims,
	}, nil
}

// hashPassword hashes a new password. A password the scheme cannot take is
// a validation failure, not an internal one.
func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	switch {
	case err == nil:
		return hash, nil
	case errors.Is(err, ErrPasswordTooLong):
		return "", validationError("password", "password must be at most %d bytes long", BcryptMaxPasswordLength)
	default:
		return "", internalError("hash password", err)
	}
}

// upgradeHash replaces a hash produced by another scheme. Login succeeds
// whether or not the upgrade is persisted.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash failed", internalError(operationRehash, err))
		return
	}
	user.PasswordHash = newHash
	user.UpdatedAt = s.now()
	if _, err := s.users.Save(ctx, user); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash not persisted", storageError(operationRehash, err))
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// ForgotPasswordResult acknowledges a reset request.
type ForgotPasswordResult struct {
	Message          string
	NotificationSent bool
}

// ForgotPassword issues a reset token and sends it to the user. A new
// request overwrites any earlier reset token for the same user.
//
// Unlike Login, an unknown email is reported as CodeUserNotFound.
func (s *Service) ForgotPassword(ctx context.Context, email string) (result *ForgotPasswordResult, err error) {
	defer func() { s.record(operationForgot, err) }()

	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound("email", email)
		}
		return nil, storageError("find user by email", err)
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return nil, internalError("generate reset token", err)
	}

	now := s.now()
	user.Reset = NewOneTimeToken(token, now.Add(s.resetTTL))
	user.UpdatedAt = now

	stored, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, storageError("save reset token", err)
	}

	s.logger.InfoContext(ctx, "password reset requested", "user_id", stored.ID.String())

	sent := s.notify(ctx, notifyResetKind, stored, func() error {
		return s.notifier.SendReset(ctx, stored.Email, token)
	})

	return &ForgotPasswordResult{Message: MsgResetSent, NotificationSent: sent}, nil
}

// ResetPassword redeems a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.record(operationReset, err) }()

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return invalidToken("reset token cannot be empty")
	}

	user, err := s.users.FindByResetToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidToken("invalid or expired token")
		}
		return storageError("find user by reset token", err)
	}
	if user.Reset == nil {
		return invalidToken("invalid or expired token")
	}

	now := s.now()
	if user.Reset.IsExpiredAt(now) {
		return oops.Code(CodeTokenExpired).
			With("user_id", user.ID.String()).
			With("expired_at", user.Reset.ExpiresAt).
			Errorf("token has expired")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.PasswordChangedAt = &now
	user.Reset = nil
	user.UpdatedAt = now

	if _, err := s.users.Save(ctx, user); err != nil {
		return storageError("save reset password", err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return nil
}

// Authenticate validates a session token and returns its claims.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (claims *Claims, err error) {
	defer func() { s.record(operationAuth, err) }()

	claims, err = s.sessions.Validate(sessionToken)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, oops.Code(CodeTokenExpired).Errorf("session has expired")
		}
		s.logger.DebugContext(ctx, "session rejected", "error", err)
		return nil, invalidToken("invalid session token")
	}
	return claims, nil
}

// GetUser returns the public view of one user.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (view *PublicUser, err error) {
	defer func() { s.record(operationGet, err) }()

	user, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}

// ListUsers returns the public views of all users.
func (s *Service) ListUsers(ctx context.Context) (views []PublicUser, err error) {
	defer func() { s.record(operationList, err) }()

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	views = make([]PublicUser, 0, len(users))
	for _, u := range users {
		views = append(views, u.Public())
	}
	return views, nil
}

// UpdateInput carries the optional fields of a profile update.
// Nil fields are left unchanged.
type UpdateInput struct {
	Name     *string
	Password *string
	Settings *Settings
}

// UpdateUser applies a profile update. A new password is rehashed.
func (s *Service) UpdateUser(ctx context.Context, id ulid.ULID, in UpdateInput) (view *PublicUser, err error) {
	defer func() { s.record(operationUpdate, err) }()

	if in.Name != nil {
		if err := ValidateName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if err := ValidatePassword(*in.Password); err != nil {
			return nil, err
		}
	}

	user, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		user.PasswordChangedAt = &now
	}
	if in.Settings != nil {
		settings := *in.Settings
		user.Settings = &settings
	}
	user.UpdatedAt = now

	stored, err := s.users.Save(ctx, user)
	if err != nil {
		return nil, storageError("save user", err)
	}
	pub := stored.Public()
	return &pub, nil
}

// DeleteUser removes a user and the settings it owns.
func (s *Service) DeleteUser(ctx context.Context, id ulid.ULID) (view *PublicUser, err error) {
	defer func() { s.record(operationDelete, err) }()

	deleted, err := s.users.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound("id", id.String())
		}
		return nil, storageError("delete user", err)
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String())
	pub := deleted.Public()
	return &pub, nil
}

func (s *Service) findByID(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound("id", id.String())
		}
		return nil, storageError("find user by id", err)
	}
	return user, nil
}

func (s *Service) validateSignup(in SignupInput, email string) error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	if in.Password != in.PasswordConfirm {
		return validationError("password_confirm", "passwords do not match")
	}
	if !s.domainAllowed(email) {
		return validationError("email", "email domain is not allowed")
	}
	return nil
}

func (s *Service) domainAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, g := range s.allowedDomains {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

// notify runs send and reports whether it succeeded. Failures are logged
// and counted; they never propagate.
func (s *Service) notify(ctx context.Context, kind string, user *User, send func() error) bool {
	if err := send(); err != nil {
		s.metrics.RecordNotificationFailure(kind)
		errutil.LogErrorContext(ctx, s.logger, "notification failed",
			oops.Code(CodeNotificationFailed).
				With("operation", operationNotified).
				With("kind", kind).
				With("user_id", user.ID.String()).
				Wrap(err))
		return false
	}
	s.logger.DebugContext(ctx, "notification sent", "kind", kind, "user_id", user.ID.String())
	return true
}

func (s *Service) record(operation string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = Code(err)
		if outcome == "" {
			outcome = CodeInternal
		}
	}
	s.metrics.RecordOperation(operation, outcome)
}

func duplicateEmail(email string) error {
	return oops.Code(CodeDuplicateEmail).
		With("email", email).
		Errorf("email already exists")
}

func invalidToken(msg string) error {
	return oops.Code(CodeInvalidToken).Errorf("%s", msg)
}

func userNotFound(key, value string) error {
	return oops.Code(CodeUserNotFound).
		With(key, value).
		Errorf("user not found")
}
