// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account Service over HTTP.
//
// Handlers decode and shape-check requests, call one Service operation and
// map its error code to a status. Business rules live in the Service.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/accountd/internal/account"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Authenticator validates session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*account.Claims, error)
}

// Accounts is the part of *account.Service the handlers call.
type Accounts interface {
	Authenticator
	Signup(ctx context.Context, in account.SignupInput) (*account.SignupResult, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*account.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) (*account.ForgotPasswordResult, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetUser(ctx context.Context, id ulid.ULID) (*account.PublicUser, error)
	ListUsers(ctx context.Context) ([]account.PublicUser, error)
	UpdateUser(ctx context.Context, id ulid.ULID, in account.UpdateInput) (*account.PublicUser, error)
	DeleteUser(ctx context.Context, id ulid.ULID) (*account.PublicUser, error)
}

var _ Accounts = (*account.Service)(nil)

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Accounts Accounts
	Logger   *slog.Logger
	Recorder RequestRecorder
}

// NewRouter builds the HTTP handler for the account API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{accounts: cfg.Accounts, logger: logger, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(accessLog(logger, cfg.Recorder))
	r.Use(chimid.Recoverer)
	r.Use(chimid.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, codeNotFound, "not found")
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
		r.Get("/verify-email", h.verifyEmail)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.With(RequireSession(cfg.Accounts)).Get("/me", h.me)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(RequireSession(cfg.Accounts))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Patch("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})

	return r
}
