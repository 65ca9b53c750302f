// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

// Acknowledgements for the administrative routes.
const (
	msgUserUpdated = "User Updated Successfully"
	msgUserDeleted = "User Deleted Successfully"
)

// msgInvalidCredentials is the single login failure message, so a caller
// cannot tell an unknown email from a wrong password.
const msgInvalidCredentials = "invalid credentials"

type handler struct {
	accounts Accounts
	logger   *slog.Logger
	validate *validator.Validate
}

type settingsRequest struct {
	ReceiveNotifications *bool `json:"receive_notifications"`
}

func (s *settingsRequest) toSettings() *account.Settings {
	if s == nil {
		return nil
	}
	out := &account.Settings{}
	if s.ReceiveNotifications != nil {
		out.ReceiveNotifications = *s.ReceiveNotifications
	}
	return out
}

type signupRequest struct {
	Name            string           `json:"name" validate:"required,max=255"`
	Email           string           `json:"email" validate:"required,max=254"`
	Password        string           `json:"password" validate:"required,max=128"`
	PasswordConfirm string           `json:"password_confirm" validate:"required,max=128"`
	Settings        *settingsRequest `json:"settings"`
}

type signupResponse struct {
	Message          string             `json:"message"`
	User             account.PublicUser `json:"user"`
	NotificationSent bool               `json:"notification_sent"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !h.decode(w, r, &body, false) {
		return
	}
	result, err := h.accounts.Signup(r.Context(), account.SignupInput{
		Name:            body.Name,
		Email:           body.Email,
		Password:        body.Password,
		PasswordConfirm: body.PasswordConfirm,
		Settings:        body.Settings.toSettings(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{
		Message:          result.Message,
		User:             result.User,
		NotificationSent: result.NotificationSent,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body, false) {
		return
	}
	result, err := h.accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		switch code := account.Code(err); code {
		case account.CodeEmailNotVerified:
			writeErr(w, http.StatusUnauthorized, code, err.Error())
		case account.CodeStorageFailed, account.CodeInternal, "":
			h.fail(w, r, err)
		default:
			writeErr(w, http.StatusUnauthorized, account.CodeInvalidCredentials, msgInvalidCredentials)
		}
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeErr(w, http.StatusUnauthorized, codeUnauthorized, "missing session")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeErr(w, http.StatusBadRequest, codeBadRequest, "token is required")
		return
	}
	if err := h.accounts.VerifyEmail(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: account.MsgVerified})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !h.decode(w, r, &body, false) {
		return
	}
	result, err := h.accounts.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: result.Message})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !h.decode(w, r, &body, false) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: account.MsgPasswordReset})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.ParseStrict(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusNotFound, account.CodeUserNotFound, "user not found")
		return
	}
	user, err := h.accounts.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Name     *string          `json:"name" validate:"omitempty,max=255"`
	Password *string          `json:"password" validate:"omitempty,max=128"`
	Settings *settingsRequest `json:"settings"`
}

type userResponse struct {
	Message string              `json:"message"`
	User    *account.PublicUser `json:"user"`
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body updateUserRequest
	if !h.decode(w, r, &body, true) {
		return
	}
	user, err := h.accounts.UpdateUser(r.Context(), id, account.UpdateInput{
		Name:     body.Name,
		Password: body.Password,
		Settings: body.Settings.toSettings(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: msgUserUpdated, User: user})
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.DeleteUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: msgUserDeleted, User: user})
}

func (h *handler) pathID(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	id, err := ulid.ParseStrict(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, codeBadRequest, "invalid id")
		return ulid.ULID{}, false
	}
	return id, true
}

// decode reads a JSON body into dst and shape-checks it. strict rejects
// unknown fields. It writes the error response and returns false on failure.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any, strict bool) bool {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		writeErr(w, http.StatusBadRequest, codeBadRequest, "invalid body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErr(w, http.StatusBadRequest, account.CodeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

// fail writes the response for a Service error. Server-side failures are
// logged with their context and answered with a generic message.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := account.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
		if code == "" {
			code = account.CodeInternal
		}
		writeErr(w, status, code, msgInternal)
		return
	}
	writeErr(w, status, code, err.Error())
}
