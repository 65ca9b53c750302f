// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/accountd/pkg/errutil"
)

// ErrNotFound is returned by UserStore implementations when no record matches.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by UserStore.Insert when the email is already stored.
var ErrEmailTaken = errors.New("email already taken")

// Error codes carried by every error the Service returns.
//
// oops reports the deepest code in a wrap chain, so collaborators (stores,
// hashers, notifiers) wrap without a code and the Service assigns one.
const (
	CodeDuplicateEmail     = "ACCOUNT_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "ACCOUNT_INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "ACCOUNT_EMAIL_NOT_VERIFIED"
	CodeInvalidToken       = "ACCOUNT_INVALID_TOKEN"
	CodeTokenExpired       = "ACCOUNT_TOKEN_EXPIRED"
	CodeUserNotFound       = "ACCOUNT_USER_NOT_FOUND"
	CodeStorageFailed      = "ACCOUNT_STORAGE_FAILED"
	CodeNotificationFailed = "ACCOUNT_NOTIFICATION_FAILED"
	CodeValidationFailed   = "ACCOUNT_VALIDATION_FAILED"
	CodeInternal           = "ACCOUNT_INTERNAL"
)

// Code returns the oops code carried by err, or "" if it has none.
func Code(err error) string {
	return errutil.Code(err)
}

func storageError(operation string, err error) error {
	return oops.Code(CodeStorageFailed).
		With("operation", operation).
		Wrap(err)
}

func internalError(operation string, err error) error {
	return oops.Code(CodeInternal).
		With("operation", operation).
		Wrap(err)
}

func validationError(field, format string, args ...any) error {
	return oops.Code(CodeValidationFailed).
		With("field", field).
		Errorf(format, args...)
}
