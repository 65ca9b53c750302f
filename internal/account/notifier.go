// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "context"

// Notifier delivers one-time tokens to users out of band.
// The Service treats delivery as fire-and-forget: a failure is logged and
// never rolls back state that was already persisted.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendReset(ctx context.Context, email, token string) error
}
