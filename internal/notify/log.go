// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/accountd/internal/account"
)

// LogNotifier writes emails to a logger instead of sending them. The log
// line carries the link, and therefore the token, so it is only suitable
// for local development.
type LogNotifier struct {
	logger   *slog.Logger
	composer *Composer
}

var _ account.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger, composer *Composer) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier"), composer: composer}
}

// SendVerification logs the verification email.
func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	msg, err := n.composer.Verification(email, token)
	if err != nil {
		return err
	}
	n.write(ctx, msg)
	return nil
}

// SendReset logs the password reset email.
func (n *LogNotifier) SendReset(ctx context.Context, email, token string) error {
	msg, err := n.composer.Reset(email, token)
	if err != nil {
		return err
	}
	n.write(ctx, msg)
	return nil
}

func (n *LogNotifier) write(ctx context.Context, msg Message) {
	n.logger.InfoContext(ctx, "email",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
	)
}
