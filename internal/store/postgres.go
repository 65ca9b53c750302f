// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults.
const (
	DefaultConnectAttempts = 5
	connectBaseDelay       = 250 * time.Millisecond
	connectMaxDelay        = 5 * time.Second
)

// Connect opens a pgx pool for databaseURL and waits until the database
// answers a ping, retrying with capped exponential backoff.
func Connect(ctx context.Context, databaseURL string, attempts uint64) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool.Ping, connectBackoff(attempts)); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("host", cfg.ConnConfig.Host).
			Wrap(err)
	}
	return pool, nil
}

func connectBackoff(attempts uint64) retry.Backoff {
	if attempts == 0 {
		attempts = DefaultConnectAttempts
	}
	b := retry.NewExponential(connectBaseDelay)
	b = retry.WithCappedDuration(connectMaxDelay, b)
	// WithMaxRetries counts retries, not attempts.
	return retry.WithMaxRetries(attempts-1, b)
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, backoff retry.Backoff) error {
	attempt := 0
	//nolint:wrapcheck // callers wrap with connection context
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
