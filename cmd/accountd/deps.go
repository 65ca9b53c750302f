// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/notify"
	"github.com/holomush/accountd/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the configured user store.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg *config.Config) (*OpenedStore, error)

	// NotifierOpener opens the configured notifier.
	// Default: openNotifier
	NotifierOpener func(ctx context.Context, cfg *config.Config, composer *notify.Composer, logger *slog.Logger) (account.Notifier, func() error, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// OpenedStore is a user store with its health check and cleanup.
type OpenedStore struct {
	Users account.UserStore
	Ready func(ctx context.Context) error
	Close func()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
