// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memstore"
	"github.com/holomush/accountd/internal/account/postgres"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/httpapi"
	"github.com/holomush/accountd/internal/logging"
	"github.com/holomush/accountd/internal/notify"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store"
)

const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account HTTP API",
		Long: `Start the account HTTP API, and the metrics and health endpoints
when metrics.addr is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.NotifierOpener == nil {
		deps.NotifierOpener = openNotifier
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate config").Wrap(err)
	}

	logger := logging.SetDefault("accountd", version, cfg.Log.Format, cfg.Log.Level)
	logger.Info("starting accountd",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"notifier", cfg.Notifier.Driver,
		"hasher", cfg.Hasher.Algorithm,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opened, err := deps.StoreOpener(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer opened.Close()

	links, err := notify.NewLinks(cfg.Notifier.BaseURL)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "notifier.base_url").Wrap(err)
	}
	composer := notify.NewComposer(links, cfg.Tokens.VerificationTTL.Std(), cfg.Tokens.ResetTTL.Std())

	notifier, closeNotifier, err := deps.NotifierOpener(ctx, cfg, composer, logger)
	if err != nil {
		return oops.With("operation", "open notifier").Wrap(err)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Warn("error closing notifier", "error", err)
		}
	}()

	hasher, err := account.NewPasswordHasher(cfg.Hasher.Algorithm)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "hasher.algorithm").Wrap(err)
	}
	sessions, err := account.NewJWTIssuer([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.TTL.Std())
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "session.secret").Wrap(err)
	}

	// Readiness flips once the API listener is bound.
	var listening atomic.Bool
	ready := func() bool {
		if !listening.Load() {
			return false
		}
		checkCtx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return opened.Ready(checkCtx) == nil
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
			defer cancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, stop, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	svc, err := account.NewService(opened.Users, notifier, hasher, account.NewRandomTokenGenerator(), sessions,
		account.WithLogger(logger),
		account.WithMetrics(metrics),
		account.WithTokenTTLs(cfg.Tokens.VerificationTTL.Std(), cfg.Tokens.ResetTTL.Std()),
		account.WithAllowedEmailDomains(cfg.Signup.AllowedEmailDomains...),
	)
	if err != nil {
		return oops.With("operation", "create account service").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.With("operation", "listen").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Accounts: svc,
			Logger:   logger,
			Recorder: metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()
	listening.Store(true)

	cmd.Println("accountd started")
	logger.Info("accountd ready", "http_addr", listener.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-errCh:
		if ok {
			serveErr = oops.With("operation", "serve http").Wrap(err)
		}
	}

	listening.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down http server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// openStore opens the user store selected by store.driver.
func openStore(ctx context.Context, cfg *config.Config) (*OpenedStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		slog.Warn("using in-memory user store, accounts are lost on restart")
		return &OpenedStore{
			Users: memstore.New(),
			Ready: func(context.Context) error { return nil },
			Close: func() {},
		}, nil
	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database")
		return &OpenedStore{
			Users: postgres.NewStore(pool),
			Ready: pool.Ping,
			Close: pool.Close,
		}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store.driver").Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openNotifier opens the notifier selected by notifier.driver.
func openNotifier(ctx context.Context, cfg *config.Config, composer *notify.Composer, logger *slog.Logger) (account.Notifier, func() error, error) {
	switch cfg.Notifier.Driver {
	case config.NotifierLog:
		logger.Warn("using log notifier, emailed links are written to the log")
		return notify.NewLogNotifier(logger, composer), func() error { return nil }, nil
	case config.NotifierAMQP:
		n, err := notify.DialAMQP(ctx, cfg.Notifier.AMQPURL, cfg.Notifier.Exchange, composer)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to broker", "exchange", cfg.Notifier.Exchange)
		return n, n.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "notifier.driver").Errorf("unknown notifier driver %q", cfg.Notifier.Driver)
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
