// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wardkey Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardkey/wardkey/internal/auth"
	authpg "github.com/wardkey/wardkey/internal/auth/postgres"
	"github.com/wardkey/wardkey/internal/config"
	"github.com/wardkey/wardkey/internal/httpapi"
	"github.com/wardkey/wardkey/internal/logging"
	"github.com/wardkey/wardkey/internal/observability"
	"github.com/wardkey/wardkey/internal/store"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP API server which handles account registration,
login, session listing, logout, and account deletion.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("wardkey", version, cfg.LogFormat)
	logger := slog.Default()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	accounts := authpg.NewAccountRepository(pool)
	sessions := authpg.NewSessionRepository(pool)

	svc, err := auth.NewServiceWithLogger(accounts, sessions, auth.NewArgon2idHasher(), logger)
	if err != nil {
		return oops.Code("INIT_FAILED").With("operation", "create auth service").Wrap(err)
	}

	// Readiness flips once the API listener is up.
	var ready atomic.Bool

	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load)
		metrics = obsServer.Metrics()

		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("INIT_FAILED").With("operation", "start observability server").Wrap(startErr)
		}
		defer stopServer(obsServer.Stop, "observability")
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	apiServer, err := httpapi.NewServer(cfg.HTTPAddr, svc, metrics, logger)
	if err != nil {
		return oops.Code("INIT_FAILED").With("operation", "create api server").Wrap(err)
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		return oops.Code("INIT_FAILED").With("operation", "start api server").Wrap(err)
	}
	defer stopServer(apiServer.Stop, "api")
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	ready.Store(true)
	logger.Info("wardkey started",
		"api_addr", apiServer.Addr(),
		"version", version,
	)

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down")
	return nil
}

// stopServer shuts a server down with a bounded timeout, logging failures.
func stopServer(stop func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Error("server shutdown failed", "server", name, "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports a fatal
// error, triggering graceful shutdown of the whole process. It exits when
// an error arrives, the channel closes, or the context is cancelled.
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
