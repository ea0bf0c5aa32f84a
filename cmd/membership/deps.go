// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/auth/document"
	"github.com/holomush/membership/internal/config"
	"github.com/holomush/membership/internal/docstore"
	"github.com/holomush/membership/internal/docstore/memory"
	"github.com/holomush/membership/internal/docstore/postgres"
	"github.com/holomush/membership/internal/logging"
	"github.com/holomush/membership/internal/xdg"
)

const serviceName = "membership"

// Deps contains injectable dependencies for the membership commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// BackendFactory opens the document backend selected by cfg and
	// returns a function that releases it.
	// Default: openBackend
	BackendFactory func(ctx context.Context, cfg *config.Config) (docstore.Backend, func(), error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: postgres.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string

	// DefaultConfigFile returns the config file used when --config is not
	// given, or "" for none.
	// Default: xdg.DefaultConfigFile
	DefaultConfigFile func() string
}

// Migrator wraps the methods used from postgres.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = openBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return postgres.NewMigrator(databaseURL)
		}
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.DefaultConfigFile == nil {
		out.DefaultConfigFile = xdg.DefaultConfigFile
	}
	return &out
}

// openBackend connects to PostgreSQL or starts an in-memory backend.
func openBackend(ctx context.Context, cfg *config.Config) (docstore.Backend, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		backend := memory.New(memory.WithIndexLag(cfg.Store.IndexLag))
		return backend, func() { _ = backend.Close() }, nil //nolint:errcheck // Close never fails
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewBackend(pool), pool.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown backend %q", cfg.Store.Backend)
	}
}

// app holds what a command needs to reach the stores.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	gate     *auth.Gate
	accounts *document.AccountRepository
	roles    *document.RoleRepository
	registry *prometheus.Registry
	release  func()
}

// loadConfig reads the config file, the command's flags, and the
// environment, then sets up logging.
func loadConfig(cmd *cobra.Command, deps *Deps) (*config.Config, *slog.Logger, error) {
	path := configFile
	if path == "" {
		path = deps.DefaultConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags(), deps.Getenv)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads configuration and opens the stores.
func openApp(cmd *cobra.Command, deps *Deps) (*app, error) {
	cfg, logger, err := loadConfig(cmd, deps)
	if err != nil {
		return nil, err
	}

	policies, err := cfg.Policies()
	if err != nil {
		return nil, err
	}
	algorithm, err := auth.ParseAlgorithm(cfg.Hasher.Algorithm)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	hasher, err := auth.NewHasher(algorithm)
	if err != nil {
		return nil, err
	}

	backend, release, err := deps.BackendFactory(cmd.Context(), cfg)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("backend", cfg.Store.Backend).Wrap(err)
	}
	store := docstore.New(backend, docstore.WithConsistencyTimeout(cfg.Store.ConsistencyTimeout))

	registry := prometheus.NewRegistry()
	opts := []document.Option{
		document.WithLogger(logger),
		document.WithMetrics(auth.NewMetrics(registry)),
	}
	gate := auth.NewGate(policies)
	accounts, err := document.NewAccountRepository(store, gate, hasher, opts...)
	if err != nil {
		release()
		return nil, err
	}
	roles, err := document.NewRoleRepository(store, opts...)
	if err != nil {
		release()
		return nil, err
	}

	logger.Debug("store opened",
		"backend", cfg.Store.Backend,
		"namespace", cfg.Namespace,
		"hasher", algorithm)
	return &app{
		cfg:      cfg,
		logger:   logger,
		gate:     gate,
		accounts: accounts,
		roles:    roles,
		registry: registry,
		release:  release,
	}, nil
}

// Close releases the backend and writes the metrics file if one was
// requested.
func (a *app) Close() error {
	a.release()
	if metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
		return oops.Code("METRICS_WRITE_FAILED").With("path", metricsFile).Wrap(err)
	}
	return nil
}

// withApp opens the stores, runs fn, and closes them.
func withApp(cmd *cobra.Command, deps *Deps, fn func(a *app) error) (err error) {
	a, err := openApp(cmd, deps)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}
