// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/config"
	"github.com/holomush/membership/internal/seed"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout     time.Duration
	autoMigrate bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd(deps *Deps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed MANIFEST",
		Short: "Create the roles and users declared in a seed manifest",
		Long: `Creates the roles and users declared in a YAML seed manifest.
This command is idempotent - existing users are skipped and roles are
rewritten with identical content, so it can run on every deploy.
Generated passwords are printed once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args[0], cfg, deps)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")
	cmd.Flags().BoolVar(&cfg.autoMigrate, "migrate", true, "apply pending migrations first (postgres backend)")

	return cmd
}

func runSeed(cmd *cobra.Command, path string, cfg *seedConfig, deps *Deps) error {
	manifest, err := seed.LoadFile(path)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()
	cmd.SetContext(ctx)

	return withApp(cmd, deps, func(a *app) error {
		if cfg.autoMigrate && a.cfg.Store.Backend == config.BackendPostgres {
			if err := migrateUp(a.cfg, deps); err != nil {
				return err
			}
		}

		applier := seed.NewApplier(a.accounts, a.roles, a.gate.GeneratePolicyPassword, a.logger)
		res, err := applier.Apply(ctx, a.cfg.Namespace, manifest)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Seeded namespace %s: %d role(s), %d user(s) created, %d skipped\n",
			res.Namespace, len(res.Roles), len(res.UsersCreated), len(res.UsersSkipped))
		users := make([]string, 0, len(res.Generated))
		for u := range res.Generated {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			fmt.Fprintf(out, "  %s: %s\n", u, res.Generated[u])
		}
		return nil
	})
}

func migrateUp(cfg *config.Config, deps *Deps) (err error) {
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return m.Up()
}
