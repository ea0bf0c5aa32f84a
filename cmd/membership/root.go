// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/config"
	"github.com/holomush/membership/internal/docstore"
)

// Global flags available to all subcommands.
var (
	configFile  string
	metricsFile string
)

// NewRootCmd creates the root command for the membership CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Manage accounts and roles in a document store",
		Long: `membership manages namespaced user accounts and hierarchical roles kept
in a document store. Usernames and emails stay unique through reservation
documents written in the same commit as the account they guard.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.String("backend", config.DefaultBackend, "document store backend (postgres or memory)")
	flags.Duration("consistency-timeout", docstore.DefaultConsistencyTimeout, "how long non-stale queries wait for the index")
	flags.Duration("index-lag", 0, "query index delay of the memory backend")
	flags.String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")
	flags.StringP("namespace", "n", config.DefaultNamespace, "application namespace")
	flags.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("hasher", string(auth.DefaultAlgorithm), "password digest algorithm for new passwords")

	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewRoleCmd(deps))
	cmd.AddCommand(NewSeedCmd(deps))
	cmd.AddCommand(NewValidateSeedCmd())

	return cmd
}
