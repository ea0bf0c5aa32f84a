// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/membership/internal/seed"
)

// NewValidateSeedCmd creates the validate-seed subcommand.
func NewValidateSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seed MANIFEST...",
		Short: "Validate seed manifests without touching a store",
		Long: `Validates seed manifests against the manifest schema and checks role
and user references. Does NOT require a database connection.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch seed errors early:
  membership validate-seed seeds/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateSeed(cmd, args)
		},
	}
}

func runValidateSeed(cmd *cobra.Command, paths []string) error {
	var failed []string
	for _, path := range paths {
		if _, err := seed.LoadFile(path); err != nil {
			slog.Error("seed validation failed", "path", path, "detail", seed.FormatSchemaError(err))
			failed = append(failed, path)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
	}

	if len(failed) > 0 {
		return fmt.Errorf("validation failed: %d of %d seed manifests invalid", len(failed), len(paths))
	}
	slog.Info("all seed manifests valid", "count", len(paths))
	return nil
}
