// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schema of membership seed manifests,
// for editors and CI jobs that validate seed files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/holomush/membership/internal/seed"
)

func main() {
	out := pflag.StringP("output", "o", filepath.Join("schemas", "membership-seed.schema.json"), "schema file to write")
	check := pflag.Bool("check", false, "fail if the file differs from the generated schema instead of writing it")
	pflag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(outPath string, check bool) error {
	schema, err := seed.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}
	schema = append(schema, '\n')

	if check {
		current, err := os.ReadFile(outPath) //nolint:gosec // path is operator supplied
		if err != nil {
			return fmt.Errorf("reading %s: %w", outPath, err)
		}
		if string(current) != string(schema) {
			return fmt.Errorf("%s is out of date; run gen-schema", outPath)
		}
		fmt.Printf("%s is up to date\n", outPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	fmt.Printf("Generated %s\n", outPath)
	return nil
}
