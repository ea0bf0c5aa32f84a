// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/membership/internal/config"
	"github.com/holomush/membership/internal/docstore"
	"github.com/holomush/membership/internal/docstore/memory"
)

// memoryDeps returns Deps whose backend is one memory store shared by
// every command run with them.
func memoryDeps(t *testing.T) *Deps {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { _ = backend.Close() })
	return &Deps{
		BackendFactory: func(context.Context, *config.Config) (docstore.Backend, func(), error) {
			return backend, func() {}, nil
		},
		Getenv:            func(string) string { return "" },
		DefaultConfigFile: func() string { return "" },
	}
}

// run executes the root command with args against the memory backend and
// returns what it wrote to stdout.
func run(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	configFile, metricsFile = "", ""

	cmd := newRootCmd(deps)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--backend", "memory", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mustRun is run that fails the test on error.
func mustRun(t *testing.T, deps *Deps, args ...string) string {
	t.Helper()
	out, err := run(t, deps, args...)
	require.NoError(t, err, "membership %s", strings.Join(args, " "))
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// passwordFrom extracts the value of the "Password: " line.
func passwordFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if pw, ok := strings.CutPrefix(line, "Password: "); ok {
			return pw
		}
	}
	require.Failf(t, "no password in output", "%q", out)
	return ""
}
