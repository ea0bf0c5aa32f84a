// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/membership/internal/seed"
)

func TestRun_WritesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seed.schema.json")

	require.NoError(t, run(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), seed.SchemaID)
}

func TestRun_Check(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.schema.json")

	require.Error(t, run(path, true), "missing file")

	require.NoError(t, run(path, false))
	require.NoError(t, run(path, true))

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	err := run(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of date")
}
