// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/membership/internal/auth"
)

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := auth.NewMetrics(reg)
	m.Observe("create", time.Now(), nil)
	m.Conflict("username")

	families, err := reg.Gather()
	require.NoError(t, err)
	registered := make(map[string]bool)
	for _, f := range families {
		registered[f.GetName()] = true
	}
	for _, name := range []string{
		"membership_operations_total",
		"membership_operation_duration_seconds",
		"membership_reservation_conflicts_total",
	} {
		assert.True(t, registered[name], "metric %q should be registered", name)
	}
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := auth.NewMetrics(reg)

	m.Observe("create", time.Now(), nil)
	m.Observe("create", time.Now(), fmt.Errorf("wrapped: %w", auth.ErrDuplicateUsername))
	m.Observe("create", time.Now(), fmt.Errorf("wrapped: %w", auth.ErrDuplicateEmail))

	expected := `
# HELP membership_operations_total Total number of membership operations by outcome
# TYPE membership_operations_total counter
membership_operations_total{operation="create",outcome="duplicate"} 2
membership_operations_total{operation="create",outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "membership_operations_total"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *auth.Metrics
	assert.NotPanics(t, func() {
		m.Observe("create", time.Now(), nil)
		m.Conflict("email")
	})
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, auth.OutcomeOK, auth.Outcome(nil))
	assert.Equal(t, auth.OutcomeInvalid, auth.Outcome(auth.ErrInvalidEmail))
	assert.Equal(t, auth.OutcomeNotFound, auth.Outcome(auth.ErrNotFound))
	assert.Equal(t, auth.OutcomeDenied, auth.Outcome(auth.ErrAccountLocked))
	assert.Equal(t, auth.OutcomeError, auth.Outcome(errors.New("boom")))
}
