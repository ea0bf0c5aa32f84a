// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes recorded by Metrics.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeDenied    = "denied"
	OutcomeError     = "error"
)

// Metrics counts store operations.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
}

// NewMetrics creates the membership metrics and registers them on reg.
// A nil reg yields working but unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_operations_total",
			Help: "Total number of membership operations by outcome",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "membership_operation_duration_seconds",
			Help:    "Histogram of membership operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_reservation_conflicts_total",
			Help: "Total number of commits rejected by a uniqueness reservation",
		}, []string{"field"}),
	}
}

// Observe records one finished operation. Safe on a nil receiver.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Conflict records a reservation conflict on field. Safe on a nil receiver.
func (m *Metrics) Conflict(field string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(field).Inc()
}

// Outcome classifies err into a metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalid
	case errors.Is(err, ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrRolePopulated), errors.Is(err, ErrRoleHasChildren):
		return OutcomeDenied
	default:
		return OutcomeError
	}
}
