// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package docstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrConcurrency is matched by every *ConcurrencyError via errors.Is.
var ErrConcurrency = errors.New("concurrency conflict")

// ErrStale is returned when a non-stale query times out waiting for the index.
var ErrStale = errors.New("query index is stale")

// ErrSessionClosed is returned when a closed session is used.
var ErrSessionClosed = errors.New("session is closed")

// ConcurrencyError reports that a staged write's expectation no longer held
// at commit time. ID names the document whose version check failed; it is
// empty when the store aborted the commit without naming one.
type ConcurrencyError struct {
	ID       string
	Expected int64 // 0 means "must not exist"
	Actual   int64 // 0 means "does not exist"
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	switch {
	case e.ID == "":
		return "concurrency conflict: commit aborted by a concurrent transaction"
	case e.Expected == 0:
		return fmt.Sprintf("concurrency conflict on %q: document already exists (version %d)", e.ID, e.Actual)
	case e.Actual == 0:
		return fmt.Sprintf("concurrency conflict on %q: expected version %d but document is gone", e.ID, e.Expected)
	default:
		return fmt.Sprintf("concurrency conflict on %q: expected version %d, found %d", e.ID, e.Expected, e.Actual)
	}
}

// Is reports whether target is ErrConcurrency.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrency
}

// AsConcurrencyError extracts a *ConcurrencyError from err's chain.
func AsConcurrencyError(err error) (*ConcurrencyError, bool) {
	var ce *ConcurrencyError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
