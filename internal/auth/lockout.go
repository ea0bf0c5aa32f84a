// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "time"

// Lockout defaults.
const (
	// DefaultMaxInvalidAttempts is the number of failures that triggers a lockout.
	DefaultMaxInvalidAttempts = 10

	// DefaultLockoutDuration is how long an account stays locked.
	DefaultLockoutDuration = 5 * time.Minute

	// DefaultAttemptWindow is how long failures count toward a lockout.
	DefaultAttemptWindow = 10 * time.Minute
)

// Lockout decides when repeated authentication failures lock an account.
// A zero MaxInvalidAttempts disables locking. Failures count toward the
// threshold only within Window of the first one; a zero Window keeps them
// until a success or an expired lock clears them.
type Lockout struct {
	MaxInvalidAttempts int
	Duration           time.Duration
	Window             time.Duration
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// LockedUntil returns the lockout expiry for the given failure count, or nil
// when the count is below the threshold.
func (l Lockout) LockedUntil(failures int, now time.Time) *time.Time {
	if l.MaxInvalidAttempts <= 0 || failures < l.MaxInvalidAttempts {
		return nil
	}
	d := l.Duration
	if d <= 0 {
		d = DefaultLockoutDuration
	}
	until := now.Add(d)
	return &until
}

// Expired reports whether earlier failures no longer count at now: the
// lock they caused has ended, or the first of them is outside the window.
func (l Lockout) Expired(firstFailure, lockedUntil *time.Time, now time.Time) bool {
	if lockedUntil != nil {
		return !lockedUntil.After(now)
	}
	return firstFailure != nil && l.Window > 0 && !now.Before(firstFailure.Add(l.Window))
}
