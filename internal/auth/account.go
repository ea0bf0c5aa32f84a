// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"slices"
	"time"
)

// AccountKeyPrefix prefixes every store-assigned account key.
const AccountKeyPrefix = "authorization/users/"

// Account is a member of a namespace.
type Account struct {
	Key               string     `json:"key"`
	Namespace         string     `json:"namespace"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	PasswordHash      string     `json:"password_hash"`
	PasswordSalt      string     `json:"password_salt"`
	PasswordAlgorithm Algorithm  `json:"password_algorithm,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	Roles             []string   `json:"roles,omitempty"`
	FailedAttempts    int        `json:"failed_attempts,omitempty"`
	FirstFailureAt    *time.Time `json:"first_failure_at,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// SetDocumentID records the store-assigned key.
func (a *Account) SetDocumentID(id string) {
	a.Key = id
}

// IsLocked returns true if the account is locked at now.
func (a *Account) IsLocked(now time.Time) bool {
	return IsLockedOut(a.LockedUntil, now)
}

// RecordFailure increments the failure counter and locks the account once
// the threshold is reached. Failures from an expired lock or outside the
// attempt window are forgotten first. A failure while locked does not
// extend the lock.
func (a *Account) RecordFailure(l Lockout, now time.Time) {
	if l.Expired(a.FirstFailureAt, a.LockedUntil, now) {
		a.RecordSuccess()
	}
	if a.FailedAttempts == 0 {
		first := now
		a.FirstFailureAt = &first
	}
	a.FailedAttempts++
	if a.LockedUntil == nil {
		a.LockedUntil = l.LockedUntil(a.FailedAttempts, now)
	}
}

// RecordSuccess resets the failure counter and lockout.
func (a *Account) RecordSuccess() {
	a.FailedAttempts = 0
	a.FirstFailureAt = nil
	a.LockedUntil = nil
}

// HasRole reports whether the account holds roleID.
func (a *Account) HasRole(roleID string) bool {
	return slices.Contains(a.Roles, roleID)
}

// AddRole adds roleID to the role set. Returns false if already held.
func (a *Account) AddRole(roleID string) bool {
	if a.HasRole(roleID) {
		return false
	}
	a.Roles = append(a.Roles, roleID)
	return true
}

// RemoveRole removes roleID from the role set. Returns false if not held.
func (a *Account) RemoveRole(roleID string) bool {
	i := slices.Index(a.Roles, roleID)
	if i < 0 {
		return false
	}
	a.Roles = slices.Delete(a.Roles, i, i+1)
	return true
}

// Order selects the ordering of paged results.
type Order int

// Paging orders.
const (
	// OrderInsertion returns accounts in the order they were created.
	OrderInsertion Order = iota
	// OrderUsername returns accounts sorted by normalized username.
	OrderUsername
)

// String returns the order's name.
func (o Order) String() string {
	switch o {
	case OrderInsertion:
		return "insertion"
	case OrderUsername:
		return "username"
	default:
		return "unknown"
	}
}

// Page selects a window of results. Index is zero-based; Size must be
// positive.
type Page struct {
	Index int
	Size  int
	Order Order
}

// FilterField selects the account field a Filter matches.
type FilterField int

// Filter fields.
const (
	FilterNone FilterField = iota
	FilterUsername
	FilterEmail
)

// Filter narrows Find results. Pattern is a substring, or a glob when it
// contains glob metacharacters. Matching ignores case.
type Filter struct {
	Field   FilterField
	Pattern string
}

// AccountStore manages accounts.
type AccountStore interface {
	// Create validates input, then stores a new account with its username
	// (and email, when the namespace requires unique email) reserved.
	Create(ctx context.Context, namespace, username, password, email string) (*Account, error)

	// Get retrieves an account by username.
	Get(ctx context.Context, namespace, username string) (*Account, error)

	// GetByKey retrieves an account by its store-assigned key.
	GetByKey(ctx context.Context, key string) (*Account, error)

	// UsernameByEmail returns the username of the account with email.
	// Returns ErrNotFound if no account has the given email.
	UsernameByEmail(ctx context.Context, namespace, email string) (string, error)

	// ChangePassword replaces the password after verifying the old one.
	ChangePassword(ctx context.Context, namespace, username, oldPassword, newPassword string) error

	// ResetPassword replaces the password with a generated one and returns it.
	ResetPassword(ctx context.Context, namespace, username string) (string, error)

	// Update persists username, email, and last login changes. Changed
	// unique values move their reservations in the same commit.
	Update(ctx context.Context, account *Account) error

	// Delete removes an account and releases its reservations. Returns false
	// if the account does not exist.
	Delete(ctx context.Context, namespace, username string) (bool, error)

	// Find returns one page of matching accounts and the total match count.
	Find(ctx context.Context, namespace string, filter Filter, page Page) ([]*Account, int, error)

	// All returns one page of every account in the namespace.
	All(ctx context.Context, namespace string, page Page) ([]*Account, int, error)

	// FindByUsername returns one page of accounts whose username matches.
	FindByUsername(ctx context.Context, namespace, pattern string, page Page) ([]*Account, int, error)

	// FindByEmail returns one page of accounts whose email matches.
	FindByEmail(ctx context.Context, namespace, pattern string, page Page) ([]*Account, int, error)

	// Authenticate reports whether password verifies for username. A locked
	// account fails with ErrAccountLocked.
	Authenticate(ctx context.Context, namespace, username, password string, touchLastLogin bool) (bool, error)

	// Unlock clears an account's failure counter and lockout.
	Unlock(ctx context.Context, namespace, username string) error
}
