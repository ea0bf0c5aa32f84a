// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Validation failures by field.
var (
	ErrInvalidUsername = fmt.Errorf("%w: username", ErrInvalidInput)
	ErrInvalidPassword = fmt.Errorf("%w: password", ErrInvalidInput)
	ErrInvalidEmail    = fmt.Errorf("%w: email", ErrInvalidInput)
	ErrInvalidRoleName = fmt.Errorf("%w: role name", ErrInvalidInput)
)

// ErrDuplicate is matched by every uniqueness violation.
var ErrDuplicate = errors.New("duplicate")

// Uniqueness violations by field.
var (
	ErrDuplicateUsername = fmt.Errorf("%w username", ErrDuplicate)
	ErrDuplicateEmail    = fmt.Errorf("%w email", ErrDuplicate)
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrRolePopulated is returned when deleting a role that still has members
// without forcing.
var ErrRolePopulated = errors.New("role has members")

// ErrRoleHasChildren is returned when deleting a role that other roles name
// as their parent.
var ErrRoleHasChildren = errors.New("role has child roles")

// ErrAmbiguousRole is returned when a role name matches more than one role
// in a namespace.
var ErrAmbiguousRole = errors.New("role name is ambiguous")

// ErrInvalidCredentials is returned when a password does not verify.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrAccountLocked is returned when authenticating a locked account.
var ErrAccountLocked = errors.New("account is temporarily locked")

// ErrStorage is matched by failures of the underlying document store.
var ErrStorage = errors.New("storage failure")
