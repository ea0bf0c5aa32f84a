// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the membership domain: accounts, roles, credential
// hashing, and the validation gate every mutating operation passes through.
//
// # Domain Types
//
// Roles should be created with NewRole, which fixes the role identifier
// from its namespace, name, and parent. Accounts are created by an
// AccountStore, which assigns the key and password material.
//
// # Stores
//
// AccountStore and RoleStore are the two capability interfaces. The
// document package implements both over a docstore.Store, enforcing
// username and email uniqueness with reservation documents that commit
// in the same unit of work as the account they guard.
//
// # Errors
//
// Operations fail with errors that match one of the sentinels in this
// package via errors.Is. Invalid input always matches ErrInvalidInput;
// duplicates match ErrDuplicate and name the field.
package auth
