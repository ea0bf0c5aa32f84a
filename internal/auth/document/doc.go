// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package document implements auth.AccountStore and auth.RoleStore over a
// docstore.Store.
//
// The store has no unique indexes. Uniqueness of usernames (and of email
// addresses, when a namespace requires it) is enforced with reservation
// documents: a sentinel whose identifier encodes the guarded value is
// inserted in the same commit as the account that holds the value. Two
// concurrent creators race to insert the same identifier and the store's
// optimistic concurrency check rejects the loser, whose conflict is then
// interpreted back into auth.ErrDuplicateUsername or auth.ErrDuplicateEmail.
//
// Every operation opens its own session and commits at most once. Conflicts
// are never retried.
package document
