// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package docstore provides a session-based client for schemaless document
// stores that offer optimistic concurrency but no unique indexes.
//
// # Sessions
//
// A Session stages writes and commits them atomically with SaveChanges.
// Every document a session reads is tracked with the version it was read at;
// staged writes carry that version as their expectation:
//   - Insert expects the document not to exist
//   - Put expects the tracked version, or overwrites unconditionally if untracked
//   - Delete expects the tracked version, or deletes unconditionally if untracked
//
// If any expectation fails at commit time, nothing is written and
// SaveChanges returns a *ConcurrencyError naming the conflicting document.
//
// # Backends
//
// Backend implementations live in sub-packages:
//   - memory - in-process store with an eventually consistent query index
//   - postgres - JSONB documents in a single PostgreSQL table
package docstore
