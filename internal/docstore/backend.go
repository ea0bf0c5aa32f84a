// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package docstore

import (
	"context"
	"time"
)

// Raw is a stored document as the backend sees it.
type Raw struct {
	ID         string
	Collection string
	Version    int64
	Body       []byte
}

// OpKind identifies a staged write.
type OpKind int

// Staged write kinds.
const (
	OpInsert OpKind = iota + 1
	OpPut
	OpDelete
)

// String returns the lowercase name of the kind.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one staged write. ExpectedVersion is ignored for OpInsert, which
// always requires the document to be absent. For OpPut and OpDelete a zero
// ExpectedVersion skips the version check.
type Op struct {
	Kind            OpKind
	ID              string
	Collection      string
	Body            []byte
	ExpectedVersion int64
}

// QueryOptions control how a backend answers a collection query.
type QueryOptions struct {
	// NonStale makes the query wait until every commit acknowledged before
	// the query started is visible in the index.
	NonStale bool

	// Timeout bounds the non-stale wait. Zero means the backend default.
	Timeout time.Duration
}

// Backend is the storage engine behind a Store.
//
// Implementations must apply Commit atomically: either every op is applied
// or none is. When an expectation fails, Commit returns a *ConcurrencyError.
// Query returns documents in first-insertion order.
type Backend interface {
	// Load reads a document by ID. Loads are always consistent.
	// Returns ErrNotFound if the document does not exist.
	Load(ctx context.Context, id string) (Raw, error)

	// Query returns all documents in a collection.
	Query(ctx context.Context, collection string, opts QueryOptions) ([]Raw, error)

	// Commit applies ops atomically and returns the new version of each op's
	// document (0 for deletes).
	Commit(ctx context.Context, ops []Op) ([]int64, error)
}
