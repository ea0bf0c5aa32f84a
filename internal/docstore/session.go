// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultConsistencyTimeout bounds non-stale query waits when no timeout is configured.
const DefaultConsistencyTimeout = 5 * time.Second

// Store hands out sessions over a Backend.
type Store struct {
	backend            Backend
	consistencyTimeout time.Duration
	newID              func() string
}

// Option configures a Store.
type Option func(*Store)

// WithConsistencyTimeout sets how long non-stale queries wait for the index.
func WithConsistencyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.consistencyTimeout = d
		}
	}
}

// WithIDGenerator replaces the ULID generator used for store-assigned IDs.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:            backend,
		consistencyTimeout: DefaultConsistencyTimeout,
		newID:              func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSession starts a new unit of work. Sessions are not safe for
// concurrent use; open one per logical operation.
func (s *Store) OpenSession() *Session {
	return &Session{
		store:    s,
		versions: make(map[string]int64),
		staged:   make(map[string]int),
	}
}

// Session tracks the versions of documents it has read and stages writes
// until SaveChanges. Reads never observe the session's own staged writes.
type Session struct {
	store    *Store
	versions map[string]int64
	ops      []Op
	staged   map[string]int // id -> index into ops
	closed   bool
}

// QueryOption configures a single query.
type QueryOption func(*QueryOptions)

// NonStale makes a query wait until the index reflects every prior commit.
func NonStale() QueryOption {
	return func(o *QueryOptions) { o.NonStale = true }
}

// Identified is implemented by documents that carry their own ID. Insert
// hands such documents their final ID before encoding them.
type Identified interface {
	SetDocumentID(id string)
}

// Insert stages creation of a new document. The commit fails with a
// *ConcurrencyError if a document with the same ID exists by then.
// An id ending in "/" is completed with a generated identifier; the final ID
// is returned.
func (s *Session) Insert(id, collection string, v any) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if id == "" {
		return "", oops.Code("DOCSTORE_INVALID_ID").Errorf("document id cannot be empty")
	}
	if strings.HasSuffix(id, "/") {
		id += s.store.newID()
	}
	if doc, ok := v.(Identified); ok {
		doc.SetDocumentID(id)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return "", oops.Code("DOCSTORE_ENCODE_FAILED").With("id", id).Wrap(err)
	}
	s.stage(Op{Kind: OpInsert, ID: id, Collection: collection, Body: body})
	return id, nil
}

// Put stages an overwrite of a document. If the session has read the
// document, the commit requires it to be unchanged since; otherwise the
// write is unconditional (create or replace).
func (s *Session) Put(id, collection string, v any) error {
	if s.closed {
		return ErrSessionClosed
	}
	if id == "" || strings.HasSuffix(id, "/") {
		return oops.Code("DOCSTORE_INVALID_ID").With("id", id).Errorf("put requires a complete document id")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return oops.Code("DOCSTORE_ENCODE_FAILED").With("id", id).Wrap(err)
	}
	s.stage(Op{Kind: OpPut, ID: id, Collection: collection, Body: body, ExpectedVersion: s.versions[id]})
	return nil
}

// Delete stages removal of a document, with the same version rule as Put.
// Deleting a document that does not exist is not an error unless the
// session had read it.
func (s *Session) Delete(id string) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.stage(Op{Kind: OpDelete, ID: id, ExpectedVersion: s.versions[id]})
	return nil
}

// stage records op, folding it into an earlier op on the same document.
func (s *Session) stage(op Op) {
	idx, ok := s.staged[op.ID]
	if !ok {
		s.staged[op.ID] = len(s.ops)
		s.ops = append(s.ops, op)
		return
	}
	prev := s.ops[idx]
	switch {
	case prev.Kind == OpInsert && op.Kind == OpPut:
		prev.Body = op.Body
		prev.Collection = op.Collection
		s.ops[idx] = prev
	case prev.Kind == OpInsert && op.Kind == OpDelete:
		s.unstage(idx)
	default:
		s.ops[idx] = op
	}
}

func (s *Session) unstage(idx int) {
	s.ops = append(s.ops[:idx], s.ops[idx+1:]...)
	s.staged = make(map[string]int, len(s.ops))
	for i, op := range s.ops {
		s.staged[op.ID] = i
	}
}

// Pending returns a copy of the staged writes.
func (s *Session) Pending() []Op {
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// load reads a raw document and tracks its version.
func (s *Session) load(ctx context.Context, id string) (Raw, error) {
	if s.closed {
		return Raw{}, ErrSessionClosed
	}
	raw, err := s.store.backend.Load(ctx, id)
	if err != nil {
		return Raw{}, err //nolint:wrapcheck // callers classify ErrNotFound
	}
	s.versions[raw.ID] = raw.Version
	return raw, nil
}

// query reads a collection and tracks the version of every result.
func (s *Session) query(ctx context.Context, collection string, opts ...QueryOption) ([]Raw, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	qo := QueryOptions{}
	for _, opt := range opts {
		opt(&qo)
	}
	if qo.NonStale {
		qo.Timeout = s.store.consistencyTimeout
	}
	raws, err := s.store.backend.Query(ctx, collection, qo)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}
	for _, raw := range raws {
		s.versions[raw.ID] = raw.Version
	}
	return raws, nil
}

// SaveChanges commits every staged write atomically. On success the staged
// list is cleared and tracked versions are advanced. On failure the staged
// writes are kept so the caller can inspect them, but the session should be
// discarded.
func (s *Session) SaveChanges(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(s.ops) == 0 {
		return nil
	}
	versions, err := s.store.backend.Commit(ctx, s.ops)
	if err != nil {
		if errors.Is(err, ErrConcurrency) {
			return err //nolint:wrapcheck // conflict identity must survive for interpretation
		}
		return oops.Code("DOCSTORE_COMMIT_FAILED").With("ops", len(s.ops)).Wrap(err)
	}
	for i, op := range s.ops {
		if op.Kind == OpDelete {
			delete(s.versions, op.ID)
			continue
		}
		if i < len(versions) {
			s.versions[op.ID] = versions[i]
		}
	}
	s.ops = nil
	s.staged = make(map[string]int)
	return nil
}

// Close discards staged writes and releases the session.
func (s *Session) Close() {
	s.closed = true
	s.ops = nil
	s.staged = nil
}
