// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory implements docstore.Backend in process memory.
//
// Loads and commits are strongly consistent. Queries are served from a
// separate index that an indexer goroutine updates IndexLag after each
// commit, the same stale-read window a real document database exhibits.
// Non-stale queries poll until the index has caught up.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/membership/internal/docstore"
)

const defaultPollInterval = 5 * time.Millisecond

type entry struct {
	raw docstore.Raw
	seq int64
}

// change is one index update; a nil entry removes the document.
type change struct {
	id string
	e  *entry
}

type batch struct {
	etag      int64
	changes   []change
	committed time.Time
}

// Backend is an in-memory docstore.Backend.
type Backend struct {
	mu          sync.Mutex
	docs        map[string]*entry
	index       map[string]*entry
	seq         int64
	etag        int64
	indexedEtag int64
	queue       []*batch
	closed      bool

	lag          time.Duration
	pollInterval time.Duration
	wake         chan struct{}
	done         chan struct{}
	wg           sync.WaitGroup
}

// Option configures a Backend.
type Option func(*Backend)

// WithIndexLag delays query visibility of each commit by d.
// Zero (the default) indexes synchronously and starts no goroutine.
func WithIndexLag(d time.Duration) Option {
	return func(b *Backend) { b.lag = d }
}

// WithPollInterval sets how often non-stale queries re-check the index.
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// New creates an empty Backend. Call Close to stop the indexer.
func New(opts ...Option) *Backend {
	b := &Backend{
		docs:         make(map[string]*entry),
		index:        make(map[string]*entry),
		pollInterval: defaultPollInterval,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.lag > 0 {
		b.wg.Add(1)
		go b.runIndexer()
	}
	return b
}

// Close stops the indexer goroutine. Pending index updates are dropped.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	return nil
}

// Load implements docstore.Backend.
func (b *Backend) Load(_ context.Context, id string) (docstore.Raw, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.docs[id]
	if !ok {
		return docstore.Raw{}, docstore.ErrNotFound
	}
	return copyRaw(e.raw), nil
}

// Query implements docstore.Backend.
func (b *Backend) Query(ctx context.Context, collection string, opts docstore.QueryOptions) ([]docstore.Raw, error) {
	if !opts.NonStale {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.snapshot(collection), nil
	}

	b.mu.Lock()
	target := b.etag
	b.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = docstore.DefaultConsistencyTimeout
	}
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(b.pollInterval))

	var out []docstore.Raw
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.indexedEtag < target {
			return retry.RetryableError(docstore.ErrStale)
		}
		out = b.snapshot(collection)
		return nil
	})
	if err != nil {
		if errors.Is(err, docstore.ErrStale) {
			return nil, oops.Code("DOCSTORE_STALE_TIMEOUT").
				With("collection", collection).
				With("timeout", timeout.String()).
				Wrap(docstore.ErrStale)
		}
		return nil, oops.Code("DOCSTORE_QUERY_FAILED").With("collection", collection).Wrap(err)
	}
	return out, nil
}

// snapshot returns the indexed documents of a collection ordered by first
// insertion. Callers hold mu.
func (b *Backend) snapshot(collection string) []docstore.Raw {
	entries := make([]*entry, 0)
	for _, e := range b.index {
		if e.raw.Collection == collection {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]docstore.Raw, len(entries))
	for i, e := range entries {
		out[i] = copyRaw(e.raw)
	}
	return out
}

// Commit implements docstore.Backend.
func (b *Backend) Commit(_ context.Context, ops []docstore.Op) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, oops.Code("DOCSTORE_CLOSED").Errorf("memory backend is closed")
	}

	for _, op := range ops {
		if err := b.check(op); err != nil {
			return nil, err
		}
	}

	versions := make([]int64, len(ops))
	changes := make([]change, 0, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case docstore.OpInsert, docstore.OpPut:
			e := b.docs[op.ID]
			next := &entry{
				raw: docstore.Raw{
					ID:         op.ID,
					Collection: op.Collection,
					Body:       append([]byte(nil), op.Body...),
					Version:    1,
				},
			}
			if e != nil {
				next.raw.Version = e.raw.Version + 1
				next.seq = e.seq
			} else {
				b.seq++
				next.seq = b.seq
			}
			b.docs[op.ID] = next
			versions[i] = next.raw.Version
			changes = append(changes, change{id: op.ID, e: next})
		case docstore.OpDelete:
			if _, ok := b.docs[op.ID]; ok {
				delete(b.docs, op.ID)
				changes = append(changes, change{id: op.ID})
			}
		}
	}

	b.etag++
	bt := &batch{etag: b.etag, changes: changes, committed: time.Now()}
	if b.lag <= 0 {
		b.apply(bt)
		return versions, nil
	}
	b.queue = append(b.queue, bt)
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return versions, nil
}

// check verifies one op's expectation. Callers hold mu.
func (b *Backend) check(op docstore.Op) error {
	e, exists := b.docs[op.ID]
	var actual int64
	if exists {
		actual = e.raw.Version
	}
	switch op.Kind {
	case docstore.OpInsert:
		if exists {
			return &docstore.ConcurrencyError{ID: op.ID, Expected: 0, Actual: actual}
		}
	case docstore.OpPut, docstore.OpDelete:
		if op.ExpectedVersion != 0 && op.ExpectedVersion != actual {
			return &docstore.ConcurrencyError{ID: op.ID, Expected: op.ExpectedVersion, Actual: actual}
		}
	default:
		return oops.Code("DOCSTORE_INVALID_OP").With("id", op.ID).Errorf("unknown op kind %d", op.Kind)
	}
	return nil
}

// apply copies a batch into the query index. Callers hold mu.
func (b *Backend) apply(bt *batch) {
	for _, c := range bt.changes {
		if c.e == nil {
			delete(b.index, c.id)
			continue
		}
		b.index[c.id] = c.e
	}
	b.indexedEtag = bt.etag
}

func (b *Backend) runIndexer() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		var next *batch
		if len(b.queue) > 0 {
			next = b.queue[0]
		}
		b.mu.Unlock()

		if next == nil {
			select {
			case <-b.wake:
				continue
			case <-b.done:
				return
			}
		}

		if wait := time.Until(next.committed.Add(b.lag)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-b.done:
				timer.Stop()
				return
			}
		}

		b.mu.Lock()
		b.queue = b.queue[1:]
		b.apply(next)
		b.mu.Unlock()
	}
}

func copyRaw(r docstore.Raw) docstore.Raw {
	r.Body = append([]byte(nil), r.Body...)
	return r
}

// Compile-time interface check.
var _ docstore.Backend = (*Backend)(nil)
