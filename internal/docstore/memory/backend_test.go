// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/membership/internal/docstore"
)

func insert(id string) docstore.Op {
	return docstore.Op{Kind: docstore.OpInsert, ID: id, Collection: "things", Body: []byte(`{}`)}
}

func TestBackend_SynchronousIndexWithoutLag(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1")})
	require.NoError(t, err)

	raws, err := b.Query(ctx, "things", docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestBackend_StaleQueryMissesRecentCommit(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithIndexLag(time.Hour))
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1")})
	require.NoError(t, err)

	raws, err := b.Query(ctx, "things", docstore.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, raws, "index should lag the commit")

	raw, err := b.Load(ctx, "things/1")
	require.NoError(t, err, "loads are always consistent")
	assert.Equal(t, int64(1), raw.Version)
}

func TestBackend_NonStaleQueryWaitsForIndex(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithIndexLag(20*time.Millisecond), WithPollInterval(time.Millisecond))
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1"), insert("things/2")})
	require.NoError(t, err)

	raws, err := b.Query(ctx, "things", docstore.QueryOptions{NonStale: true, Timeout: time.Second})
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "things/1", raws[0].ID)
}

func TestBackend_NonStaleQueryTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithIndexLag(time.Hour), WithPollInterval(time.Millisecond))
	defer func() { _ = b.Close() }()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1")})
	require.NoError(t, err)

	_, err = b.Query(ctx, "things", docstore.QueryOptions{NonStale: true, Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, docstore.ErrStale)
}

func TestBackend_CommitChecksEveryOpBeforeApplying(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1")})
	require.NoError(t, err)

	_, err = b.Commit(ctx, []docstore.Op{insert("things/2"), insert("things/1")})
	require.ErrorIs(t, err, docstore.ErrConcurrency)

	_, err = b.Load(ctx, "things/2")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestBackend_UpdateKeepsInsertionOrder(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.Commit(ctx, []docstore.Op{insert("things/1"), insert("things/2")})
	require.NoError(t, err)
	versions, err := b.Commit(ctx, []docstore.Op{{
		Kind: docstore.OpPut, ID: "things/1", Collection: "things", Body: []byte(`{"x":1}`), ExpectedVersion: 1,
	}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, versions)

	raws, err := b.Query(ctx, "things", docstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "things/1", raws[0].ID)
	assert.Equal(t, int64(2), raws[0].Version)
}

func TestBackend_VersionedDeleteOfMissingConflicts(t *testing.T) {
	b := New()
	_, err := b.Commit(context.Background(), []docstore.Op{{Kind: docstore.OpDelete, ID: "things/1", ExpectedVersion: 1}})
	ce, ok := docstore.AsConcurrencyError(err)
	require.True(t, ok)
	assert.Equal(t, int64(0), ce.Actual)
}

func TestBackend_CommitAfterCloseFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	_, err := b.Commit(context.Background(), []docstore.Op{insert("things/1")})
	assert.Error(t, err)
}

func TestBackend_ReturnedBodiesAreCopies(t *testing.T) {
	b := New()
	ctx := context.Background()
	_, err := b.Commit(ctx, []docstore.Op{insert("things/1")})
	require.NoError(t, err)

	raw, err := b.Load(ctx, "things/1")
	require.NoError(t, err)
	raw.Body[0] = 'X'

	again, err := b.Load(ctx, "things/1")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(again.Body))
}
