// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements docstore.Backend on a single PostgreSQL table.
//
// Documents are JSONB rows keyed by their string ID. Each commit runs in
// one transaction; inserts use ON CONFLICT DO NOTHING and versioned writes
// use "WHERE version = $n", so a lost race shows up as zero affected rows
// and is reported as a *docstore.ConcurrencyError. PostgreSQL reads are
// never stale, so non-stale queries need no waiting.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/membership/internal/docstore"
)

// poolIface is the subset of *pgxpool.Pool the backend uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend is a PostgreSQL docstore.Backend.
type Backend struct {
	pool poolIface
}

// NewBackend creates a Backend over pool.
func NewBackend(pool poolIface) *Backend {
	return &Backend{pool: pool}
}

// Load implements docstore.Backend.
func (b *Backend) Load(ctx context.Context, id string) (docstore.Raw, error) {
	var raw docstore.Raw
	err := b.pool.QueryRow(ctx, `
		SELECT id, collection, version, body
		FROM documents
		WHERE id = $1
	`, id).Scan(&raw.ID, &raw.Collection, &raw.Version, &raw.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Raw{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Raw{}, oops.Code("DOCSTORE_LOAD_FAILED").
			With("operation", "load document").
			With("id", id).
			Wrap(err)
	}
	return raw, nil
}

// Query implements docstore.Backend.
func (b *Backend) Query(ctx context.Context, collection string, _ docstore.QueryOptions) ([]docstore.Raw, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, collection, version, body
		FROM documents
		WHERE collection = $1
		ORDER BY seq
	`, collection)
	if err != nil {
		return nil, oops.Code("DOCSTORE_QUERY_FAILED").
			With("operation", "query collection").
			With("collection", collection).
			Wrap(err)
	}
	defer rows.Close()

	var out []docstore.Raw
	for rows.Next() {
		var raw docstore.Raw
		if err := rows.Scan(&raw.ID, &raw.Collection, &raw.Version, &raw.Body); err != nil {
			return nil, oops.Code("DOCSTORE_QUERY_FAILED").
				With("operation", "scan document").
				With("collection", collection).
				Wrap(err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("DOCSTORE_QUERY_FAILED").
			With("operation", "iterate documents").
			With("collection", collection).
			Wrap(err)
	}
	return out, nil
}

// Commit implements docstore.Backend.
func (b *Backend) Commit(ctx context.Context, ops []docstore.Op) ([]int64, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	versions := make([]int64, len(ops))
	for i, op := range ops {
		v, err := b.apply(ctx, tx, op)
		if err != nil {
			return nil, err
		}
		versions[i] = v
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflictCode(err) {
			// No single document is to blame for a commit-time abort.
			return nil, &docstore.ConcurrencyError{}
		}
		return nil, oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return versions, nil
}

func (b *Backend) apply(ctx context.Context, tx pgx.Tx, op docstore.Op) (int64, error) {
	var (
		version int64
		err     error
	)
	switch op.Kind {
	case docstore.OpInsert:
		err = tx.QueryRow(ctx, `
			INSERT INTO documents (id, collection, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
			RETURNING version
		`, op.ID, op.Collection, op.Body).Scan(&version)
	case docstore.OpPut:
		if op.ExpectedVersion == 0 {
			err = tx.QueryRow(ctx, `
				INSERT INTO documents (id, collection, body)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET
					collection = EXCLUDED.collection,
					body = EXCLUDED.body,
					version = documents.version + 1,
					updated_at = now()
				RETURNING version
			`, op.ID, op.Collection, op.Body).Scan(&version)
		} else {
			err = tx.QueryRow(ctx, `
				UPDATE documents SET
					collection = $2,
					body = $3,
					version = version + 1,
					updated_at = now()
				WHERE id = $1 AND version = $4
				RETURNING version
			`, op.ID, op.Collection, op.Body, op.ExpectedVersion).Scan(&version)
		}
	case docstore.OpDelete:
		return 0, b.delete(ctx, tx, op)
	default:
		return 0, oops.Code("DOCSTORE_INVALID_OP").With("id", op.ID).Errorf("unknown op kind %d", op.Kind)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, b.conflict(ctx, tx, op)
	}
	if err != nil {
		if isConflictCode(err) {
			return 0, &docstore.ConcurrencyError{ID: op.ID, Expected: op.ExpectedVersion}
		}
		return 0, oops.Code("DOCSTORE_WRITE_FAILED").
			With("operation", op.Kind.String()).
			With("id", op.ID).
			Wrap(err)
	}
	return version, nil
}

func (b *Backend) delete(ctx context.Context, tx pgx.Tx, op docstore.Op) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if op.ExpectedVersion == 0 {
		tag, err = tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, op.ID)
	} else {
		tag, err = tx.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND version = $2`, op.ID, op.ExpectedVersion)
	}
	if err != nil {
		if isConflictCode(err) {
			return &docstore.ConcurrencyError{ID: op.ID, Expected: op.ExpectedVersion}
		}
		return oops.Code("DOCSTORE_WRITE_FAILED").
			With("operation", "delete").
			With("id", op.ID).
			Wrap(err)
	}
	if op.ExpectedVersion != 0 && tag.RowsAffected() == 0 {
		return b.conflict(ctx, tx, op)
	}
	return nil
}

// conflict builds the ConcurrencyError for an op whose expectation failed,
// reading the current version inside the same transaction.
func (b *Backend) conflict(ctx context.Context, tx pgx.Tx, op docstore.Op) error {
	var actual int64
	err := tx.QueryRow(ctx, `SELECT version FROM documents WHERE id = $1`, op.ID).Scan(&actual)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("DOCSTORE_WRITE_FAILED").
			With("operation", "read conflicting version").
			With("id", op.ID).
			Wrap(err)
	}
	expected := op.ExpectedVersion
	if op.Kind == docstore.OpInsert {
		expected = 0
	}
	return &docstore.ConcurrencyError{ID: op.ID, Expected: expected, Actual: actual}
}

// isConflictCode reports whether err is a PostgreSQL error that means
// another transaction won the race.
func isConflictCode(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	default:
		return false
	}
}

// Compile-time interface check.
var _ docstore.Backend = (*Backend)(nil)
