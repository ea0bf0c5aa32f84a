// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/docstore"
	"github.com/holomush/membership/pkg/errutil"
)

// repository holds what both stores share.
type repository struct {
	store   *docstore.Store
	logger  *slog.Logger
	metrics *auth.Metrics
	now     func() time.Time
}

// Option configures a repository.
type Option func(*repository)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *auth.Metrics) Option {
	return func(r *repository) { r.metrics = m }
}

// WithClock replaces time.Now for timestamps and lockout decisions.
func WithClock(now func() time.Time) Option {
	return func(r *repository) {
		if now != nil {
			r.now = now
		}
	}
}

func newRepository(store *docstore.Store, opts []Option) (repository, error) {
	if store == nil {
		return repository{}, oops.Code("REPOSITORY_INVALID_CONFIG").Errorf("document store is required")
	}
	r := repository{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&r)
	}
	return r, nil
}

// finish records metrics and logs the outcome of operation. Storage
// failures are logged as errors; rejections only at debug.
func (r *repository) finish(ctx context.Context, operation string, start time.Time, errp *error) {
	err := *errp
	r.metrics.Observe(operation, start, err)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrStorage):
		errutil.LogErrorContext(ctx, r.logger, operation+" failed", err)
	default:
		r.logger.DebugContext(ctx, operation+" rejected", "error", err, "code", errutil.Code(err))
	}
}

// commit saves s, translating a conflict on one of candidates into the
// matching duplicate error. Any other failure is a storage error.
func (r *repository) commit(ctx context.Context, s *docstore.Session, operation string, candidates ...Reservation) error {
	err := s.SaveChanges(ctx)
	if err == nil {
		return nil
	}
	ce, ok := docstore.AsConcurrencyError(err)
	if !ok {
		return storageError(operation, err)
	}
	switch InterpretConflict(err, candidates...) {
	case DuplicateUsername:
		r.metrics.Conflict(string(FieldUsername))
		return oops.Code("ACCOUNT_DUPLICATE_USERNAME").
			With("operation", operation).
			With("id", ce.ID).
			Wrap(fmt.Errorf("%w: %w", auth.ErrDuplicateUsername, err))
	case DuplicateEmail:
		r.metrics.Conflict(string(FieldEmail))
		return oops.Code("ACCOUNT_DUPLICATE_EMAIL").
			With("operation", operation).
			With("id", ce.ID).
			Wrap(fmt.Errorf("%w: %w", auth.ErrDuplicateEmail, err))
	default:
		return oops.Code("CONCURRENT_MODIFICATION").
			With("operation", operation).
			With("id", ce.ID).
			Wrap(fmt.Errorf("%w: %w", auth.ErrStorage, err))
	}
}

// storageError wraps a store failure so it matches auth.ErrStorage and
// still exposes the cause.
func storageError(operation string, err error) error {
	return oops.Code("STORAGE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", auth.ErrStorage, err))
}

func notFound(code, kind, name string) error {
	return oops.Code(code).With(kind, name).Wrapf(auth.ErrNotFound, "%s %q not found", kind, name)
}

// accountByUsername resolves an account through its username reservation.
// Loads are consistent, so this never observes a stale index.
func (r *repository) accountByUsername(ctx context.Context, s *docstore.Session, namespace, username string) (*auth.Account, error) {
	return r.accountByReservation(ctx, s, FieldUsername, namespace, username)
}

func (r *repository) accountByReservation(ctx context.Context, s *docstore.Session, field Field, namespace, value string) (*auth.Account, error) {
	res, err := docstore.Load[Reservation](ctx, s, ReservationID(field, namespace, value))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFound("ACCOUNT_NOT_FOUND", string(field), value)
	}
	if err != nil {
		return nil, storageError("load reservation", err)
	}
	acct, err := docstore.Load[auth.Account](ctx, s, res.OwnerKey)
	if errors.Is(err, docstore.ErrNotFound) {
		r.logger.WarnContext(ctx, "reservation owner missing",
			"field", string(field), "namespace", namespace, "owner_key", res.OwnerKey)
		return nil, notFound("ACCOUNT_NOT_FOUND", string(field), value)
	}
	if err != nil {
		return nil, storageError("load account", err)
	}
	return acct, nil
}

// accountsWhere runs a non-stale query over the namespace's accounts.
func accountsWhere(ctx context.Context, s *docstore.Session, namespace string, match func(*auth.Account) bool) ([]*auth.Account, error) {
	accts, err := docstore.Query(ctx, s, CollectionAccounts, func(a *auth.Account) bool {
		return a.Namespace == namespace && (match == nil || match(a))
	}, docstore.NonStale())
	if err != nil {
		return nil, storageError("query accounts", err)
	}
	return accts, nil
}

// rolesWhere runs a non-stale query over the namespace's roles.
func rolesWhere(ctx context.Context, s *docstore.Session, namespace string, match func(*auth.Role) bool) ([]*auth.Role, error) {
	roles, err := docstore.Query(ctx, s, CollectionRoles, func(r *auth.Role) bool {
		return r.Namespace == namespace && (match == nil || match(r))
	}, docstore.NonStale())
	if err != nil {
		return nil, storageError("query roles", err)
	}
	return roles, nil
}

// roleByName resolves a role name in a namespace. Names are unique only
// under one parent, so a name may match several roles.
func roleByName(ctx context.Context, s *docstore.Session, namespace, name string) (*auth.Role, error) {
	roles, err := rolesWhere(ctx, s, namespace, func(r *auth.Role) bool { return r.Name == name })
	if err != nil {
		return nil, err
	}
	switch len(roles) {
	case 0:
		return nil, notFound("ROLE_NOT_FOUND", "role", name)
	case 1:
		return roles[0], nil
	default:
		ids := make([]string, len(roles))
		for i, role := range roles {
			ids[i] = role.ID
		}
		return nil, oops.Code("ROLE_AMBIGUOUS").
			With("role", name).
			With("matches", strings.Join(ids, ",")).
			Wrapf(auth.ErrAmbiguousRole, "role name %q matches %d roles", name, len(roles))
	}
}
