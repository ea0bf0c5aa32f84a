// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/auth/document"
	"github.com/holomush/membership/internal/docstore"
	"github.com/holomush/membership/internal/docstore/memory"
)

const (
	nsApp    = "app1"
	nsUnique = "unique"
)

// testingT is satisfied by *testing.T and GinkgoT().
type testingT interface {
	require.TestingT
	Helper()
	Cleanup(func())
}

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// fixture wires both repositories over one in-memory store.
type fixture struct {
	store    *docstore.Store
	accounts *document.AccountRepository
	roles    *document.RoleRepository
	clock    *clock
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func testPolicies() auth.Policies {
	unique := auth.DefaultPolicy()
	unique.RequiresUniqueEmail = true
	strict := auth.DefaultPolicy()
	strict.Lockout = auth.Lockout{MaxInvalidAttempts: 3, Duration: time.Minute}
	return auth.Policies{
		Default: auth.DefaultPolicy(),
		Namespaces: map[string]auth.Policy{
			nsUnique: unique,
			"strict": strict,
		},
	}
}

func newFixtureWith(t testingT, backend docstore.Backend, hasher auth.PasswordHasher, opts ...document.Option) *fixture {
	t.Helper()
	store := docstore.New(backend, docstore.WithConsistencyTimeout(2*time.Second))
	c := &clock{now: testNow}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]document.Option{document.WithLogger(logger), document.WithClock(c.Now)}, opts...)

	accounts, err := document.NewAccountRepository(store, auth.NewGate(testPolicies()), hasher, opts...)
	require.NoError(t, err)
	roles, err := document.NewRoleRepository(store, opts...)
	require.NoError(t, err)
	return &fixture{store: store, accounts: accounts, roles: roles, clock: c}
}

func newFixture(t testingT, opts ...document.Option) *fixture {
	t.Helper()
	backend := memory.New()
	t.Cleanup(func() { _ = backend.Close() })
	hasher, err := auth.NewHasher(auth.AlgorithmSHA256)
	require.NoError(t, err)
	return newFixtureWith(t, backend, hasher, opts...)
}

func (f *fixture) mustCreate(t testingT, ns, username, password, email string) *auth.Account {
	t.Helper()
	acct, err := f.accounts.Create(context.Background(), ns, username, password, email)
	require.NoError(t, err)
	return acct
}

func (f *fixture) mustRole(t testingT, ns, name, parent string) *auth.Role {
	t.Helper()
	role, err := f.roles.CreateRole(context.Background(), ns, name, parent)
	require.NoError(t, err)
	return role
}

// reservationIDs returns the identifiers of every stored reservation.
func (f *fixture) reservationIDs(t testingT) map[string]string {
	t.Helper()
	res, err := docstore.Query[document.Reservation](context.Background(), f.store.OpenSession(),
		document.CollectionReservations, nil, docstore.NonStale())
	require.NoError(t, err)
	out := make(map[string]string, len(res))
	for _, r := range res {
		out[r.ID()] = r.OwnerKey
	}
	return out
}

// storedAccount loads an account straight from the store.
func (f *fixture) storedAccount(t testingT, key string) *auth.Account {
	t.Helper()
	acct, err := docstore.Load[auth.Account](context.Background(), f.store.OpenSession(), key)
	require.NoError(t, err)
	return acct
}
