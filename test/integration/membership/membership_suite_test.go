// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package membership_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/auth/document"
	"github.com/holomush/membership/internal/docstore"
	pgstore "github.com/holomush/membership/internal/docstore/postgres"
)

func TestMembership(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Membership PostgreSQL Integration Suite")
}

// testEnv holds all resources needed for integration tests.
type testEnv struct {
	ctx       context.Context
	connStr   string
	pool      *pgxpool.Pool
	container testcontainers.Container
	backend   *pgstore.Backend
	store     *docstore.Store

	Accounts *document.AccountRepository
	Roles    *document.RoleRepository
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

var _ = BeforeEach(func() {
	_, err := env.pool.Exec(env.ctx, "TRUNCATE documents")
	Expect(err).NotTo(HaveOccurred())
})

func setupTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("membership_test"),
		postgres.WithUsername("membership"),
		postgres.WithPassword("membership"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := pgstore.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	upErr := migrator.Up()
	_ = migrator.Close()
	if upErr != nil {
		_ = container.Terminate(ctx)
		return nil, upErr
	}

	pool, err := pgstore.Connect(ctx, connStr, 10*time.Second)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	backend := pgstore.NewBackend(pool)
	store := docstore.New(backend)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := auth.NewHasher(auth.AlgorithmSHA256)
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	gate := auth.NewGate(auth.Policies{
		Default: auth.DefaultPolicy(),
		Namespaces: map[string]auth.Policy{
			"unique": func() auth.Policy {
				p := auth.DefaultPolicy()
				p.RequiresUniqueEmail = true
				return p
			}(),
		},
	})
	accounts, err := document.NewAccountRepository(store, gate, hasher, document.WithLogger(logger))
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	roles, err := document.NewRoleRepository(store, document.WithLogger(logger))
	if err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &testEnv{
		ctx:       ctx,
		connStr:   connStr,
		pool:      pool,
		container: container,
		backend:   backend,
		store:     store,
		Accounts:  accounts,
		Roles:     roles,
	}, nil
}

func (e *testEnv) cleanup() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}
