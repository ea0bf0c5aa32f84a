// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package seed

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
)

// PasswordGenerator returns a password acceptable in namespace.
type PasswordGenerator func(ctx context.Context, namespace, username string) (string, error)

// Result reports what Apply changed.
type Result struct {
	Namespace    string
	Roles        []string
	UsersCreated []string
	UsersSkipped []string

	// Generated maps created usernames to generated passwords.
	Generated map[string]string
}

// Applier applies manifests.
type Applier struct {
	accounts  auth.AccountStore
	roles     auth.RoleStore
	passwords PasswordGenerator
	logger    *slog.Logger
}

// NewApplier creates an Applier. passwords is used for users declared
// without one.
func NewApplier(accounts auth.AccountStore, roles auth.RoleStore, passwords PasswordGenerator, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{accounts: accounts, roles: roles, passwords: passwords, logger: logger}
}

// LoadFile reads and parses a manifest file.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return m, nil
}

// Apply creates the manifest's roles and users in namespace, unless the
// manifest names its own. Running it again changes nothing: roles are
// upserted, existing users are skipped, and role grants are idempotent.
func (a *Applier) Apply(ctx context.Context, namespace string, m *Manifest) (*Result, error) {
	if m.Namespace != "" {
		namespace = m.Namespace
	}
	res := &Result{Namespace: namespace, Generated: map[string]string{}}

	for _, r := range m.Roles {
		if _, err := a.roles.CreateRole(ctx, namespace, r.Name, r.Parent); err != nil {
			return res, oops.Code("SEED_FAILED").With("role", r.Name).Wrap(err)
		}
		res.Roles = append(res.Roles, r.Name)
	}

	for _, u := range m.Users {
		created, err := a.applyUser(ctx, namespace, u, res)
		if err != nil {
			return res, err
		}
		if created {
			res.UsersCreated = append(res.UsersCreated, u.Username)
		} else {
			res.UsersSkipped = append(res.UsersSkipped, u.Username)
		}
		if len(u.Roles) > 0 {
			if err := a.roles.AddUsersToRoles(ctx, namespace, []string{u.Username}, u.Roles); err != nil {
				return res, oops.Code("SEED_FAILED").With("user", u.Username).Wrap(err)
			}
		}
	}

	a.logger.InfoContext(ctx, "seed applied",
		"namespace", namespace,
		"roles", len(res.Roles),
		"users_created", len(res.UsersCreated),
		"users_skipped", len(res.UsersSkipped))
	return res, nil
}

func (a *Applier) applyUser(ctx context.Context, namespace string, u User, res *Result) (bool, error) {
	password := u.Password
	if password == "" {
		if a.passwords == nil {
			return false, oops.Code("SEED_FAILED").
				With("user", u.Username).
				Errorf("user %q has no password and no generator is configured", u.Username)
		}
		var err error
		if password, err = a.passwords(ctx, namespace, u.Username); err != nil {
			return false, oops.Code("SEED_FAILED").With("user", u.Username).Wrap(err)
		}
	}

	_, err := a.accounts.Create(ctx, namespace, u.Username, password, u.Email)
	switch {
	case err == nil:
		if u.Password == "" {
			res.Generated[u.Username] = password
		}
		return true, nil
	case errors.Is(err, auth.ErrDuplicateUsername):
		a.logger.DebugContext(ctx, "seed user exists", "namespace", namespace, "username", u.Username)
		return false, nil
	default:
		return false, oops.Code("SEED_FAILED").With("user", u.Username).Wrap(err)
	}
}
