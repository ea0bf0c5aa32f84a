// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package document

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/docstore"
)

// RoleRepository implements auth.RoleStore.
type RoleRepository struct {
	repository
}

// NewRoleRepository creates a RoleRepository.
func NewRoleRepository(store *docstore.Store, opts ...Option) (*RoleRepository, error) {
	base, err := newRepository(store, opts)
	if err != nil {
		return nil, err
	}
	return &RoleRepository{repository: base}, nil
}

// CreateRole implements auth.RoleStore. The role identifier is derived
// from its position, so creating the same role twice overwrites it with
// identical content.
func (r *RoleRepository) CreateRole(ctx context.Context, namespace, name, parent string) (_ *auth.Role, err error) {
	defer r.finish(ctx, "create_role", time.Now(), &err)

	s := r.store.OpenSession()
	defer s.Close()

	var parentRole *auth.Role
	if parent != "" {
		if parent, err = auth.CheckRoleName(parent); err != nil {
			return nil, err
		}
		if parentRole, err = roleByName(ctx, s, namespace, parent); err != nil {
			return nil, err
		}
	}
	role, err := auth.NewRole(namespace, name, parentRole)
	if err != nil {
		return nil, err
	}
	if err := s.Put(role.ID, CollectionRoles, role); err != nil {
		return nil, storageError("stage role", err)
	}
	if err := r.commit(ctx, s, "create role"); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "role created", "namespace", namespace, "role", role.Name, "id", role.ID)
	return role, nil
}

// DeleteRole implements auth.RoleStore.
func (r *RoleRepository) DeleteRole(ctx context.Context, namespace, name string, force bool) (_ bool, err error) {
	defer r.finish(ctx, "delete_role", time.Now(), &err)

	if name, err = auth.CheckRoleName(name); err != nil {
		return false, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	role, err := roleByName(ctx, s, namespace, name)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	children, err := rolesWhere(ctx, s, namespace, func(c *auth.Role) bool { return c.ParentID == role.ID })
	if err != nil {
		return false, err
	}
	if len(children) > 0 {
		return false, oops.Code("ROLE_HAS_CHILDREN").
			With("role", name).
			With("children", len(children)).
			Wrap(auth.ErrRoleHasChildren)
	}

	members, err := accountsWhere(ctx, s, namespace, func(a *auth.Account) bool { return a.HasRole(role.ID) })
	if err != nil {
		return false, err
	}
	if len(members) > 0 && !force {
		return false, oops.Code("ROLE_POPULATED").
			With("role", name).
			With("members", len(members)).
			Wrap(auth.ErrRolePopulated)
	}
	for _, m := range members {
		m.RemoveRole(role.ID)
		if err := s.Put(m.Key, CollectionAccounts, m); err != nil {
			return false, storageError("stage member", err)
		}
	}
	if err := s.Delete(role.ID); err != nil {
		return false, storageError("stage role delete", err)
	}
	if err := r.commit(ctx, s, "delete role"); err != nil {
		return false, err
	}
	r.logger.InfoContext(ctx, "role deleted", "namespace", namespace, "role", name, "members_removed", len(members))
	return true, nil
}

// RoleExists implements auth.RoleStore.
func (r *RoleRepository) RoleExists(ctx context.Context, namespace, name string) (_ bool, err error) {
	defer r.finish(ctx, "role_exists", time.Now(), &err)

	if name, err = auth.CheckRoleName(name); err != nil {
		return false, err
	}
	s := r.store.OpenSession()
	defer s.Close()

	roles, err := rolesWhere(ctx, s, namespace, func(role *auth.Role) bool { return role.Name == name })
	if err != nil {
		return false, err
	}
	return len(roles) > 0, nil
}

// AllRoles implements auth.RoleStore.
func (r *RoleRepository) AllRoles(ctx context.Context, namespace string) (_ []*auth.Role, err error) {
	defer r.finish(ctx, "all_roles", time.Now(), &err)

	s := r.store.OpenSession()
	defer s.Close()
	return rolesWhere(ctx, s, namespace, nil)
}

// AddUsersToRoles implements auth.RoleStore.
func (r *RoleRepository) AddUsersToRoles(ctx context.Context, namespace string, usernames, roleNames []string) (err error) {
	defer r.finish(ctx, "add_users_to_roles", time.Now(), &err)
	return r.mutateMembership(ctx, namespace, usernames, roleNames, (*auth.Account).AddRole)
}

// RemoveUsersFromRoles implements auth.RoleStore.
func (r *RoleRepository) RemoveUsersFromRoles(ctx context.Context, namespace string, usernames, roleNames []string) (err error) {
	defer r.finish(ctx, "remove_users_from_roles", time.Now(), &err)
	return r.mutateMembership(ctx, namespace, usernames, roleNames, (*auth.Account).RemoveRole)
}

// mutateMembership resolves every user and role before staging anything,
// applies change to each pair, and commits once.
func (r *RoleRepository) mutateMembership(ctx context.Context, namespace string, usernames, roleNames []string,
	change func(*auth.Account, string) bool,
) error {
	if len(usernames) == 0 || len(roleNames) == 0 {
		return nil
	}
	usernames, err := auth.CheckUsernames(usernames)
	if err != nil {
		return err
	}
	roleNames, err = auth.CheckRoleNames(roleNames)
	if err != nil {
		return err
	}

	s := r.store.OpenSession()
	defer s.Close()

	roles := make([]*auth.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := roleByName(ctx, s, namespace, name)
		if err != nil {
			return err
		}
		roles = append(roles, role)
	}

	accts := make(map[string]*auth.Account, len(usernames))
	order := make([]string, 0, len(usernames))
	for _, username := range usernames {
		acct, err := r.accountByUsername(ctx, s, namespace, username)
		if err != nil {
			return err
		}
		if _, seen := accts[acct.Key]; !seen {
			accts[acct.Key] = acct
			order = append(order, acct.Key)
		}
	}

	for _, key := range order {
		acct := accts[key]
		changed := false
		for _, role := range roles {
			if change(acct, role.ID) {
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := s.Put(acct.Key, CollectionAccounts, acct); err != nil {
			return storageError("stage member", err)
		}
	}
	return r.commit(ctx, s, "update role membership")
}

// UsersInRole implements auth.RoleStore. An unknown role has no members.
func (r *RoleRepository) UsersInRole(ctx context.Context, namespace, roleName string) (_ []string, err error) {
	defer r.finish(ctx, "users_in_role", time.Now(), &err)
	return r.members(ctx, namespace, roleName, nil)
}

// FindUsersInRole implements auth.RoleStore.
func (r *RoleRepository) FindUsersInRole(ctx context.Context, namespace, roleName, usernameToMatch string) (_ []string, err error) {
	defer r.finish(ctx, "find_users_in_role", time.Now(), &err)

	match, err := auth.NewMatcher(usernameToMatch)
	if err != nil {
		return nil, err
	}
	return r.members(ctx, namespace, roleName, match)
}

func (r *RoleRepository) members(ctx context.Context, namespace, roleName string, match auth.Matcher) ([]string, error) {
	roleName, err := auth.CheckRoleName(roleName)
	if err != nil {
		return nil, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	role, err := roleByName(ctx, s, namespace, roleName)
	if errors.Is(err, auth.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	accts, err := accountsWhere(ctx, s, namespace, func(a *auth.Account) bool {
		return a.HasRole(role.ID) && (match == nil || match(a.Username))
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(accts))
	for i, a := range accts {
		names[i] = a.Username
	}
	return names, nil
}

// RolesForUser implements auth.RoleStore. Identifiers of roles that no
// longer exist are skipped.
func (r *RoleRepository) RolesForUser(ctx context.Context, namespace, username string) (_ []string, err error) {
	defer r.finish(ctx, "roles_for_user", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return nil, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if err != nil {
		return nil, err
	}
	if len(acct.Roles) == 0 {
		return []string{}, nil
	}
	roles, err := rolesWhere(ctx, s, namespace, func(role *auth.Role) bool { return acct.HasRole(role.ID) })
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}
	out := make([]string, 0, len(acct.Roles))
	for _, id := range acct.Roles {
		if name, ok := names[id]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// IsUserInRole implements auth.RoleStore. Unknown users and roles are
// reported as not in role.
func (r *RoleRepository) IsUserInRole(ctx context.Context, namespace, username, roleName string) (_ bool, err error) {
	defer r.finish(ctx, "is_user_in_role", time.Now(), &err)

	if username, err = auth.CheckUsername(username); err != nil {
		return false, err
	}
	if roleName, err = auth.CheckRoleName(roleName); err != nil {
		return false, err
	}

	s := r.store.OpenSession()
	defer s.Close()

	acct, err := r.accountByUsername(ctx, s, namespace, username)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	role, err := roleByName(ctx, s, namespace, roleName)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.HasRole(role.ID), nil
}

// Compile-time interface check.
var _ auth.RoleStore = (*RoleRepository)(nil)
