// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"path"
	"strings"
)

// RoleIDPrefix prefixes the identifier of every root role.
const RoleIDPrefix = "authorization/roles/"

// Role is a named group of accounts. Roles form a tree through ParentID.
type Role struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
}

// NewRole creates a Role with its identifier derived from namespace, name,
// and parent. The name is checked with CheckRoleName. A non-nil parent
// must belong to the same namespace.
func NewRole(namespace, name string, parent *Role) (*Role, error) {
	name, err := CheckRoleName(name)
	if err != nil {
		return nil, err
	}
	r := &Role{Namespace: namespace, Name: name}
	if parent != nil {
		if parent.Namespace != namespace {
			return nil, invalidf(ErrInvalidRoleName, "AUTH_INVALID_ROLE_PARENT",
				"parent role %q belongs to another namespace", parent.Name)
		}
		r.ParentID = parent.ID
		r.ID = parent.ID + "/" + name
		return r, nil
	}
	if ns := NormalizeNamespace(namespace); ns != "" {
		r.ID = RoleIDPrefix + ns + "/" + name
	} else {
		r.ID = RoleIDPrefix + name
	}
	return r, nil
}

// RoleNameFromID returns the last segment of a role identifier.
func RoleNameFromID(id string) string {
	return path.Base(strings.TrimSuffix(id, "/"))
}

// RoleStore manages roles and role membership.
type RoleStore interface {
	// CreateRole stores a role. Creating an existing role is a no-op.
	// parent names an existing role in the namespace, or is empty.
	CreateRole(ctx context.Context, namespace, name, parent string) (*Role, error)

	// DeleteRole removes a role. Returns false if it does not exist.
	// A role with members is only deleted when force is set, in which case
	// it is removed from every member in the same commit.
	DeleteRole(ctx context.Context, namespace, name string, force bool) (bool, error)

	// RoleExists reports whether a role named name exists.
	RoleExists(ctx context.Context, namespace, name string) (bool, error)

	// AllRoles returns every role in the namespace.
	AllRoles(ctx context.Context, namespace string) ([]*Role, error)

	// AddUsersToRoles gives every user every role in one commit.
	AddUsersToRoles(ctx context.Context, namespace string, usernames, roleNames []string) error

	// RemoveUsersFromRoles takes every role from every user in one commit.
	RemoveUsersFromRoles(ctx context.Context, namespace string, usernames, roleNames []string) error

	// UsersInRole returns the usernames of the role's members.
	UsersInRole(ctx context.Context, namespace, roleName string) ([]string, error)

	// FindUsersInRole returns members whose username matches usernameToMatch.
	FindUsersInRole(ctx context.Context, namespace, roleName, usernameToMatch string) ([]string, error)

	// RolesForUser returns the names of the roles username holds.
	RolesForUser(ctx context.Context, namespace, username string) ([]string, error)

	// IsUserInRole reports whether username holds roleName.
	IsUserInRole(ctx context.Context, namespace, username, roleName string) (bool, error)
}
