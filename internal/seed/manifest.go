// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package seed loads membership seed manifests and applies them to the
// account and role stores.
package seed

import (
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/membership/internal/auth"
)

// Manifest is a seed file: a role tree and the accounts to create.
type Manifest struct {
	Namespace string `yaml:"namespace,omitempty" jsonschema:"description=Target namespace; defaults to the configured namespace"`
	Roles     []Role `yaml:"roles,omitempty"`
	Users     []User `yaml:"users,omitempty"`
}

// Role declares a role. Parent names a role declared earlier in the list.
type Role struct {
	Name   string `yaml:"name" jsonschema:"required,minLength=1,maxLength=256"`
	Parent string `yaml:"parent,omitempty" jsonschema:"maxLength=256"`
}

// User declares an account. An empty password is generated on creation.
type User struct {
	Username string   `yaml:"username" jsonschema:"required,minLength=1,maxLength=256"`
	Email    string   `yaml:"email,omitempty" jsonschema:"maxLength=256"`
	Password string   `yaml:"password,omitempty" jsonschema:"maxLength=128"`
	Roles    []string `yaml:"roles,omitempty"`
}

// Parse validates data against the manifest schema, decodes it, and checks
// the constraints the schema cannot express.
func Parse(data []byte) (*Manifest, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code("SEED_INVALID").Wrapf(err, "invalid YAML")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names and references.
func (m *Manifest) Validate() error {
	declared := make(map[string]bool, len(m.Roles))
	for i, r := range m.Roles {
		if _, err := auth.CheckRoleName(r.Name); err != nil {
			return oops.Code("SEED_INVALID").With("role", i).Wrap(err)
		}
		if r.Parent != "" && !declared[r.Parent] {
			return oops.Code("SEED_INVALID").
				With("role", r.Name).
				Errorf("role %q: parent %q must be declared before it", r.Name, r.Parent)
		}
		declared[r.Name] = true
	}

	seen := make(map[string]bool, len(m.Users))
	for i, u := range m.Users {
		if _, err := auth.CheckUsername(u.Username); err != nil {
			return oops.Code("SEED_INVALID").With("user", i).Wrap(err)
		}
		key := auth.NormalizeValue(u.Username)
		if seen[key] {
			return oops.Code("SEED_INVALID").
				With("user", u.Username).
				Errorf("user %q is declared twice", u.Username)
		}
		seen[key] = true
		for _, role := range u.Roles {
			if !declared[role] {
				return oops.Code("SEED_INVALID").
					With("user", u.Username).
					Errorf("user %q: role %q is not declared", u.Username, role)
			}
		}
	}
	return nil
}
