// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Parameter length limits, in characters.
const (
	MaxUsernameLength = 256
	MaxEmailLength    = 256
	MaxPasswordLength = 128
	MaxRoleNameLength = 256
)

// DefaultMinPasswordLength is the minimum password length when no policy
// sets one.
const DefaultMinPasswordLength = 7

// Policy holds the rules of one namespace.
type Policy struct {
	MinPasswordLength   int
	MinNonAlphanumeric  int
	PasswordPattern     *regexp.Regexp
	RequiresUniqueEmail bool
	Lockout             Lockout
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength: DefaultMinPasswordLength,
		Lockout: Lockout{
			MaxInvalidAttempts: DefaultMaxInvalidAttempts,
			Duration:           DefaultLockoutDuration,
			Window:             DefaultAttemptWindow,
		},
	}
}

// Policies maps namespaces to their policy.
type Policies struct {
	Default    Policy
	Namespaces map[string]Policy
}

// For returns the policy of namespace.
func (p Policies) For(namespace string) Policy {
	if np, ok := p.Namespaces[namespace]; ok {
		return np
	}
	return p.Default
}

// PasswordValidator is an extra check run after the built-in password
// rules. A non-nil error vetoes the password; its message is the reason.
type PasswordValidator func(ctx context.Context, username, password string, isNew bool) error

// Gate validates operation input before any store access. The zero value
// is not usable; create one with NewGate.
type Gate struct {
	policies  Policies
	validator PasswordValidator
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithPasswordValidator installs a custom password check.
func WithPasswordValidator(v PasswordValidator) GateOption {
	return func(g *Gate) { g.validator = v }
}

// NewGate creates a Gate over policies.
func NewGate(policies Policies, opts ...GateOption) *Gate {
	g := &Gate{policies: policies}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the policy of namespace.
func (g *Gate) Policy(namespace string) Policy {
	return g.policies.For(namespace)
}

// CreateInput is the cleaned input of an account creation.
type CreateInput struct {
	Username string
	Password string
	Email    string
}

// CheckCreate validates account creation input and returns it trimmed.
func (g *Gate) CheckCreate(ctx context.Context, namespace, username, password, email string) (CreateInput, error) {
	policy := g.Policy(namespace)

	password, err := checkParam(password, true, false, MaxPasswordLength, ErrInvalidPassword, "AUTH_INVALID_PASSWORD", "password")
	if err != nil {
		return CreateInput{}, err
	}
	username, err = CheckUsername(username)
	if err != nil {
		return CreateInput{}, err
	}
	email, err = checkParam(email, policy.RequiresUniqueEmail, false, MaxEmailLength, ErrInvalidEmail, "AUTH_INVALID_EMAIL", "email")
	if err != nil {
		return CreateInput{}, err
	}
	if err := g.checkPasswordRules(ctx, policy, username, password, true); err != nil {
		return CreateInput{}, err
	}
	return CreateInput{Username: username, Password: password, Email: email}, nil
}

// CheckNewPassword validates a replacement password for an existing account
// and returns it trimmed.
func (g *Gate) CheckNewPassword(ctx context.Context, namespace, username, password string) (string, error) {
	password, err := checkParam(password, true, false, MaxPasswordLength, ErrInvalidPassword, "AUTH_INVALID_PASSWORD", "password")
	if err != nil {
		return "", err
	}
	if err := g.checkPasswordRules(ctx, g.Policy(namespace), username, password, false); err != nil {
		return "", err
	}
	return password, nil
}

// CheckPassword validates a supplied (not new) password parameter and
// returns it trimmed.
func CheckPassword(password string) (string, error) {
	return checkParam(password, true, false, MaxPasswordLength, ErrInvalidPassword, "AUTH_INVALID_PASSWORD", "password")
}

// CheckEmail validates an email parameter for namespace and returns it trimmed.
func (g *Gate) CheckEmail(namespace, email string) (string, error) {
	return checkParam(email, g.Policy(namespace).RequiresUniqueEmail, false, MaxEmailLength, ErrInvalidEmail, "AUTH_INVALID_EMAIL", "email")
}

// CheckUsername validates a username parameter and returns it trimmed.
func CheckUsername(username string) (string, error) {
	return checkParam(username, true, true, MaxUsernameLength, ErrInvalidUsername, "AUTH_INVALID_USERNAME", "username")
}

// CheckRoleName validates a role name and returns it trimmed. Role names
// become identifier segments, so "/" is rejected as well as ",".
func CheckRoleName(name string) (string, error) {
	name, err := checkParam(name, true, true, MaxRoleNameLength, ErrInvalidRoleName, "AUTH_INVALID_ROLE_NAME", "role name")
	if err != nil {
		return "", err
	}
	if strings.Contains(name, "/") {
		return "", invalidf(ErrInvalidRoleName, "AUTH_INVALID_ROLE_NAME", "role name cannot contain '/'")
	}
	return name, nil
}

// CheckRoleNames validates every name in a list.
func CheckRoleNames(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		clean, err := CheckRoleName(n)
		if err != nil {
			return nil, err
		}
		out[i] = clean
	}
	return out, nil
}

// CheckUsernames validates every name in a list.
func CheckUsernames(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		clean, err := CheckUsername(n)
		if err != nil {
			return nil, err
		}
		out[i] = clean
	}
	return out, nil
}

func (g *Gate) checkPasswordRules(ctx context.Context, policy Policy, username, password string, isNew bool) error {
	if n := utf8.RuneCountInString(password); n < policy.MinPasswordLength {
		return invalidf(ErrInvalidPassword, "AUTH_PASSWORD_TOO_SHORT",
			"password must be at least %d characters", policy.MinPasswordLength)
	}
	if CountNonAlphanumeric(password) < policy.MinNonAlphanumeric {
		return invalidf(ErrInvalidPassword, "AUTH_PASSWORD_NEEDS_SYMBOLS",
			"password must contain at least %d non-alphanumeric characters", policy.MinNonAlphanumeric)
	}
	if policy.PasswordPattern != nil && !policy.PasswordPattern.MatchString(password) {
		return invalidf(ErrInvalidPassword, "AUTH_PASSWORD_PATTERN",
			"password does not match the required pattern")
	}
	if g.validator != nil {
		if err := g.validator(ctx, username, password, isNew); err != nil {
			return oops.Code("AUTH_PASSWORD_REJECTED").
				With("reason", err.Error()).
				Wrapf(ErrInvalidPassword, "password rejected: %s", err.Error())
		}
	}
	return nil
}

// CountNonAlphanumeric counts the runes that are neither letters nor digits.
func CountNonAlphanumeric(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// checkParam trims value and applies the required, comma, and length rules.
func checkParam(value string, required, noCommas bool, maxLen int, sentinel error, code, field string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return "", invalidf(sentinel, code, "%s is required", field)
		}
		return "", nil
	}
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		return "", invalidf(sentinel, code, "%s must be at most %d characters", field, maxLen)
	}
	if noCommas && strings.Contains(value, ",") {
		return "", invalidf(sentinel, code, "%s cannot contain ','", field)
	}
	return value, nil
}

func invalidf(sentinel error, code, format string, args ...any) error {
	return oops.Code(code).Wrapf(sentinel, format, args...)
}
