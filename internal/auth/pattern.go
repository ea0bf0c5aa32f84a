// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

const globMeta = "*?[{"

// Matcher tests a value against a search pattern.
type Matcher func(value string) bool

// NewMatcher compiles pattern. A pattern containing glob metacharacters
// must match the whole value; any other pattern matches as a substring.
// Both ignore case. An empty pattern matches everything.
func NewMatcher(pattern string) (Matcher, error) {
	pattern = NormalizeValue(pattern)
	if pattern == "" {
		return func(string) bool { return true }, nil
	}
	if !strings.ContainsAny(pattern, globMeta) {
		return func(v string) bool { return strings.Contains(NormalizeValue(v), pattern) }, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_PATTERN").
			With("pattern", pattern).
			Wrapf(ErrInvalidInput, "invalid pattern: %v", err)
	}
	return func(v string) bool { return g.Match(NormalizeValue(v)) }, nil
}
