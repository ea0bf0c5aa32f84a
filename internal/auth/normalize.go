// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeValue trims and case-folds a unique value so that "Alice" and
// " alice" compete for the same reservation.
func NormalizeValue(value string) string {
	// A Caser is stateful; one per call.
	return cases.Fold().String(strings.TrimSpace(value))
}

// NormalizeNamespace strips path separators so a namespace can be embedded
// in a document identifier as a single segment.
func NormalizeNamespace(namespace string) string {
	return strings.ReplaceAll(namespace, "/", "")
}
