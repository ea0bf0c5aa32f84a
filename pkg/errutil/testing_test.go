// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"fmt"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/membership/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("ACCOUNT_NOT_FOUND").Errorf("test error")
	errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
}

func TestAssertErrorCode_WrappedChain(t *testing.T) {
	inner := oops.Code("RESERVATION_CONFLICT").Errorf("taken")
	err := fmt.Errorf("create: %w", oops.With("username", "alice").Wrap(inner))
	errutil.AssertErrorCode(t, err, "RESERVATION_CONFLICT")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("username", "alice").Errorf("test error")
	errutil.AssertErrorContext(t, err, "username", "alice")
}
