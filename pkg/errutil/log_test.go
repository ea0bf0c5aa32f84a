// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/membership/pkg/errutil"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("RESERVATION_CONFLICT").
		With("id", "username/app1/alice").
		Errorf("something failed")

	errutil.LogError(logger, "create account failed", err)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "create account failed", entry["msg"])
	assert.Equal(t, "RESERVATION_CONFLICT", entry["code"])
	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok, "context is an object: %v", entry["context"])
	assert.Equal(t, "username/app1/alice", ctx["id"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLogError_NilError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "nothing", nil)
	assert.Zero(t, buf.Len())
}

type ctxKey struct{}

// recordingHandler captures the context of the last record.
type recordingHandler struct {
	slog.Handler
	ctx context.Context
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.ctx = ctx
	return h.Handler.Handle(ctx, r)
}

func TestLogErrorContext_PassesContext(t *testing.T) {
	var buf bytes.Buffer
	h := &recordingHandler{Handler: slog.NewJSONHandler(&buf, nil)}
	ctx := context.WithValue(context.Background(), ctxKey{}, "span")

	errutil.LogErrorContext(ctx, slog.New(h), "failed", errors.New("boom"))

	require.NotNil(t, h.ctx)
	assert.Equal(t, "span", h.ctx.Value(ctxKey{}))
}

func TestCode(t *testing.T) {
	assert.Empty(t, errutil.Code(nil))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	assert.Empty(t, errutil.Code(oops.Errorf("no code")))
	assert.Equal(t, "STORAGE_FAILED", errutil.Code(oops.Code("STORAGE_FAILED").Errorf("x")))
}
