// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with its oops code and context.
// A nil err logs nothing; a nil logger logs to slog.Default.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context, so trace-aware handlers can
// attach the span of the failed operation.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{slog.String("error", err.Error())}
	if code := Code(err); code != "" {
		attrs = append(attrs, slog.String("code", code))
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if c := oopsErr.Context(); len(c) > 0 {
			attrs = append(attrs, slog.Any("context", c))
		}
	}
	logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}
