// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package telemetry

import (
	"context"
	"log/slog"
)

// EscalationThreshold is the number of consecutive best-effort write failures
// after which failures are logged at Error instead of Warn.
const EscalationThreshold = 3

// LogEscalating logs a best-effort failure at Warn, or at Error once
// consecutive reaches EscalationThreshold.
func LogEscalating(ctx context.Context, log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelWarn
	if consecutive >= EscalationThreshold {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, msg, attrs...)
}
