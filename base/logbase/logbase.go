// Package logbase provides logging helpers on top of
// log/slog.
package logbase

import (
	"context"
	"log/slog"
	"os"
)

// Fatal logs msg at error level and terminates the
// process with exit status 1.
func Fatal(log *slog.Logger, msg string, attrs ...slog.Attr) {
	FatalContext(context.Background(), log, msg, attrs...)
}

// FatalContext is like Fatal, but it passes ctx on to the
// log handler.
func FatalContext(ctx context.Context, log *slog.Logger, msg string, attrs ...slog.Attr) {
	log.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	os.Exit(1)
}
