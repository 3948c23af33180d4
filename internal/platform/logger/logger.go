package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Services and handlers receive it by
// injection; none of them log through the global default.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
