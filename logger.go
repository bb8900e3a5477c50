package orb

import (
	"log/slog"

	"github.com/gogpu/orb/internal/logger"
)

// SetLogger configures the logger for orb and all its sub-packages.
// By default, orb produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by orb:
//   - [slog.LevelDebug]: per-stage dispatches, readback polling
//   - [slog.LevelInfo]: pipeline construction
//   - [slog.LevelWarn]: resource release errors
//
// Example:
//
//	orb.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Set(l)
}

// Logger returns the current logger used by orb.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logger.L()
}
