package obs

import (
	"log/slog"
	"os"
)

// NewLogger builds the daemon's structured logger: JSON to stdout, level
// configurable so operators can turn on debug output without a restart
// of the log pipeline itself.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
