package observability

import (
	"log/slog"

	"github.com/couchcryptid/safe-speed-service/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the service logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "safe-speed")
}
