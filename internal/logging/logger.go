package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/config"
)

// NewLogger creates a structured logger carrying the service and worker
// identity from the config. Empty fields are left out.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.WorkerID != "" {
		ctx = ctx.Str("worker_id", cfg.WorkerID)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return ctx.Logger().Level(level)
}
