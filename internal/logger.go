package internal

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Logging is the minimal logger the engine needs for failures it cannot
// return, such as a rollback error while already unwinding.
type Logging interface {
	Printf(ctx context.Context, format string, v ...interface{})
}

type zerologger struct{}

func (zerologger) Printf(ctx context.Context, format string, v ...interface{}) {
	log.Logger.Warn().Ctx(ctx).Msgf(format, v...)
}

// Logger is the package-wide logger, zerolog-backed by default.
var Logger Logging = zerologger{}

func SetLogger(logger Logging) {
	Logger = logger
}
