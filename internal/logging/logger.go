// Package logging holds the process-global logger used by all relmap
// packages. The library stays silent by default; embedding applications
// opt in by installing their own zerolog.Logger.
package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger is the global logger for the module. It discards everything
// until SetGlobalLogger installs a real sink.
var Logger zerolog.Logger

func init() {
	SetGlobalLogger(zerolog.Nop())
}

// SetGlobalLogger replaces the global logger and wires it as the default
// context logger so zerolog.Ctx falls back to it.
func SetGlobalLogger(logger zerolog.Logger) {
	Logger = logger
	zerolog.DefaultContextLogger = &Logger
}

// Component returns a child logger tagged with the originating component,
// e.g. "memory" or "container".
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func With() zerolog.Context { return Logger.With() }

func Err(err error) *zerolog.Event { return Logger.Err(err) }

func Trace() *zerolog.Event { return Logger.Trace() }

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }

func Ctx(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }
