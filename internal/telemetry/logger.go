// Package telemetry implements the Telemetry component (L, expansion):
// structured logging and Prometheus metrics. Grounded on the teacher's
// monitoring/logger.go (zerolog construction, level/format switch,
// Caller(), a "service" field) and metrics.go (package-level Prometheus
// collectors registered in init()), renamed to Vortex's domain.
package telemetry

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level        int    // 0 (most verbose) .. 8; mapped onto zerolog's levels
	Format       string // "json" or "pretty"
	InstanceName string
}

// NewLogger builds a structured logger: JSON or console output, RFC3339
// timestamps, caller info, and an instance-identifying "service" field —
// letting operators tell two mirrored Vortex processes apart in shared log
// aggregation.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	zerolog.SetGlobalLevel(levelFromCLI(cfg.Level))

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	name := cfg.InstanceName
	if name == "" {
		name = "vortex"
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", name).
		Logger()
}

// levelFromCLI maps the CLI's 0..8 verbosity scale (0 = everything, 8 =
// almost nothing) onto zerolog's level constants. The external interface
// reserves the full range for interop with the original tool's -l/-L
// flags; Vortex only distinguishes five bands within it.
func levelFromCLI(level int) zerolog.Level {
	switch {
	case level <= 0:
		return zerolog.TraceLevel
	case level <= 2:
		return zerolog.DebugLevel
	case level <= 4:
		return zerolog.InfoLevel
	case level <= 6:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// LogPanic logs a recovered panic with its full stack trace. The worker
// pool recovers per-task panics inline (a single bad task must not sink the
// whole shard), but the server's accept loop, its per-connection read
// loops, and the peer link's reconnect loop all route their recover through
// here, so a panic escaping any of them is classified and logged the same
// way.
func LogPanic(logger zerolog.Logger, panicValue any, msg string) {
	logger.Error().
		Interface("panic_value", panicValue).
		Str("stack_trace", string(debug.Stack())).
		Msg(msg)
}
