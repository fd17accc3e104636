// Package log provides the process-wide log sink for the acquisition
// runtime. The runtime and all drivers report through a single Logger;
// applications install their own sink on the Context or keep the default
// stderr writer.
package log

import (
	"strings"

	"github.com/acqkit/acqkit-go/pkg/errs"
)

// Level is the severity of a log message.
type Level int

const (
	// LevelNone suppresses all output.
	LevelNone Level = 0
	// LevelError reports errors.
	LevelError Level = 1
	// LevelWarn reports warnings.
	LevelWarn Level = 2
	// LevelInfo reports informational messages.
	LevelInfo Level = 3
	// LevelDebug reports debug messages.
	LevelDebug Level = 4
	// LevelSpew reports very noisy per-packet tracing.
	LevelSpew Level = 5
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelError:
		return "ERR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DBG"
	case LevelSpew:
		return "SPEW"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name as used in configuration files and
// command lines.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "none":
		return LevelNone, nil
	case "error", "err":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug", "dbg":
		return LevelDebug, nil
	case "spew":
		return LevelSpew, nil
	default:
		return LevelNone, errs.Argf("log.ParseLevel", "unknown log level %q", s)
	}
}

// Logger is the interface applications implement to receive runtime log
// messages. Implementations must be thread-safe; messages should be
// processed quickly or queued, since blocking slows down acquisition.
type Logger interface {
	Log(level Level, msg string)
}

// Func adapts a plain function to the Logger interface.
type Func func(level Level, msg string)

// Log calls the function.
func (f Func) Log(level Level, msg string) { f(level, msg) }

// NoopLogger discards all messages. Use when logging is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the message.
func (NoopLogger) Log(Level, string) {}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = Func(nil)
)
