package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// WriterLogger writes messages to an io.Writer, one line per message,
// filtered by a minimum level. It is the default sink installed by a new
// Context, writing to stderr at LevelWarn.
type WriterLogger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// NewWriterLogger creates a WriterLogger writing to w, keeping messages
// at or below max.
func NewWriterLogger(w io.Writer, max Level) *WriterLogger {
	return &WriterLogger{w: w, level: max}
}

// Default returns the stderr logger used when no sink is installed.
func Default() *WriterLogger {
	return NewWriterLogger(os.Stderr, LevelWarn)
}

// SetLevel changes the maximum level that is written.
func (l *WriterLogger) SetLevel(max Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = max
}

// Log writes the message if its level passes the filter.
func (l *WriterLogger) Log(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level || level == LevelNone {
		return
	}
	fmt.Fprintf(l.w, "%s %s: %s\n",
		time.Now().Format("15:04:05.000"), level, msg)
}

// Compile-time interface satisfaction check.
var _ Logger = (*WriterLogger)(nil)
