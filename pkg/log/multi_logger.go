package log

// MultiLogger fans messages out to several sinks, for example a level
// filter on stderr plus an slog bridge into the application's logs. A
// sink below the message's level simply ignores it; MultiLogger itself
// does no filtering.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a MultiLogger over the given sinks. Nil sinks
// are skipped.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Log forwards the message to every sink in order.
func (m *MultiLogger) Log(level Level, msg string) {
	for _, s := range m.sinks {
		s.Log(level, msg)
	}
}

var _ Logger = (*MultiLogger)(nil)
