package trace

// Logger receives bus transaction events. Implementations must be safe for
// concurrent use and should return quickly: Log is called with the bus held.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. Its zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger sends events to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger that forwards to loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log forwards the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
