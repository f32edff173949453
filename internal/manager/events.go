package manager

import "github.com/rs/zerolog"

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic and must not call
// back into the Manager.
type EventPublisher interface {
	Publish(Event)
}

// LogPublisher writes events to a zerolog logger. It is the default.
type LogPublisher struct{ log zerolog.Logger }

// NewLogPublisher returns a publisher logging at debug level, except
// load and drain events which are logged at info.
func NewLogPublisher(l zerolog.Logger) LogPublisher { return LogPublisher{log: l} }

func (p LogPublisher) Publish(e Event) {
	ev := p.log.Debug()
	switch e.Name {
	case "load_start", "load_done", "drain_start", "drain_done":
		ev = p.log.Info()
	case "load_error", "drain_timeout":
		ev = p.log.Warn()
	}
	ev.Str("event", e.Name).Str("model", e.ModelID).Fields(e.Fields).Msg("manager event")
}
