package executor

// Event represents a tool invocation lifecycle step.
// Name is one of tool_queued, tool_started, tool_succeeded, tool_failed.
type Event struct {
	Name   string
	Tool   string
	Seq    uint64
	Origin string
	Fields map[string]any
}

const (
	EventQueued    = "tool_queued"
	EventStarted   = "tool_started"
	EventSucceeded = "tool_succeeded"
	EventFailed    = "tool_failed"
)

// EventPublisher receives events from the executor. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
