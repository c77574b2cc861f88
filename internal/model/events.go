package model

// EventKind tags the notifications a Model emits.
type EventKind int

const (
	// KindChange fires once per key whose value actually changed.
	KindChange EventKind = iota + 1
	// KindBatchChange fires once per SetValues call, before the per-key changes.
	KindBatchChange
	// KindReset fires when the whole state is replaced.
	KindReset
)

func (k EventKind) String() string {
	switch k {
	case KindChange:
		return "change"
	case KindBatchChange:
		return "batch_change"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change describes one key transition. Changed is false for keys that were
// part of a batch but kept their previous value.
type Change struct {
	Key      string `json:"key"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
	Changed  bool   `json:"-"`
}

// Event is delivered to listeners. Only the fields matching Kind are set.
type Event struct {
	Kind  EventKind
	Model string

	Change Change   // KindChange
	Batch  []Change // KindBatchChange

	OldState map[string]any // KindReset
	NewState map[string]any // KindReset
}

// Listener receives model events synchronously on the mutating goroutine.
// A listener may read the model but must not write to it.
type Listener func(Event)

// ChangedOnly filters a batch down to the keys whose value moved.
func ChangedOnly(batch []Change) []Change {
	out := make([]Change, 0, len(batch))
	for _, c := range batch {
		if c.Changed {
			out = append(out, c)
		}
	}
	return out
}
