package model

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// StateModel is the capability set the Registry and the hub rely on. Any
// domain object (script, UI, service, game object) satisfying it may be
// registered.
type StateModel interface {
	Name() string
	State() map[string]any
	GetValue(key string, def any) any
	SetValue(key string, value any) bool
	SetValues(entries []Entry) []Change
}

// Observable is implemented by models that emit change notifications.
type Observable interface {
	Subscribe(kind EventKind, l Listener) (unsubscribe func())
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Model) { m.log = l }
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Model is a named key/value state container. Writes are serialised and
// their notifications are delivered before the write call returns.
type Model struct {
	name string
	log  zerolog.Logger

	// writeMu serialises SetValue/SetValues/Reset including emission.
	writeMu sync.Mutex

	mu    sync.RWMutex
	state map[string]any
	keys  []string

	lmu       sync.RWMutex
	listeners map[EventKind][]listenerEntry
	nextID    uint64
}

// New creates a model with an optional initial state. Initial keys are
// ordered by name.
func New(name string, initial map[string]any, opts ...Option) *Model {
	m := &Model{
		name:      name,
		log:       zerolog.Nop(),
		state:     make(map[string]any, len(initial)),
		listeners: make(map[EventKind][]listenerEntry),
	}
	for _, o := range opts {
		o(m)
	}
	for _, e := range EntriesFromMap(initial) {
		m.state[e.Key] = cloneValue(e.Value)
		m.keys = append(m.keys, e.Key)
	}
	return m
}

func (m *Model) Name() string { return m.name }

// State returns a deep copy of the current state.
func (m *Model) State() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMap(m.state)
}

// Keys returns state keys in insertion order.
func (m *Model) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.keys...)
}

// GetValue returns a copy of the value for key, or def when absent.
func (m *Model) GetValue(key string, def any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	if !ok {
		return def
	}
	return cloneValue(v)
}

// Has reports whether key is present.
func (m *Model) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.state[key]
	return ok
}

// SetValue stores value under key. It returns false, and emits nothing, when
// the key already holds an equal value.
func (m *Model) SetValue(key string, value any) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	value = cloneValue(value)
	m.mu.Lock()
	old, existed := m.state[key]
	if existed && sameValue(old, value) {
		m.mu.Unlock()
		return false
	}
	m.put(key, value, existed)
	m.mu.Unlock()

	m.emit(Event{
		Kind:   KindChange,
		Model:  m.name,
		Change: Change{Key: key, OldValue: old, NewValue: cloneValue(value), Changed: true},
	})
	return true
}

// SetValues applies every entry and returns the batch record. All old/new
// pairs are computed before the state is touched. One KindBatchChange event
// carrying every entry fires first, then one KindChange per entry whose value
// moved, in entry order. Unchanged entries stay in the batch with
// Changed=false but get no KindChange.
func (m *Model) SetValues(entries []Entry) []Change {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	batch := make([]Change, 0, len(entries))
	for _, e := range entries {
		old, existed := m.state[e.Key]
		value := cloneValue(e.Value)
		batch = append(batch, Change{
			Key:      e.Key,
			OldValue: old,
			NewValue: value,
			Changed:  !existed || !sameValue(old, value),
		})
	}
	for _, c := range batch {
		_, existed := m.state[c.Key]
		m.put(c.Key, cloneValue(c.NewValue), existed)
	}
	m.mu.Unlock()

	m.emit(Event{Kind: KindBatchChange, Model: m.name, Batch: append([]Change(nil), batch...)})
	for _, c := range batch {
		if c.Changed {
			m.emit(Event{Kind: KindChange, Model: m.name, Change: c})
		}
	}
	return batch
}

// Reset replaces the whole state with newState (nil means empty).
func (m *Model) Reset(newState map[string]any) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	old := m.state
	m.state = cloneMap(newState)
	m.keys = m.keys[:0]
	for k := range m.state {
		m.keys = append(m.keys, k)
	}
	sort.Strings(m.keys)
	next := cloneMap(m.state)
	m.mu.Unlock()

	m.emit(Event{Kind: KindReset, Model: m.name, OldState: old, NewState: next})
}

// Subscribe registers l for kind and returns a func that removes it.
func (m *Model) Subscribe(kind EventKind, l Listener) func() {
	m.lmu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[kind] = append(m.listeners[kind], listenerEntry{id: id, fn: l})
	m.lmu.Unlock()

	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		ls := m.listeners[kind]
		for i, e := range ls {
			if e.id == id {
				m.listeners[kind] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// put must be called with mu held.
func (m *Model) put(key string, v any, existed bool) {
	if !existed {
		m.keys = append(m.keys, key)
	}
	m.state[key] = v
}

func (m *Model) emit(ev Event) {
	m.lmu.RLock()
	ls := append([]listenerEntry(nil), m.listeners[ev.Kind]...)
	m.lmu.RUnlock()
	for _, l := range ls {
		m.call(l.fn, ev)
	}
}

func (m *Model) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("model", m.name).Str("kind", ev.Kind.String()).Interface("panic", r).Msg("model listener panicked")
		}
	}()
	fn(ev)
}
