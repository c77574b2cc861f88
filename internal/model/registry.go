package model

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is a name-keyed collection of models. It holds at most one model
// per name; registering a taken name replaces the previous model.
type Registry struct {
	name string
	log  zerolog.Logger

	mu     sync.RWMutex
	models map[string]StateModel
}

// NewRegistry creates an empty registry.
func NewRegistry(name string, log zerolog.Logger) *Registry {
	return &Registry{name: name, log: log, models: make(map[string]StateModel)}
}

func (r *Registry) Name() string { return r.name }

// Register adds m, replacing any model with the same name. It reports whether
// a model was replaced.
func (r *Registry) Register(m StateModel) bool {
	r.mu.Lock()
	_, replaced := r.models[m.Name()]
	r.models[m.Name()] = m
	r.mu.Unlock()
	if replaced {
		r.log.Warn().Str("registry", r.name).Str("model", m.Name()).Msg("model replaced")
	}
	return replaced
}

// CreateModel builds a Model with initial state and registers it.
func (r *Registry) CreateModel(name string, initial map[string]any) *Model {
	m := New(name, initial, WithLogger(r.log))
	r.Register(m)
	return m
}

// Unregister removes the named model and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[name]; !ok {
		return false
	}
	delete(r.models, name)
	return true
}

// Get returns the named model.
func (r *Registry) Get(name string) (StateModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.models))
	for n := range r.models {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// GetState returns a snapshot of every registered model keyed by name.
func (r *Registry) GetState() map[string]map[string]any {
	r.mu.RLock()
	models := make([]StateModel, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	r.mu.RUnlock()

	out := make(map[string]map[string]any, len(models))
	for _, m := range models {
		out[m.Name()] = m.State()
	}
	return out
}

// GetValue reads key from the named model. ok is false when the model is
// not registered.
func (r *Registry) GetValue(modelName, key string, def any) (v any, ok bool) {
	m, ok := r.Get(modelName)
	if !ok {
		return def, false
	}
	return m.GetValue(key, def), true
}

// SetValue writes key on the named model. ok is false when the model is not
// registered; changed mirrors StateModel.SetValue.
func (r *Registry) SetValue(modelName, key string, value any) (changed, ok bool) {
	m, ok := r.Get(modelName)
	if !ok {
		return false, false
	}
	return m.SetValue(key, value), true
}

// SetValues applies entries on the named model.
func (r *Registry) SetValues(modelName string, entries []Entry) ([]Change, bool) {
	m, ok := r.Get(modelName)
	if !ok {
		return nil, false
	}
	return m.SetValues(entries), true
}
