package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"studiosync/internal/model"
)

// Handler processes one message. The returned value becomes the handler's
// entry in the result list; a returned error becomes an ErrorResult.
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

// ErrorResult is the result entry of a handler that failed.
type ErrorResult struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// AsError reports whether v is a failed handler entry.
func AsError(v any) (ErrorResult, bool) {
	e, ok := v.(ErrorResult)
	return e, ok
}

// Dispatcher routes message types to ordered handler lists. It is bound to
// exactly one registry.
type Dispatcher struct {
	name     string
	registry *model.Registry
	log      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates a dispatcher bound to reg.
func New(name string, reg *model.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		name:     name,
		registry: reg,
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

func (d *Dispatcher) Name() string               { return d.name }
func (d *Dispatcher) Registry() *model.Registry { return d.registry }

// RegisterHandler appends h to the handlers of msgType. Registration order is
// invocation order.
func (d *Dispatcher) RegisterHandler(msgType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], h)
}

// HasHandlers reports whether at least one handler exists for msgType.
func (d *Dispatcher) HasHandlers(msgType string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[msgType]) > 0
}

// Types lists the message types with handlers, sorted.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for t, hs := range d.handlers {
		if len(hs) > 0 {
			out = append(out, t)
		}
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ProcessMessage runs every handler of msgType one after another and returns
// one entry per handler in registration order. A failing handler yields an
// ErrorResult at its position and does not stop the rest. Unknown types
// return an empty slice.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msgType string, data json.RawMessage) []any {
	d.mu.RLock()
	hs := append([]Handler(nil), d.handlers[msgType]...)
	d.mu.RUnlock()

	if len(hs) == 0 {
		d.log.Warn().Str("protocol", d.name).Str("type", msgType).Msg("no handlers for message type")
		return []any{}
	}

	results := make([]any, 0, len(hs))
	for i, h := range hs {
		v, err := d.invoke(ctx, h, data)
		if err != nil {
			d.log.Error().Err(err).Str("protocol", d.name).Str("type", msgType).Int("handler", i).Msg("handler failed")
			results = append(results, ErrorResult{Error: true, Message: err.Error()})
			continue
		}
		results = append(results, v)
	}
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, data json.RawMessage) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, data)
}

// CreateModel creates and registers a model in the bound registry.
func (d *Dispatcher) CreateModel(name string, initial map[string]any) *model.Model {
	return d.registry.CreateModel(name, initial)
}

// UpdateModel applies entries to the named model. ok is false when the model
// is not registered.
func (d *Dispatcher) UpdateModel(name string, entries []model.Entry) ([]model.Change, bool) {
	return d.registry.SetValues(name, entries)
}
