package executor

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// ToolFunc is a tool body. The origin connection of the call is available
// through protocol.OriginFrom(ctx).
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, error)

// ToolRegistry maps tool names to their bodies.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolFunc)}
}

// Register stores fn under name, replacing an existing tool.
func (r *ToolRegistry) Register(name string, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Names lists registered tools, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
