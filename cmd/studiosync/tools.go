package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studiosync/internal/executor"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
)

const maxSleep = 30 * time.Second

// registerBuiltinTools installs the diagnostic tools every deployment
// carries. Domain tools are registered by their own packages.
func registerBuiltinTools(exec *executor.Sequential, reg *model.Registry) {
	exec.Register("echo", func(ctx context.Context, args json.RawMessage) (any, error) {
		origin := protocol.OriginFrom(ctx)
		if len(args) == 0 {
			args = json.RawMessage("null")
		}
		return map[string]any{"origin": origin, "args": args}, nil
	})

	// sleep holds the queue for ms milliseconds; handy for watching ordering.
	exec.Register("sleep", func(ctx context.Context, args json.RawMessage) (any, error) {
		var p struct {
			Ms int `json:"ms"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
		}
		d := min(time.Duration(p.Ms)*time.Millisecond, maxSleep)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return map[string]any{"slept": p.Ms}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	exec.Register("snapshot", func(_ context.Context, args json.RawMessage) (any, error) {
		var p struct {
			ModelID string `json:"modelId"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, fmt.Errorf("invalid args: %w", err)
			}
		}
		if p.ModelID == "" {
			return reg.GetState(), nil
		}
		m, ok := reg.Get(p.ModelID)
		if !ok {
			return nil, fmt.Errorf("model not found: %s", p.ModelID)
		}
		return m.State(), nil
	})
}
