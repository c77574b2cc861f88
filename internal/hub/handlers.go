package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"studiosync/internal/executor"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

type subscribePayload struct {
	ModelID   string `json:"modelId" validate:"required_without=ModelType"`
	ModelType string `json:"modelType"`
}

type subscribeResult struct {
	Success bool     `json:"success"`
	Groups  []string `json:"groups"`
	ModelID string   `json:"modelId,omitempty"`
	// State of ModelID; omitted when the model does not exist yet.
	State map[string]any `json:"state,omitempty"`
	// States of every model of ModelType, keyed by model id.
	Models map[string]map[string]any `json:"models,omitempty"`
}

type unsubscribePayload struct {
	ModelID   string `json:"modelId" validate:"required_without_all=ModelType All"`
	ModelType string `json:"modelType"`
	All       bool   `json:"all"`
}

type unsubscribeResult struct {
	Success bool     `json:"success"`
	Groups  []string `json:"groups"`
}

type getStatePayload struct {
	ModelID string `json:"modelId"`
}

type getStateResult struct {
	ModelID string                    `json:"modelId,omitempty"`
	State   map[string]any            `json:"state,omitempty"`
	Models  map[string]map[string]any `json:"models,omitempty"`
}

type updatePayload struct {
	ModelID string          `json:"modelId" validate:"required"`
	Values  json.RawMessage `json:"values" validate:"required"`
}

type updateResult struct {
	Success bool     `json:"success"`
	ModelID string   `json:"modelId"`
	Changed []string `json:"changed"`
}

type pongResult struct {
	Pong      bool   `json:"pong"`
	Timestamp string `json:"timestamp"`
}

type toolCallPayload struct {
	ToolName string          `json:"toolName" validate:"required"`
	Args     json.RawMessage `json:"args"`
}

func (h *Hub) registerBuiltins() {
	h.disp.RegisterHandler(types.TypeSubscribe, h.handleSubscribe)
	h.disp.RegisterHandler(types.TypeUnsubscribe, h.handleUnsubscribe)
	h.disp.RegisterHandler(types.TypeGetState, h.handleGetState)
	h.disp.RegisterHandler(types.TypeUpdate, h.handleUpdate)
	h.disp.RegisterHandler(types.TypePing, h.handlePing)
	if h.exec != nil {
		h.disp.RegisterHandler(types.TypeToolCall, h.handleToolCall)
	}
}

func (h *Hub) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func originOf(ctx context.Context) (string, error) {
	id := protocol.OriginFrom(ctx)
	if id == "" {
		return "", errors.New("no origin connection")
	}
	return id, nil
}

// modelKind is the model's own "type" attribute, if it is a string.
func modelKind(m model.StateModel) string {
	kind, _ := m.GetValue("type", nil).(string)
	return kind
}

// statesOfKind snapshots every registered model whose kind is kind.
func (h *Hub) statesOfKind(kind string) map[string]map[string]any {
	reg := h.Registry()
	out := make(map[string]map[string]any)
	for _, name := range reg.Names() {
		m, ok := reg.Get(name)
		if ok && modelKind(m) == kind {
			out[name] = m.State()
		}
	}
	return out
}

func (h *Hub) handleSubscribe(ctx context.Context, data json.RawMessage) (any, error) {
	var p subscribePayload
	if err := h.decode(data, &p); err != nil {
		return nil, err
	}
	id, err := originOf(ctx)
	if err != nil {
		return nil, err
	}

	res := subscribeResult{Success: true, ModelID: p.ModelID}
	if p.ModelID != "" {
		g := ModelGroup(p.ModelID)
		h.JoinGroup(id, g)
		res.Groups = append(res.Groups, g)
		if m, ok := h.Registry().Get(p.ModelID); ok {
			res.State = m.State()
		}
	}
	if p.ModelType != "" {
		g := TypeGroup(p.ModelType)
		h.JoinGroup(id, g)
		res.Groups = append(res.Groups, g)
		res.Models = h.statesOfKind(p.ModelType)
	}
	h.log.Debug().Str("conn", id).Strs("groups", res.Groups).Msg("subscribed")
	return res, nil
}

func (h *Hub) handleUnsubscribe(ctx context.Context, data json.RawMessage) (any, error) {
	var p unsubscribePayload
	if err := h.decode(data, &p); err != nil {
		return nil, err
	}
	id, err := originOf(ctx)
	if err != nil {
		return nil, err
	}

	if p.All {
		return unsubscribeResult{Success: true, Groups: h.LeaveAll(id)}, nil
	}
	var left []string
	if p.ModelID != "" && h.LeaveGroup(id, ModelGroup(p.ModelID)) {
		left = append(left, ModelGroup(p.ModelID))
	}
	if p.ModelType != "" && h.LeaveGroup(id, TypeGroup(p.ModelType)) {
		left = append(left, TypeGroup(p.ModelType))
	}
	return unsubscribeResult{Success: true, Groups: left}, nil
}

func (h *Hub) handleGetState(_ context.Context, data json.RawMessage) (any, error) {
	var p getStatePayload
	if err := h.decode(data, &p); err != nil {
		return nil, err
	}
	if p.ModelID == "" {
		return getStateResult{Models: h.Registry().GetState()}, nil
	}
	m, ok := h.Registry().Get(p.ModelID)
	if !ok {
		return nil, modelNotFoundError{id: p.ModelID}
	}
	return getStateResult{ModelID: p.ModelID, State: m.State()}, nil
}

func (h *Hub) handleUpdate(ctx context.Context, data json.RawMessage) (any, error) {
	var p updatePayload
	if err := h.decode(data, &p); err != nil {
		return nil, err
	}
	entries, err := model.ParseEntries(p.Values)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	keys, err := h.ApplyUpdate(ctx, p.ModelID, entries)
	if err != nil {
		return nil, err
	}
	return updateResult{Success: true, ModelID: p.ModelID, Changed: keys}, nil
}

// ApplyUpdate writes entries to the model and broadcasts the keys that
// actually changed to its model and type groups. The connection bound in
// ctx is excluded from the broadcast and named as the updater. It returns
// the changed keys in entry order.
func (h *Hub) ApplyUpdate(ctx context.Context, modelID string, entries []model.Entry) ([]string, error) {
	m, ok := h.Registry().Get(modelID)
	if !ok {
		return nil, modelNotFoundError{id: modelID}
	}

	changed := model.ChangedOnly(m.SetValues(entries))
	keys := make([]string, 0, len(changed))
	values := make(map[string]any, len(changed))
	for _, c := range changed {
		keys = append(keys, c.Key)
		values[c.Key] = c.NewValue
	}
	if len(changed) == 0 {
		return keys, nil
	}

	origin := protocol.OriginFrom(ctx)
	groups := []string{ModelGroup(modelID)}
	if kind := modelKind(m); kind != "" {
		groups = append(groups, TypeGroup(kind))
	}
	n := h.Broadcast(ctx, groups, origin, types.TypeModelUpdated, types.ModelUpdated{
		ModelID:   modelID,
		Values:    values,
		UpdatedBy: origin,
	})
	h.log.Debug().Str("model", modelID).Strs("keys", keys).Int("recipients", n).Msg("model updated")
	return keys, nil
}

func (h *Hub) handlePing(context.Context, json.RawMessage) (any, error) {
	return pongResult{Pong: true, Timestamp: h.cfg.Now().UTC().Format(timestampLayout)}, nil
}

// pendingCall is a tool_call result that is still in the executor queue.
// HandleMessage resolves it off the inbox so the connection keeps reading.
type pendingCall struct {
	tool string
	done <-chan executor.Outcome
}

func (p pendingCall) resolve(ctx context.Context) any {
	select {
	case out := <-p.done:
		if out.Err != nil {
			return protocol.ErrorResult{Error: true, Message: out.Err.Error()}
		}
		return types.ToolResult{ToolName: p.tool, Success: true, Result: out.Result}
	case <-ctx.Done():
		return protocol.ErrorResult{Error: true, Message: ctx.Err().Error()}
	}
}

// handleToolCall queues the call and returns without waiting for it. The
// executor pushes a tool_result to the caller when it completes.
func (h *Hub) handleToolCall(ctx context.Context, data json.RawMessage) (any, error) {
	var p toolCallPayload
	if err := h.decode(data, &p); err != nil {
		return nil, err
	}
	done := h.exec.Enqueue(protocol.OriginFrom(ctx), p.ToolName, p.Args)
	return pendingCall{tool: p.ToolName, done: done}, nil
}
