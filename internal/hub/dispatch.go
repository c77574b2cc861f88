package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// HandleMessage parses one raw inbound message from id and runs it through
// the dispatcher. Format errors are answered with an error message to id
// only. When the message carries a requestId the handler results are sent
// back as a single response.
//
// Tool calls are enqueued before HandleMessage returns, so a connection's
// calls keep their arrival order, but their response is sent from another
// goroutine once the executor reports an outcome.
func (h *Hub) HandleMessage(ctx context.Context, id string, raw []byte) {
	h.Touch(id)
	h.received.Add(1)

	var in types.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		messagesReceived.WithLabelValues("invalid").Inc()
		h.sendError(ctx, id, "", "Invalid message format")
		return
	}
	if strings.TrimSpace(in.Type) == "" {
		messagesReceived.WithLabelValues("invalid").Inc()
		h.sendError(ctx, id, in.RequestID, "Message type is required")
		return
	}
	if !h.disp.HasHandlers(in.Type) {
		messagesReceived.WithLabelValues("unknown").Inc()
		h.sendError(ctx, id, in.RequestID, "Unknown message type: "+in.Type)
		return
	}
	messagesReceived.WithLabelValues(in.Type).Inc()

	results := h.disp.ProcessMessage(protocol.WithOrigin(ctx, id), in.Type, in.Data)
	if in.RequestID == "" {
		return
	}
	if !lo.ContainsBy(results, isPending) {
		h.respond(ctx, id, in.RequestID, results)
		return
	}
	h.replies.Add(1)
	go func() {
		defer h.replies.Done()
		for i, r := range results {
			if p, ok := r.(pendingCall); ok {
				results[i] = p.resolve(ctx)
			}
		}
		h.respond(ctx, id, in.RequestID, results)
	}()
}

func isPending(r any) bool {
	_, ok := r.(pendingCall)
	return ok
}

// respond sends results as one response; a single result is unwrapped.
func (h *Hub) respond(ctx context.Context, id, requestID string, results []any) {
	var payload any = results
	if len(results) == 1 {
		payload = results[0]
	}
	h.send(ctx, id, types.TypeResponse, types.Response{RequestID: requestID, Results: payload})
}

func (h *Hub) sendError(ctx context.Context, id, requestID, msg string) {
	h.log.Debug().Str("conn", id).Str("request_id", requestID).Msg(msg)
	h.send(ctx, id, types.TypeError, types.ErrorMessage{Message: msg, RequestID: requestID})
}

// SendTo delivers one envelope to id.
func (h *Hub) SendTo(ctx context.Context, id, msgType string, data any) error {
	payload, err := h.encode(msgType, data)
	if err != nil {
		return err
	}
	return h.deliver(ctx, id, msgType, payload)
}

// Notify implements executor.Notifier.
func (h *Hub) Notify(ctx context.Context, id, msgType string, data any) error {
	return h.SendTo(ctx, id, msgType, data)
}

// send is SendTo for replies where the failure is only logged.
func (h *Hub) send(ctx context.Context, id, msgType string, data any) {
	if err := h.SendTo(ctx, id, msgType, data); err != nil {
		h.log.Warn().Err(err).Str("conn", id).Str("type", msgType).Msg("send failed")
	}
}

// Broadcast sends one envelope to every member of the given groups except
// exclude. A connection in several of the groups receives it once. It
// returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, groups []string, exclude, msgType string, data any) int {
	targets := h.recipients(groups, exclude)
	if len(targets) == 0 {
		return 0
	}
	payload, err := h.encode(msgType, data)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("broadcast encode failed")
		return 0
	}
	n := 0
	for _, id := range targets {
		if err := h.deliver(ctx, id, msgType, payload); err != nil {
			h.log.Warn().Err(err).Str("conn", id).Str("type", msgType).Msg("broadcast delivery failed")
			continue
		}
		n++
	}
	return n
}

// recipients is the ordered union of the groups' members minus exclude.
func (h *Hub) recipients(groups []string, exclude string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	seen := make(map[string]struct{})
	for _, name := range groups {
		g, ok := h.groups[name]
		if !ok {
			continue
		}
		for _, id := range g.members {
			if id == exclude {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (h *Hub) encode(msgType string, data any) ([]byte, error) {
	env := types.Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: h.cfg.Now().UTC().Format(timestampLayout),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return b, nil
}

func (h *Hub) deliver(ctx context.Context, id, msgType string, payload []byte) error {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		return connectionNotFoundError{id: id}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()
	if err := c.t.Send(sctx, payload); err != nil {
		if errors.Is(err, ErrSlowConsumer) {
			h.log.Warn().Str("conn", id).Msg("slow consumer dropped")
			h.Disconnect(id)
		}
		return err
	}
	h.sent.Add(1)
	messagesSent.WithLabelValues(msgType).Inc()
	return nil
}
