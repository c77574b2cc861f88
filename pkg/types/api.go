package types

import "encoding/json"

// Inbound is a client message received over a live connection.
type Inbound struct {
	// Message type used to pick the handlers.
	// example: sync:update
	Type string `json:"type"`
	// Handler payload; shape depends on Type.
	Data json.RawMessage `json:"data,omitempty"`
	// Optional correlation id. When set, the server replies with a single
	// "response" message carrying the same id.
	// example: req-42
	RequestID string `json:"requestId,omitempty"`
}

// Envelope wraps every message the server sends.
type Envelope struct {
	// example: sync:modelUpdated
	Type string `json:"type"`
	Data any    `json:"data"`
	// ISO8601 send time.
	// example: 2026-10-15T12:00:00.000Z
	Timestamp string `json:"timestamp"`
}

// Well-known inbound message types.
const (
	TypeSubscribe   = "sync:subscribe"
	TypeUnsubscribe = "sync:unsubscribe"
	TypeGetState    = "sync:getState"
	TypeUpdate      = "sync:update"
	TypePing        = "ping"
	TypeToolCall    = "tool_call"
)

// Well-known outbound message types.
const (
	TypeConnectionEstablished = "connection:established"
	TypeResponse              = "response"
	TypeError                 = "error"
	TypeModelUpdated          = "sync:modelUpdated"
	TypeToolResult            = "tool_result"
)

// ConnectionEstablished is sent once after a connection is registered.
type ConnectionEstablished struct {
	ConnectionID string   `json:"connectionId"`
	Groups       []string `json:"groups"`
}

// Response answers an Inbound that carried a RequestID. Results holds the
// single handler result when exactly one handler ran, otherwise the list.
type Response struct {
	RequestID string `json:"requestId"`
	Results   any    `json:"results"`
}

// ErrorMessage reports a malformed or unroutable inbound message.
type ErrorMessage struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// ModelUpdated is broadcast to subscribers when a model changes.
type ModelUpdated struct {
	ModelID   string         `json:"modelId"`
	Values    map[string]any `json:"values"`
	UpdatedBy string         `json:"updatedBy"`
}

// ToolCall is the payload of a tool_call message.
type ToolCall struct {
	ToolName string          `json:"toolName"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ToolResult is pushed to the connection that requested a tool run.
type ToolResult struct {
	ToolName string `json:"toolName"`
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}
