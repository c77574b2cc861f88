package types

import "encoding/json"

// ModelSnapshot is one model's state as exposed over HTTP.
type ModelSnapshot struct {
	// example: player1
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// ModelsResponse wraps GET /models.
type ModelsResponse struct {
	Models []ModelSnapshot `json:"models"`
}

// ToolsResponse wraps GET /tools.
type ToolsResponse struct {
	Tools []string `json:"tools"`
}

// UpdateModelRequest is the body of POST /models/{id}.
type UpdateModelRequest struct {
	// Keys to write, applied in document order.
	Values json.RawMessage `json:"values"`
}

// UpdateModelResponse lists the keys whose value actually changed.
type UpdateModelResponse struct {
	// example: player1
	ModelID string   `json:"modelId"`
	Changed []string `json:"changed"`
}
