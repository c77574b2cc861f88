package types

// ErrorResponse is a consistent JSON error payload for the HTTP surface.
type ErrorResponse struct {
	// Error message.
	// example: model not found: player1
	Error string `json:"error" example:"model not found: player1"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// HubStatus summarises live connections and groups.
type HubStatus struct {
	// example: 3
	Connections int `json:"connections"`
	// Group name to member count.
	Groups map[string]int `json:"groups"`
	// example: 120
	MessagesReceived uint64 `json:"messages_received"`
	// example: 240
	MessagesSent uint64 `json:"messages_sent"`
	// example: 1
	Evictions uint64 `json:"evictions_total"`
}

// ExecutorStatus summarises the tool queue.
type ExecutorStatus struct {
	// example: 1
	Concurrency int `json:"concurrency"`
	// example: 2
	Queued int `json:"queued"`
	// example: 1
	Running int `json:"running"`
	// example: 10
	Succeeded uint64 `json:"succeeded_total"`
	// example: 0
	Failed uint64 `json:"failed_total"`
	// Registered tool names.
	Tools []string `json:"tools"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Hub      HubStatus      `json:"hub"`
	Executor ExecutorStatus `json:"executor"`
	// example: 4
	Models int `json:"models"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix"`
}
