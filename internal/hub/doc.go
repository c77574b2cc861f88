// Package hub is the live side of the sync backend: it owns connections and
// their group memberships, feeds inbound messages to a protocol.Dispatcher
// and fans model updates out to subscribers.
//
//   - hub.go: Hub, Transport, connection and group bookkeeping.
//   - dispatch.go: HandleMessage, envelopes, SendTo, Broadcast.
//   - handlers.go: built-in sync:*, ping and tool_call handlers.
//   - liveness.go: PingAll, Sweep, Run and CloseAll.
//   - websocket.go: the coder/websocket Transport and the HTTP upgrade.
//   - config.go, errors.go, metrics.go: defaults, error helpers, prometheus.
//
// Groups are topics named model:{id} and type:{kind}. A group exists only
// while it has members. Updates are never echoed to the connection that
// caused them.
package hub
