// Package model provides observable key/value state containers and the
// registry that names them.
//
//   - model.go: Model, the StateModel/Observable capability interfaces.
//   - events.go: EventKind, Change and Event delivered to listeners.
//   - entries.go: ordered batches (Entry) and their JSON decoding.
//   - registry.go: Registry, the name-keyed collection behind full-state sync.
//
// Snapshots handed to callers are always deep copies of JSON-shaped values.
package model
