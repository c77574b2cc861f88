package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"studiosync/internal/executor"
	"studiosync/internal/hub"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Models() []types.ModelSnapshot
	Model(id string) (types.ModelSnapshot, bool)
	UpdateModel(ctx context.Context, id string, values []byte) ([]string, error)
	Tools() []string
	Status() types.StatusResponse
	Ready() bool
}

// HTTPOrigin is the updater name reported for changes made over HTTP.
const HTTPOrigin = "http"

type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

// HubService serves the HTTP views from a live hub and executor.
type HubService struct {
	hub     *hub.Hub
	exec    *executor.Sequential
	started time.Time
	ready   atomic.Bool
}

// NewHubService builds the service. exec may be nil.
func NewHubService(h *hub.Hub, exec *executor.Sequential) *HubService {
	s := &HubService{hub: h, exec: exec, started: time.Now()}
	s.ready.Store(true)
	return s
}

// SetReady flips the /readyz answer, e.g. while draining on shutdown.
func (s *HubService) SetReady(v bool) { s.ready.Store(v) }

func (s *HubService) Ready() bool { return s.ready.Load() }

func (s *HubService) Models() []types.ModelSnapshot {
	reg := s.hub.Registry()
	out := make([]types.ModelSnapshot, 0, reg.Len())
	for _, name := range reg.Names() {
		if m, ok := reg.Get(name); ok {
			out = append(out, types.ModelSnapshot{ID: name, State: m.State()})
		}
	}
	return out
}

func (s *HubService) Model(id string) (types.ModelSnapshot, bool) {
	m, ok := s.hub.Registry().Get(id)
	if !ok {
		return types.ModelSnapshot{}, false
	}
	return types.ModelSnapshot{ID: id, State: m.State()}, true
}

// UpdateModel applies a JSON object of values and broadcasts the change to
// every subscriber.
func (s *HubService) UpdateModel(ctx context.Context, id string, values []byte) ([]string, error) {
	entries, err := model.ParseEntries(values)
	if err != nil {
		return nil, badRequestError{msg: err.Error()}
	}
	return s.hub.ApplyUpdate(protocol.WithOrigin(ctx, HTTPOrigin), id, entries)
}

func (s *HubService) Tools() []string {
	if s.exec == nil {
		return []string{}
	}
	return s.exec.Tools().Names()
}

func (s *HubService) Status() types.StatusResponse {
	now := time.Now()
	st := types.StatusResponse{
		Hub:            s.hub.Stats(),
		Models:         s.hub.Registry().Len(),
		UptimeSeconds:  int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	st.Executor.Tools = s.Tools()
	if s.exec != nil {
		es := s.exec.Stats()
		st.Executor.Concurrency = es.Concurrency
		st.Executor.Queued = es.Queued
		st.Executor.Running = es.Running
		st.Executor.Succeeded = es.Succeeded
		st.Executor.Failed = es.Failed
	}
	return st
}
