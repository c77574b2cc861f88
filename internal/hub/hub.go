package hub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"studiosync/internal/executor"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

// Transport is the server side of one live connection.
type Transport interface {
	// Send delivers one encoded envelope. It must not block past ctx.
	Send(ctx context.Context, payload []byte) error
	// Ping checks that the peer is alive; a nil error counts as activity.
	Ping(ctx context.Context) error
	// Close terminates the connection.
	Close(reason string) error
}

type connection struct {
	id           string
	t            Transport
	connectedAt  time.Time
	lastActivity time.Time
	groups       map[string]struct{}
}

// group keeps members in join order.
type group struct {
	members []string
	index   map[string]struct{}
}

func (g *group) add(id string) bool {
	if _, ok := g.index[id]; ok {
		return false
	}
	g.index[id] = struct{}{}
	g.members = append(g.members, id)
	return true
}

func (g *group) remove(id string) bool {
	if _, ok := g.index[id]; !ok {
		return false
	}
	delete(g.index, id)
	g.members = lo.Without(g.members, id)
	return true
}

// Hub tracks live connections and their groups, routes inbound messages
// through the dispatcher and fans model updates out to subscribers.
type Hub struct {
	cfg      Config
	log      zerolog.Logger
	disp     *protocol.Dispatcher
	exec     *executor.Sequential
	validate *validator.Validate

	mu     sync.Mutex
	conns  map[string]*connection
	groups map[string]*group

	received  atomic.Uint64
	sent      atomic.Uint64
	evictions atomic.Uint64

	// replies tracks responses still waiting on queued tool calls.
	replies sync.WaitGroup
}

// New builds a hub around cfg.Dispatcher and registers the built-in
// handlers on it. When cfg.Executor is set the hub becomes its notifier and
// handles tool_call.
func New(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		log:      *cfg.Logger,
		disp:     cfg.Dispatcher,
		exec:     cfg.Executor,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		conns:    make(map[string]*connection),
		groups:   make(map[string]*group),
	}
	h.registerBuiltins()
	if h.exec != nil {
		h.exec.SetNotifier(h)
	}
	return h
}

// Dispatcher returns the dispatcher the hub routes to.
func (h *Hub) Dispatcher() *protocol.Dispatcher { return h.disp }

// Registry returns the registry bound to the dispatcher.
func (h *Hub) Registry() *model.Registry { return h.disp.Registry() }

// ModelGroup and TypeGroup name the broadcast topics of a model.
func ModelGroup(id string) string  { return "model:" + id }
func TypeGroup(kind string) string { return "type:" + kind }

// ParseGroups splits a comma separated group list, dropping blanks and
// duplicates.
func ParseGroups(csv string) []string {
	parts := lo.Map(strings.Split(csv, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(parts))
}

// Connect registers t under a fresh id, joins groups and sends
// connection:established. It returns the id.
func (h *Hub) Connect(t Transport, groups []string) string {
	id := h.cfg.NewID()
	now := h.cfg.Now()
	all := lo.Uniq(append(append([]string(nil), h.cfg.DefaultGroups...), groups...))

	h.mu.Lock()
	h.conns[id] = &connection{id: id, t: t, connectedAt: now, lastActivity: now, groups: make(map[string]struct{})}
	for _, g := range all {
		h.joinLocked(id, g)
	}
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("conn", id).Strs("groups", all).Msg("connection established")
	h.send(context.Background(), id, types.TypeConnectionEstablished, types.ConnectionEstablished{ConnectionID: id, Groups: all})
	return id
}

// Disconnect removes id from every group and from the connection table. It
// does not close the transport.
func (h *Hub) Disconnect(id string) bool {
	h.mu.Lock()
	_, ok := h.removeLocked(id)
	h.mu.Unlock()
	if ok {
		h.log.Info().Str("conn", id).Msg("connection closed")
	}
	return ok
}

func (h *Hub) removeLocked(id string) (*connection, bool) {
	c, ok := h.conns[id]
	if !ok {
		return nil, false
	}
	for g := range c.groups {
		h.leaveLocked(id, g)
	}
	delete(h.conns, id)
	h.updateGaugesLocked()
	return c, true
}

// Touch refreshes the activity timestamp of id.
func (h *Hub) Touch(id string) {
	now := h.cfg.Now()
	h.mu.Lock()
	if c, ok := h.conns[id]; ok {
		c.lastActivity = now
	}
	h.mu.Unlock()
}

// JoinGroup adds id to name, creating the group on first join. It returns
// false when id is unknown or already a member.
func (h *Hub) JoinGroup(id, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ok := h.joinLocked(id, name)
	h.updateGaugesLocked()
	return ok
}

func (h *Hub) joinLocked(id, name string) bool {
	c, ok := h.conns[id]
	if !ok || name == "" {
		return false
	}
	g, ok := h.groups[name]
	if !ok {
		g = &group{index: make(map[string]struct{})}
		h.groups[name] = g
	}
	c.groups[name] = struct{}{}
	return g.add(id)
}

// LeaveGroup removes id from name and drops the group once empty.
func (h *Hub) LeaveGroup(id, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ok := h.leaveLocked(id, name)
	h.updateGaugesLocked()
	return ok
}

func (h *Hub) leaveLocked(id, name string) bool {
	if c, ok := h.conns[id]; ok {
		delete(c.groups, name)
	}
	g, ok := h.groups[name]
	if !ok {
		return false
	}
	removed := g.remove(id)
	if len(g.members) == 0 {
		delete(h.groups, name)
	}
	return removed
}

// LeaveAll removes id from every group and returns the groups it left,
// sorted.
func (h *Hub) LeaveAll(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return nil
	}
	left := lo.Keys(c.groups)
	for _, g := range left {
		h.leaveLocked(id, g)
	}
	h.updateGaugesLocked()
	sort.Strings(left)
	return left
}

// Members lists the members of name in join order.
func (h *Hub) Members(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[name]
	if !ok {
		return nil
	}
	return append([]string(nil), g.members...)
}

// Groups lists the groups id belongs to, sorted.
func (h *Hub) Groups(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return nil
	}
	out := lo.Keys(c.groups)
	sort.Strings(out)
	return out
}

// GroupNames lists every non-empty group, sorted.
func (h *Hub) GroupNames() []string {
	h.mu.Lock()
	out := lo.Keys(h.groups)
	h.mu.Unlock()
	sort.Strings(out)
	return out
}

// Connected reports whether id is registered.
func (h *Hub) Connected(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[id]
	return ok
}

// Stats returns hub counters.
func (h *Hub) Stats() types.HubStatus {
	h.mu.Lock()
	groups := make(map[string]int, len(h.groups))
	for name, g := range h.groups {
		groups[name] = len(g.members)
	}
	n := len(h.conns)
	h.mu.Unlock()
	return types.HubStatus{
		Connections:      n,
		Groups:           groups,
		MessagesReceived: h.received.Load(),
		MessagesSent:     h.sent.Load(),
		Evictions:        h.evictions.Load(),
	}
}

func (h *Hub) updateGaugesLocked() {
	connectionsGauge.Set(float64(len(h.conns)))
	groupsGauge.Set(float64(len(h.groups)))
}
