package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

// Notifier delivers a message to one live connection.
type Notifier interface {
	Notify(ctx context.Context, connID, msgType string, data any) error
}

// Outcome is the terminal state of one call.
type Outcome struct {
	Result any
	Err    error
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Concurrency int
	Queued      int
	Running     int
	Succeeded   uint64
	Failed      uint64
}

type queueItem struct {
	seq    uint64
	tool   string
	args   json.RawMessage
	origin string
	done   chan Outcome
}

// settled is a finished call whose tool_result and Outcome are not yet out.
type settled struct {
	it  *queueItem
	msg types.ToolResult
	out Outcome
}

// Sequential runs tool calls from one shared FIFO queue. Calls are released
// in enqueue order, at most Concurrency at a time. With Concurrency 1 the
// completion order equals the enqueue order.
//
// A call frees its slot as soon as the tool returns. Its tool_result and
// Outcome are handed out afterwards by a single goroutine in completion
// order, so a slow origin delays other results but never the queue, and a
// result push may overlap the start of the next call.
type Sequential struct {
	cfg   Config
	log   zerolog.Logger
	tools *ToolRegistry

	mu         sync.Mutex
	queue      []*queueItem
	active     int
	seq        uint64
	closed     bool
	notifier   Notifier
	succeeded  uint64
	failed     uint64
	idle       chan struct{}
	idleClosed bool

	outbox   []settled
	flushing bool
}

// New constructs a Sequential executor from cfg.
func New(cfg Config) *Sequential {
	cfg = cfg.withDefaults()
	idle := make(chan struct{})
	close(idle)
	return &Sequential{
		cfg:        cfg,
		log:        *cfg.Logger,
		tools:      cfg.Tools,
		idle:       idle,
		idleClosed: true,
	}
}

// SetNotifier installs the sink for tool_result messages.
func (e *Sequential) SetNotifier(n Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// Tools exposes the underlying registry.
func (e *Sequential) Tools() *ToolRegistry { return e.tools }

// Register adds a tool and returns its queued form: calling the returned
// func enqueues the call and waits for its outcome.
func (e *Sequential) Register(name string, fn ToolFunc) ToolFunc {
	e.tools.Register(name, fn)
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		return e.Call(ctx, name, args)
	}
}

// Call enqueues a call on behalf of the connection bound in ctx and waits
// for it. If ctx ends first the call keeps its place and still runs.
func (e *Sequential) Call(ctx context.Context, tool string, args json.RawMessage) (any, error) {
	ch := e.Enqueue(protocol.OriginFrom(ctx), tool, args)
	select {
	case out := <-ch:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enqueue appends a call to the queue and returns a channel that receives
// its single Outcome.
func (e *Sequential) Enqueue(origin, tool string, args json.RawMessage) <-chan Outcome {
	done := make(chan Outcome, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		done <- Outcome{Err: ErrExecutorClosed}
		return done
	}
	e.seq++
	it := &queueItem{seq: e.seq, tool: tool, args: args, origin: origin, done: done}
	e.queue = append(e.queue, it)
	if e.idleClosed {
		e.idle = make(chan struct{})
		e.idleClosed = false
	}
	queueDepth.Inc()
	e.cfg.Publisher.Publish(Event{Name: EventQueued, Tool: tool, Seq: it.seq, Origin: origin})
	e.drainLocked()
	e.mu.Unlock()
	return done
}

// drainLocked releases queued items while a running slot is free.
// Must be called with mu held.
func (e *Sequential) drainLocked() {
	for e.active < e.cfg.Concurrency && len(e.queue) > 0 {
		it := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		if len(e.queue) == 0 {
			e.queue = nil
		}
		e.active++
		queueDepth.Dec()
		running.Inc()
		// Published under the lock so started events keep release order.
		e.cfg.Publisher.Publish(Event{Name: EventStarted, Tool: it.tool, Seq: it.seq, Origin: it.origin})
		go e.run(it)
	}
}

func (e *Sequential) run(it *queueItem) {
	start := time.Now()
	ctx := protocol.WithOrigin(e.cfg.BaseContext, it.origin)
	res, err := e.execute(ctx, it)
	dur := time.Since(start)
	toolDuration.WithLabelValues(it.tool).Observe(dur.Seconds())

	msg := types.ToolResult{ToolName: it.tool, Success: err == nil}
	evt := Event{Tool: it.tool, Seq: it.seq, Origin: it.origin, Fields: map[string]any{"duration_ms": dur.Milliseconds()}}
	if err != nil {
		msg.Error = err.Error()
		evt.Name = EventFailed
		evt.Fields["error"] = err.Error()
		toolCallsTotal.WithLabelValues(it.tool, "failed").Inc()
		e.log.Error().Err(err).Str("tool", it.tool).Uint64("seq", it.seq).Str("origin", it.origin).Dur("dur", dur).Msg("tool failed")
	} else {
		msg.Result = res
		evt.Name = EventSucceeded
		toolCallsTotal.WithLabelValues(it.tool, "succeeded").Inc()
		e.log.Debug().Str("tool", it.tool).Uint64("seq", it.seq).Str("origin", it.origin).Dur("dur", dur).Msg("tool succeeded")
	}

	e.cfg.Publisher.Publish(evt)
	e.finish(settled{it: it, msg: msg, out: Outcome{Result: res, Err: err}})
}

func (e *Sequential) execute(ctx context.Context, it *queueItem) (res any, err error) {
	fn, ok := e.tools.Lookup(it.tool)
	if !ok {
		return nil, ToolNotFoundError{Name: it.tool}
	}
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = toolPanicError{tool: it.tool, value: r}
		}
	}()
	return fn(ctx, it.args)
}

func (e *Sequential) notify(origin string, msg types.ToolResult) {
	if origin == "" {
		return
	}
	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(e.cfg.BaseContext, e.cfg.NotifyTimeout)
	defer cancel()
	if err := n.Notify(ctx, origin, types.TypeToolResult, msg); err != nil {
		e.log.Warn().Err(err).Str("tool", msg.ToolName).Str("origin", origin).Msg("tool_result not delivered")
	}
}

// finish frees the running slot, releases the next queued item and queues
// s for delivery.
func (e *Sequential) finish(s settled) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active--
	running.Dec()
	if s.out.Err == nil {
		e.succeeded++
	} else {
		e.failed++
	}
	e.outbox = append(e.outbox, s)
	if !e.flushing {
		e.flushing = true
		go e.flush()
	}
	e.drainLocked()
}

// flush delivers settled calls in the order they finished.
func (e *Sequential) flush() {
	for {
		e.mu.Lock()
		if len(e.outbox) == 0 {
			e.flushing = false
			e.idleLocked()
			e.mu.Unlock()
			return
		}
		s := e.outbox[0]
		e.outbox[0] = settled{}
		e.outbox = e.outbox[1:]
		e.mu.Unlock()

		e.notify(s.it.origin, s.msg)
		s.it.done <- s.out
	}
}

// idleLocked closes the idle channel once nothing is left to do.
// Must be called with mu held.
func (e *Sequential) idleLocked() {
	if e.busyLocked() || e.idleClosed {
		return
	}
	close(e.idle)
	e.idleClosed = true
}

func (e *Sequential) busyLocked() bool {
	return e.active > 0 || len(e.queue) > 0 || e.flushing
}

// Stats returns the current queue counters.
func (e *Sequential) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Concurrency: e.cfg.Concurrency,
		Queued:      len(e.queue),
		Running:     e.active,
		Succeeded:   e.succeeded,
		Failed:      e.failed,
	}
}

// Close rejects further calls. Queued and running calls still complete.
func (e *Sequential) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Wait blocks until nothing is queued, running or awaiting delivery, or
// ctx ends.
func (e *Sequential) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		if !e.busyLocked() {
			e.mu.Unlock()
			return nil
		}
		idle := e.idle
		e.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
