package hub

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const maxParallelPings = 32

type pingTarget struct {
	id string
	t  Transport
}

// PingAll pings every connection and refreshes the activity of those that
// answer. Failures are left for Sweep.
func (h *Hub) PingAll(ctx context.Context) {
	h.mu.Lock()
	targets := make([]pingTarget, 0, len(h.conns))
	for id, c := range h.conns {
		targets = append(targets, pingTarget{id: id, t: c.t})
	}
	h.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(maxParallelPings)
	for _, pt := range targets {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
			defer cancel()
			if err := pt.t.Ping(pctx); err != nil {
				h.log.Debug().Err(err).Str("conn", pt.id).Msg("ping failed")
				return nil
			}
			h.Touch(pt.id)
			return nil
		})
	}
	_ = g.Wait()
}

// Sweep evicts every connection idle for longer than StaleAfter at now:
// the connection leaves all its groups, is dropped from the table and its
// transport is closed. It returns the evicted ids.
func (h *Hub) Sweep(now time.Time) []string {
	h.mu.Lock()
	var stale []*connection
	for id, c := range h.conns {
		if now.Sub(c.lastActivity) > h.cfg.StaleAfter {
			if removed, ok := h.removeLocked(id); ok {
				stale = append(stale, removed)
			}
		}
	}
	h.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, c := range stale {
		ids = append(ids, c.id)
		h.evictions.Add(1)
		evictionsTotal.Inc()
		h.log.Info().Str("conn", c.id).Time("last_activity", c.lastActivity).Msg("evicting stale connection")
		if err := c.t.Close("stale connection"); err != nil {
			h.log.Debug().Err(err).Str("conn", c.id).Msg("close stale transport")
		}
	}
	return ids
}

// Run performs housekeeping every HeartbeatInterval until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()
	h.log.Info().Dur("interval", h.cfg.HeartbeatInterval).Dur("stale_after", h.cfg.StaleAfter).Msg("hub housekeeping started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.PingAll(ctx)
			h.Sweep(h.cfg.Now())
		}
	}
}

// CloseAll closes every transport and empties the hub. Used on shutdown.
func (h *Hub) CloseAll(reason string) int {
	h.mu.Lock()
	var closing []*connection
	for id := range h.conns {
		if c, ok := h.removeLocked(id); ok {
			closing = append(closing, c)
		}
	}
	h.mu.Unlock()

	for _, c := range closing {
		_ = c.t.Close(reason)
	}
	return len(closing)
}
