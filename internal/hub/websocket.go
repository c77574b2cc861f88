package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsTransport queues outbound frames for a single writer goroutine so
// broadcasts never block on a slow peer.
type wsTransport struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newWSTransport(conn *websocket.Conn, buffer int) *wsTransport {
	return &wsTransport{
		conn: conn,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	select {
	case t.out <- payload:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		// The close handshake waits on the stalled peer; keep it off the sender.
		go t.closeWith(websocket.StatusPolicyViolation, "backpressure")
		return ErrSlowConsumer
	}
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) error {
	return t.closeWith(websocket.StatusGoingAway, reason)
}

func (t *wsTransport) closeWith(code websocket.StatusCode, reason string) error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close(code, reason)
	})
	return err
}

// writeLoop drains the outbound queue until the transport closes.
func (t *wsTransport) writeLoop(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			return
		case p := <-t.out:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := t.conn.Write(wctx, websocket.MessageText, p)
			cancel()
			if err != nil {
				t.closeWith(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// peer goes away. The "groups" query parameter lists groups to join.
//
// Inbound frames are handled one at a time in arrival order by a dedicated
// goroutine, so the read loop keeps answering pings while a handler runs.
// Tool calls only hold that goroutine while they are enqueued.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	t := newWSTransport(conn, h.cfg.SendBuffer)
	go t.writeLoop(ctx, h.cfg.SendTimeout)

	id := h.Connect(t, ParseGroups(r.URL.Query().Get("groups")))

	inbox := make(chan []byte, h.cfg.SendBuffer)
	worker := make(chan struct{})
	go func() {
		defer close(worker)
		for raw := range inbox {
			h.HandleMessage(ctx, id, raw)
		}
	}()

	defer func() {
		close(inbox)
		h.Disconnect(id)
		t.Close("bye")
		cancel()
		<-worker
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if s := websocket.CloseStatus(err); s == -1 && !errors.Is(err, context.Canceled) {
				h.log.Debug().Err(err).Str("conn", id).Msg("websocket read ended")
			}
			return
		}
		h.Touch(id)
		if typ != websocket.MessageText {
			h.sendError(ctx, id, "", "Invalid message format")
			continue
		}
		select {
		case inbox <- data:
		case <-t.done:
			return
		}
	}
}
