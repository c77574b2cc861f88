package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiosync/internal/executor"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

func dial(t *testing.T, ctx context.Context, url string) (*websocket.Conn, types.ConnectionEstablished) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	var fr frame
	require.NoError(t, wsjson.Read(ctx, conn, &fr))
	require.Equal(t, types.TypeConnectionEstablished, fr.Type)
	return conn, decode[types.ConnectionEstablished](t, fr)
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) frame {
	t.Helper()
	for {
		var fr frame
		require.NoError(t, wsjson.Read(ctx, conn, &fr))
		if fr.Type == msgType {
			return fr
		}
	}
}

func TestWebSocket_SubscribeAndUpdate(t *testing.T) {
	reg := model.NewRegistry("ws", zerolog.Nop())
	reg.CreateModel("player1", map[string]any{"type": "player", "health": 100})
	h := New(Config{Dispatcher: protocol.New("ws", reg, zerolog.Nop())})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, estA := dial(t, ctx, srv.URL)
	b, estB := dial(t, ctx, srv.URL+"?groups=type:player,lobby")
	assert.Equal(t, []string{"type:player", "lobby"}, estB.Groups)
	assert.NotEqual(t, estA.ConnectionID, estB.ConnectionID)

	require.NoError(t, wsjson.Write(ctx, a, map[string]any{
		"type":      types.TypeSubscribe,
		"requestId": "s1",
		"data":      map[string]any{"modelId": "player1"},
	}))
	sub := readUntil(t, ctx, a, types.TypeResponse)
	assert.Contains(t, string(sub.Data), `"requestId":"s1"`)

	require.NoError(t, wsjson.Write(ctx, b, map[string]any{
		"type":      types.TypeUpdate,
		"requestId": "u1",
		"data":      map[string]any{"modelId": "player1", "values": map[string]any{"health": 80}},
	}))

	upd := readUntil(t, ctx, a, types.TypeModelUpdated)
	var mu types.ModelUpdated
	require.NoError(t, json.Unmarshal(upd.Data, &mu))
	assert.Equal(t, "player1", mu.ModelID)
	assert.Equal(t, map[string]any{"health": float64(80)}, mu.Values)
	assert.Equal(t, estB.ConnectionID, mu.UpdatedBy)

	// b is in type:player but is the sender, so its next frame is the response.
	var next frame
	require.NoError(t, wsjson.Read(ctx, b, &next))
	assert.Equal(t, types.TypeResponse, next.Type)
	assert.Contains(t, string(next.Data), `"requestId":"u1"`)

	assert.Equal(t, 2, h.Stats().Connections)
}

func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	reg := model.NewRegistry("ws", zerolog.Nop())
	h := New(Config{Dispatcher: protocol.New("ws", reg, zerolog.Nop())})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, est := dial(t, ctx, srv.URL+"?groups=model:x")
	assert.Equal(t, []string{est.ConnectionID}, h.Members("model:x"))

	conn.Close(websocket.StatusNormalClosure, "done")
	require.Eventually(t, func() bool { return !h.Connected(est.ConnectionID) }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.GroupNames())
}

func TestWebSocket_BinaryFrameIsRejected(t *testing.T) {
	reg := model.NewRegistry("ws", zerolog.Nop())
	h := New(Config{Dispatcher: protocol.New("ws", reg, zerolog.Nop())})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, srv.URL)
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0x01}))
	fr := readUntil(t, ctx, conn, types.TypeError)
	assert.Contains(t, string(fr.Data), "Invalid message format")
}

func TestWebSocket_OneConnectionFillsEverySlot(t *testing.T) {
	exec := executor.New(executor.Config{Concurrency: 2})
	release := make(chan struct{})
	var inFlight, peak atomic.Int32
	exec.Register("hold", func(context.Context, json.RawMessage) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "ok", nil
	})
	reg := model.NewRegistry("ws", zerolog.Nop())
	h := New(Config{Dispatcher: protocol.New("ws", reg, zerolog.Nop()), Executor: exec})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, srv.URL)
	for i := range 4 {
		require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
			"type":      types.TypeToolCall,
			"requestId": fmt.Sprintf("t%d", i),
			"data":      map[string]any{"toolName": "hold"},
		}))
	}
	require.Eventually(t, func() bool {
		st := exec.Stats()
		return st.Running == 2 && st.Queued == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Every tool is still held, so this reply cannot be waiting on one.
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"type": types.TypePing, "requestId": "p1"}))
	pong := readUntil(t, ctx, conn, types.TypeResponse)
	assert.Contains(t, string(pong.Data), `"requestId":"p1"`)
	assert.Contains(t, string(pong.Data), `"pong":true`)

	close(release)
	seen := make(map[string]bool)
	for len(seen) < 4 {
		fr := readUntil(t, ctx, conn, types.TypeResponse)
		var r struct {
			RequestID string `json:"requestId"`
		}
		require.NoError(t, json.Unmarshal(fr.Data, &r))
		seen[r.RequestID] = true
	}
	assert.Equal(t, int32(2), peak.Load())
	require.NoError(t, exec.Wait(ctx))
	assert.Equal(t, uint64(4), exec.Stats().Succeeded)
}
