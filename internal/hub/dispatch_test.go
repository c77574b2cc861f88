package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiosync/internal/protocol"
	"studiosync/pkg/types"
)

func TestHandleMessage_FormatErrors(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		message string
		reqID   string
	}{
		{"invalid json", `{"type":`, "Invalid message format", ""},
		{"missing type", `{"data":{},"requestId":"r1"}`, "Message type is required", "r1"},
		{"unknown type", `{"type":"scene:explode","requestId":"r2"}`, "Unknown message type: scene:explode", "r2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			a, ta := fx.connect()
			_, tb := fx.connect()
			ta.reset()
			tb.reset()

			fx.send(a, tc.raw)

			frames := ta.all()
			require.Len(t, frames, 1)
			assert.Equal(t, types.TypeError, frames[0].Type)
			msg := decode[types.ErrorMessage](t, frames[0])
			assert.Equal(t, tc.message, msg.Message)
			assert.Equal(t, tc.reqID, msg.RequestID)
			assert.Empty(t, tb.all(), "errors go to the sender only")
			assert.True(t, fx.hub.Connected(a))
		})
	}
}

func TestHandleMessage_SingleResultIsUnwrapped(t *testing.T) {
	fx := newFixture(t)
	a, ta := fx.connect()
	ta.reset()

	fx.send(a, `{"type":"ping","requestId":"r1"}`)

	frames := ta.ofType(types.TypeResponse)
	require.Len(t, frames, 1)
	var resp struct {
		RequestID string         `json:"requestId"`
		Results   map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Data, &resp))
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, true, resp.Results["pong"])
	assert.Equal(t, "2026-10-15T12:00:00.000Z", resp.Results["timestamp"])
}

func TestHandleMessage_MultipleResultsStayAList(t *testing.T) {
	fx := newFixture(t)
	fx.hub.Dispatcher().RegisterHandler(types.TypePing, func(context.Context, json.RawMessage) (any, error) {
		return "second", nil
	})
	fx.hub.Dispatcher().RegisterHandler(types.TypePing, func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("third failed")
	})
	a, ta := fx.connect()
	ta.reset()

	fx.send(a, `{"type":"ping","requestId":"r9"}`)

	frames := ta.ofType(types.TypeResponse)
	require.Len(t, frames, 1)
	var resp struct {
		RequestID string            `json:"requestId"`
		Results   []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Data, &resp))
	require.Len(t, resp.Results, 3)
	assert.Contains(t, string(resp.Results[0]), `"pong":true`)
	assert.JSONEq(t, `"second"`, string(resp.Results[1]))
	assert.JSONEq(t, `{"error":true,"message":"third failed"}`, string(resp.Results[2]))
}

func TestHandleMessage_NoRequestIDNoResponse(t *testing.T) {
	fx := newFixture(t)
	a, ta := fx.connect()
	ta.reset()

	fx.send(a, `{"type":"ping"}`)
	assert.Empty(t, ta.all())
}

func TestHandleMessage_HandlerSeesOrigin(t *testing.T) {
	fx := newFixture(t)
	var got string
	fx.hub.Dispatcher().RegisterHandler("whoami", func(ctx context.Context, _ json.RawMessage) (any, error) {
		got = protocol.OriginFrom(ctx)
		return got, nil
	})
	a, _ := fx.connect()
	fx.send(a, `{"type":"whoami"}`)
	assert.Equal(t, a, got)
}

func TestHandleMessage_RefreshesActivity(t *testing.T) {
	fx := newFixture(t)
	a, _ := fx.connect()
	b, _ := fx.connect()

	fx.clock.Advance(50 * time.Second)
	fx.send(a, `{"type":"ping"}`)
	fx.clock.Advance(20 * time.Second)

	assert.Equal(t, []string{b}, fx.hub.Sweep(fx.clock.Now()))
	assert.True(t, fx.hub.Connected(a))
}
