package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dominion.gg/internal/chains"
	"dominion.gg/internal/host"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/region"
	"dominion.gg/internal/store"
)

type harness struct {
	conn    *websocket.Conn
	schemas *protocol.Schemas
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	cfg.Seed = addressing.DefaultSeed
	bus := host.NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })
	mgr, err := host.NewManager(host.Options{
		Store:     store.NewMemory(),
		Bus:       bus,
		Clock:     host.NewManualClock(1),
		Log:       zerolog.Nop(),
		Factories: chains.Factories(chains.Config{Region: region.Config{Seed: cfg.Seed}}),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	schemas, err := protocol.CompileSchemas()
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(mgr, schemas, cfg, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{conn: conn, schemas: schemas}
}

func (h *harness) roundTrip(t *testing.T, frame any) protocol.OpResponse {
	t.Helper()
	var b []byte
	switch f := frame.(type) {
	case string:
		b = []byte(f)
	default:
		var err error
		b, err = json.Marshal(f)
		require.NoError(t, err)
	}
	require.NoError(t, h.conn.WriteMessage(websocket.TextMessage, b))
	_ = h.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := h.conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, h.schemas.ValidateResponse(raw))
	var resp protocol.OpResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func request(id, chain, typ string, body any) protocol.OpRequest {
	op, _ := protocol.NewOperation(typ, body)
	return protocol.OpRequest{Type: protocol.TypeOp, ProtocolVersion: protocol.Version, RequestID: id, ChainID: chain, Op: op}
}

func TestOpenRegionThenArrive(t *testing.T) {
	h := newHarness(t, Config{})
	shard := coords.ShardCoordinate{X: 2, Y: -1}
	chain := addressing.ShardID(shard, addressing.DefaultSeed).String()

	resp := h.roundTrip(t, request("r1", "", protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: shard}))
	require.True(t, resp.OK, resp.Message)
	require.Equal(t, "r1", resp.RequestID)

	resp = h.roundTrip(t, request("r2", chain, protocol.OpFleetArrive, protocol.FleetArriveBody{
		FleetID: 7, OwnerChain: addressing.ChainID{1}, Position: coords.Coordinate{X: 250, Y: -50},
	}))
	require.True(t, resp.OK, resp.Message)

	resp = h.roundTrip(t, request("r3", chain, protocol.OpFleetArrive, protocol.FleetArriveBody{
		FleetID: 8, Position: coords.Coordinate{X: 0, Y: 0},
	}))
	require.False(t, resp.OK)
	require.Equal(t, protocol.ErrBadRequest, resp.Code)

	resp = h.roundTrip(t, request("r4", chain, protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: shard}))
	require.Equal(t, protocol.ErrConflict, resp.Code)

	resp = h.roundTrip(t, request("r5", chain, protocol.OpDigest, nil))
	require.True(t, resp.OK)
	data := resp.Data.(map[string]any)
	require.Equal(t, chain, data["chain_id"])
}

func TestRejectsMalformedFrames(t *testing.T) {
	h := newHarness(t, Config{})

	resp := h.roundTrip(t, `{"type":"OP","request_id":"x"`)
	require.Equal(t, protocol.ErrBadRequest, resp.Code)

	resp = h.roundTrip(t, `{"type":"OP","protocol_version":"1.0","request_id":"q","op":{"type":"FLEET_LEAVE"}}`)
	require.Equal(t, protocol.ErrBadRequest, resp.Code)
	require.Equal(t, "q", resp.RequestID)

	resp = h.roundTrip(t, request("v", strings.Repeat("ab", 32), protocol.OpDigest, nil))
	require.Equal(t, protocol.ErrUnknownChain, resp.Code)

	bad := request("w", strings.Repeat("ab", 32), protocol.OpDigest, nil)
	bad.ProtocolVersion = "0.9"
	resp = h.roundTrip(t, bad)
	require.Equal(t, protocol.ErrBadRequest, resp.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, Config{RatePerSec: 0.001, RateBurst: 2})
	req := request("a", "", protocol.OpOpenRegion, protocol.OpenRegionBody{})

	require.True(t, h.roundTrip(t, req).OK)
	require.Equal(t, protocol.ErrConflict, h.roundTrip(t, req).Code)
	resp := h.roundTrip(t, req)
	require.Equal(t, protocol.ErrRateLimit, resp.Code)
	require.Equal(t, "a", resp.RequestID)
}

func TestOpenRegionRefusesSubShard(t *testing.T) {
	h := newHarness(t, Config{})
	shard := coords.ShardCoordinate{X: 1, Y: 1}
	sub := coords.SubShardCoordinate{Shard: shard, SubX: 1, SubY: 0}

	resp := h.roundTrip(t, request("s1", "", protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: shard, Sub: &sub}))
	require.False(t, resp.OK)
	require.Equal(t, protocol.ErrForbidden, resp.Code)

	// nothing was started for the sub-shard
	resp = h.roundTrip(t, request("s2", addressing.SubShardID(sub, addressing.DefaultSeed).String(), protocol.OpDigest, nil))
	require.Equal(t, protocol.ErrUnknownChain, resp.Code)

	resp = h.roundTrip(t, `{"type":"OP","protocol_version":"1.0","request_id":"s3","op":{"type":"OPEN_REGION","body":{"shard":{"x":1,"y":1},"sub":{"shard":{"x":1,"y":1},"sub_x":2,"sub_y":0}}}}`)
	require.Equal(t, protocol.ErrBadRequest, resp.Code)
}
