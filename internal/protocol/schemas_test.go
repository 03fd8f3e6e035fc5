package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	s, err := protocol.CompileSchemas()
	require.NoError(t, err)

	chain := strings.Repeat("ab", 32)
	req, err := s.DecodeRequest([]byte(`{
	  "type":"OP",
	  "protocol_version":"1.0",
	  "request_id":"r1",
	  "chain_id":"` + chain + `",
	  "op":{"type":"SUBMIT_COMMAND","body":{"fleet":{"owner_chain":"` + chain + `","fleet_id":7},"command":"HOLD"}}
	}`))
	require.NoError(t, err)
	require.Equal(t, protocol.OpSubmitCommand, req.Op.Type)
	body, err := protocol.DecodeBody[protocol.SubmitCommandBody](req.Op.Body)
	require.NoError(t, err)
	require.Equal(t, uint64(7), body.Fleet.ID)
	require.Equal(t, chain, body.Fleet.Owner.String())

	_, err = s.DecodeRequest([]byte(`{
	  "type":"OP","protocol_version":"1.0","request_id":"r2",
	  "op":{"type":"OPEN_REGION","body":{"shard":{"x":1,"y":-2}}}
	}`))
	require.NoError(t, err)

	ok, err := json.Marshal(protocol.OK("r1", map[string]int{"turn": 1}))
	require.NoError(t, err)
	require.NoError(t, s.ValidateResponse(ok))
	fail, err := json.Marshal(protocol.Fail("r1", protocol.ErrNotActive, "battle ended"))
	require.NoError(t, err)
	require.NoError(t, s.ValidateResponse(fail))
}

func TestSchemas_RejectBadFrames(t *testing.T) {
	s, err := protocol.CompileSchemas()
	require.NoError(t, err)

	bad := map[string]string{
		"missing chain": `{"type":"OP","protocol_version":"1.0","request_id":"r","op":{"type":"DIGEST"}}`,
		"unknown op":    `{"type":"OP","protocol_version":"1.0","request_id":"r","chain_id":"` + strings.Repeat("0", 64) + `","op":{"type":"NUKE"}}`,
		"short chain":   `{"type":"OP","protocol_version":"1.0","request_id":"r","chain_id":"abcd","op":{"type":"DIGEST"}}`,
		"wrong type":    `{"type":"HELLO","protocol_version":"1.0","request_id":"r","op":{"type":"OPEN_REGION"}}`,
		"not json":      `{`,
		"sub selector":  `{"type":"OP","protocol_version":"1.0","request_id":"r","op":{"type":"OPEN_REGION","body":{"shard":{"x":0,"y":0},"sub":{"shard":{"x":0,"y":0},"sub_x":7,"sub_y":0}}}}`,
	}
	for name, raw := range bad {
		_, err := s.DecodeRequest([]byte(raw))
		require.Error(t, err, name)
	}

	noCode, err := json.Marshal(protocol.OpResponse{Type: protocol.TypeOpResult, RequestID: "r"})
	require.NoError(t, err)
	require.Error(t, s.ValidateResponse(noCode))
	unknown, err := json.Marshal(protocol.Fail("r", "E_WHATEVER", ""))
	require.NoError(t, err)
	require.Error(t, s.ValidateResponse(unknown))
}

func TestMessageIDStable(t *testing.T) {
	from := addressing.ChainID{1}
	a := protocol.Message{Kind: protocol.MsgInitBattle, From: from, Seq: 3}
	b := protocol.Message{Kind: protocol.MsgBattleResult, From: from, Seq: 3}
	require.Equal(t, a.ID(), b.ID())
	require.NotEqual(t, a.ID(), protocol.Message{From: from, Seq: 4}.ID())
}
