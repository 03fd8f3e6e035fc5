package protocol

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/addressing"
)

// Operation is a client request executed by one chain.
type Operation struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Message travels between chains. (From, Seq) identifies it for dedup.
type Message struct {
	Kind string             `json:"kind"`
	From addressing.ChainID `json:"from"`
	Seq  uint64             `json:"seq"`
	Body json.RawMessage    `json:"body,omitempty"`
}

func (m Message) ID() [32]byte { return addressing.MessageID(m.From, m.Seq) }

// OP (client -> server)
type OpRequest struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id"`
	ChainID         string    `json:"chain_id,omitempty"`
	Op              Operation `json:"op"`
}

// OP_RESULT (server -> client)
type OpResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func NewOperation(typ string, body any) (Operation, error) {
	op := Operation{Type: typ}
	if body == nil {
		return op, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return op, eris.Wrapf(err, "encode %s body", typ)
	}
	op.Body = b
	return op, nil
}

// DecodeBody unmarshals raw into T. An empty body decodes to the zero value.
func DecodeBody[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, eris.Wrap(err, "decode body")
	}
	return v, nil
}

func OK(reqID string, data any) OpResponse {
	return OpResponse{Type: TypeOpResult, RequestID: reqID, OK: true, Data: data}
}

func Fail(reqID, code, msg string) OpResponse {
	return OpResponse{Type: TypeOpResult, RequestID: reqID, Code: code, Message: msg}
}
