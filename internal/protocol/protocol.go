package protocol

import "encoding/json"

const Version = "1.0"

// Frame types.
const (
	TypeOp       = "OP"
	TypeOpResult = "OP_RESULT"
)

// BaseMessage lets us route unknown JSON frames by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
