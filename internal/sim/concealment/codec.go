package concealment

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/rotisserie/eris"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic(err)
	}
}

// Canonical encodes v with CBOR core deterministic encoding: map keys sorted,
// shortest integer forms, no indefinite lengths.
func Canonical(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(ErrEncode, err.Error())
	}
	return b, nil
}

func Decode(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return eris.Wrap(err, "cbor decode")
	}
	return nil
}
