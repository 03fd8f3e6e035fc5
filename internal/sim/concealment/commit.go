package concealment

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/sha3"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
)

var (
	ErrEncode          = eris.New("canonical encoding failed")
	ErrHashMismatch    = eris.New("commitment hash mismatch")
	ErrAlreadyRevealed = eris.New("commitment already revealed")
)

type (
	Salt [32]byte
	Hash [32]byte
)

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	return decodeHex(string(b), h[:])
}

func (s Salt) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(s[:])), nil }

func (s *Salt) UnmarshalText(b []byte) error {
	return decodeHex(string(b), s[:])
}

func decodeHex(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return eris.Wrap(err, "hex")
	}
	if len(b) != len(dst) {
		return eris.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// GenerateSalt derives a salt from caller-supplied entropy. Reusing entropy
// across commitments makes them linkable.
func GenerateSalt(entropy []byte) Salt {
	return Salt(addressing.Sum(addressing.TagSalt, entropy))
}

// Commit hashes the canonical encoding of v followed by salt. An encoding
// failure aborts: there is no commitment over empty input.
func Commit(v any, salt Salt) (Hash, error) {
	b, err := Canonical(v)
	if err != nil {
		return Hash{}, err
	}
	h := sha3.New256()
	h.Write(b)
	h.Write(salt[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

func Verify(v any, salt Salt, claimed Hash) (bool, error) {
	got, err := Commit(v, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got[:], claimed[:]) == 1, nil
}

// Commitment binds a value of type T without storing it.
type Commitment[T any] struct {
	Hash            Hash   `json:"hash" cbor:"1,keyasint"`
	CreatedAtMicros uint64 `json:"created_at" cbor:"2,keyasint"`
	Revealed        bool   `json:"revealed" cbor:"3,keyasint"`
}

func NewCommitment[T any](v T, salt Salt, now uint64) (Commitment[T], error) {
	h, err := Commit(v, salt)
	if err != nil {
		return Commitment[T]{}, err
	}
	return Commitment[T]{Hash: h, CreatedAtMicros: now}, nil
}

// FromHash wraps a hash computed elsewhere, e.g. by the owner before arrival.
func FromHash[T any](h Hash, now uint64) Commitment[T] {
	return Commitment[T]{Hash: h, CreatedAtMicros: now}
}

// Reveal checks v and salt against the commitment and marks it revealed.
// A revealed commitment stays revealed.
func (c *Commitment[T]) Reveal(v T, salt Salt) error {
	if c.Revealed {
		return ErrAlreadyRevealed
	}
	ok, err := Verify(v, salt, c.Hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHashMismatch
	}
	c.Revealed = true
	return nil
}

type FleetCommitment struct {
	FleetID      uint64            `json:"fleet_id" cbor:"1,keyasint"`
	Owner        string            `json:"owner" cbor:"2,keyasint"`
	Position     coords.Coordinate `json:"position" cbor:"3,keyasint"`
	Hash         Hash              `json:"hash" cbor:"4,keyasint"`
	CommitMicros uint64            `json:"commit_time" cbor:"5,keyasint"`
	Revealed     bool              `json:"revealed" cbor:"6,keyasint"`
}

func CommitFleet(f units.Fleet, salt Salt, now uint64) (FleetCommitment, error) {
	h, err := Commit(f, salt)
	if err != nil {
		return FleetCommitment{}, eris.Wrapf(err, "fleet %d", f.ID)
	}
	return FleetCommitment{
		FleetID:      f.ID,
		Owner:        f.Owner,
		Position:     f.Position,
		Hash:         h,
		CommitMicros: now,
	}, nil
}
