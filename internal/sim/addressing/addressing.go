package addressing

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"dominion.gg/internal/sim/coords"
)

// Domain tags. Bump the version suffix whenever an encoding below changes.
const (
	TagShard      = "DOMINION_SHARD_V1"
	TagSubShard   = "DOMINION_SUBSHARD_V1"
	TagBattle     = "DOMINION_BATTLE_V1"
	TagProcedural = "DOMINION_PROCEDURAL_V1"
	TagSalt       = "DOMINION_SALT_V1"
	TagMessage    = "DOMINION_MESSAGE_V1"
)

type ChainID [32]byte

type Seed [32]byte

// DefaultSeed is the universe seed used when none is configured.
var DefaultSeed = Seed([]byte("LINERA_DOMINION_UNIVERSE_SEED_V1"))

func (id ChainID) String() string { return hex.EncodeToString(id[:]) }

func (id ChainID) Short() string { return hex.EncodeToString(id[:4]) }

func (id ChainID) IsZero() bool { return id == ChainID{} }

func (id ChainID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ChainID) UnmarshalText(b []byte) error {
	v, err := ParseChainID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func ParseChainID(s string) (ChainID, error) {
	var id ChainID
	if err := decode32(s, id[:]); err != nil {
		return ChainID{}, fmt.Errorf("chain id: %w", err)
	}
	return id, nil
}

func (s Seed) String() string { return hex.EncodeToString(s[:]) }

func ParseSeed(s string) (Seed, error) {
	var seed Seed
	if err := decode32(s, seed[:]); err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}
	return seed, nil
}

func decode32(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(dst, b)
	return nil
}

// Sum is SHA3-256 over tag followed by parts.
func Sum(tag string, parts ...[]byte) [32]byte {
	h := sha3.New256()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	if n := copy(out[:], h.Sum(nil)); n != len(out) {
		panic("addressing: short sha3 digest")
	}
	return out
}

func I64(v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func U64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func ShardID(s coords.ShardCoordinate, seed Seed) ChainID {
	return Sum(TagShard, I64(s.X), I64(s.Y), seed[:])
}

func SubShardID(s coords.SubShardCoordinate, seed Seed) ChainID {
	return Sum(TagSubShard, I64(s.Shard.X), I64(s.Shard.Y), []byte{s.SubX, s.SubY}, seed[:])
}

// BattleChainID names the chain spawned by region for its battleID-th battle.
func BattleChainID(region ChainID, battleID uint64, seed Seed) ChainID {
	return Sum(TagBattle, region[:], U64(battleID), seed[:])
}

// MessageID identifies the seq-th message sent by from. Recipients use it to
// drop redeliveries.
func MessageID(from ChainID, seq uint64) [32]byte {
	return Sum(TagMessage, from[:], U64(seq))
}

// Neighbours returns chain ids of the shards around s in Adjacent order.
func Neighbours(s coords.ShardCoordinate, seed Seed) [8]ChainID {
	var out [8]ChainID
	for i, n := range s.Adjacent() {
		out[i] = ShardID(n, seed)
	}
	return out
}
