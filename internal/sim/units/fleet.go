package units

import (
	"encoding/binary"
	"fmt"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
)

type StateKind uint8

const (
	Idle StateKind = iota
	Moving
	InCombat
	Docked
	Blockading
)

func (k StateKind) String() string {
	switch k {
	case Idle:
		return "IDLE"
	case Moving:
		return "MOVING"
	case InCombat:
		return "IN_COMBAT"
	case Docked:
		return "DOCKED"
	case Blockading:
		return "BLOCKADING"
	default:
		return "UNKNOWN"
	}
}

// FleetState carries Destination and ArrivalMicros only when Moving and
// BattleID only when InCombat.
type FleetState struct {
	Kind          StateKind         `json:"kind" cbor:"1,keyasint"`
	Destination   coords.Coordinate `json:"destination,omitempty" cbor:"2,keyasint"`
	ArrivalMicros uint64            `json:"arrival_micros,omitempty" cbor:"3,keyasint"`
	BattleID      uint64            `json:"battle_id,omitempty" cbor:"4,keyasint"`
}

type Fleet struct {
	ID               uint64             `json:"id" cbor:"1,keyasint"`
	Owner            string             `json:"owner" cbor:"2,keyasint"`
	OwnerChain       addressing.ChainID `json:"owner_chain" cbor:"3,keyasint"`
	Ships            []Ship             `json:"ships" cbor:"4,keyasint"`
	Cargo            Resources          `json:"cargo" cbor:"5,keyasint"`
	Position         coords.Coordinate  `json:"position" cbor:"6,keyasint"`
	State            FleetState         `json:"state" cbor:"7,keyasint"`
	LastUpdateMicros uint64             `json:"last_update" cbor:"8,keyasint"`
}

// FleetKey names a fleet across chains. Fleet ids are allocated per owner
// chain, so the id alone is ambiguous inside a shared region.
type FleetKey struct {
	Owner addressing.ChainID `json:"owner_chain" cbor:"1,keyasint"`
	ID    uint64             `json:"fleet_id" cbor:"2,keyasint"`
}

func (k FleetKey) String() string { return fmt.Sprintf("%s/%d", k.Owner.Short(), k.ID) }

// StoreKey orders keys by owner, then by id.
func (k FleetKey) StoreKey() string {
	return string(binary.BigEndian.AppendUint64(append([]byte(nil), k.Owner[:]...), k.ID))
}

func (f *Fleet) Key() FleetKey { return FleetKey{Owner: f.OwnerChain, ID: f.ID} }

func (f *Fleet) sum(pick func(Ship) uint32) uint64 {
	var n uint64
	for _, s := range f.Ships {
		if s.Alive() {
			n += uint64(pick(s))
		}
	}
	return n
}

func (f *Fleet) TotalAttack() uint64  { return f.sum(Ship.EffectiveAttack) }
func (f *Fleet) TotalDefense() uint64 { return f.sum(Ship.EffectiveDefense) }
func (f *Fleet) TotalHealth() uint64  { return f.sum(func(s Ship) uint32 { return s.Health }) }

func (f *Fleet) CargoCapacity() uint64 {
	return f.sum(func(s Ship) uint32 { st, _ := StatsOf(s.Type); return st.Cargo })
}

func (f *Fleet) FuelConsumption() uint64 {
	return f.sum(func(s Ship) uint32 { st, _ := StatsOf(s.Type); return st.Fuel })
}

// Speed is the slowest alive ship's speed, or 0 for a fleet with none.
func (f *Fleet) Speed() uint32 {
	var speed uint32
	found := false
	for _, s := range f.Ships {
		if !s.Alive() {
			continue
		}
		st, _ := StatsOf(s.Type)
		if !found || st.Speed < speed {
			speed = st.Speed
			found = true
		}
	}
	return speed
}

func (f *Fleet) Destroyed() bool {
	for _, s := range f.Ships {
		if s.Alive() {
			return false
		}
	}
	return true
}

func (f *Fleet) Count(t ShipType) uint32 {
	var n uint32
	for _, s := range f.Ships {
		if s.Alive() && s.Type == t {
			n++
		}
	}
	return n
}

// Counts returns alive ships per type index.
func (f *Fleet) Counts() []uint32 {
	out := make([]uint32, NumShipTypes)
	for _, s := range f.Ships {
		if s.Alive() && s.Type.Valid() {
			out[s.Type]++
		}
	}
	return out
}

func (f *Fleet) PathTo(dest coords.Coordinate, shardSize int64) coords.FlightPath {
	return coords.DirectPath(f.Position, dest, f.Speed(), f.FuelConsumption(), shardSize)
}

// FleetFromCounts builds a fleet of fresh ships from per-type counts.
func FleetFromCounts(id uint64, owner string, chain addressing.ChainID, counts []uint32, pos coords.Coordinate) Fleet {
	f := Fleet{ID: id, Owner: owner, OwnerChain: chain, Position: pos}
	for i, n := range counts {
		for j := uint32(0); j < n; j++ {
			f.Ships = append(f.Ships, NewShip(ShipType(i)))
		}
	}
	return f
}
