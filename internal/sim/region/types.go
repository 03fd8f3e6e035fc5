package region

import (
	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/sim/worldgen"
)

const (
	DefaultMaxUnits            uint32 = 5000
	DefaultMinimumStake        uint64 = 1000
	DefaultDecayPercentPerHour uint64 = 1

	HourMicros uint64 = 3600 * 1_000_000
)

var (
	ErrNotInstantiated      = eris.New("region not instantiated")
	ErrAlreadyInstantiated  = eris.New("region already instantiated")
	ErrOutOfBounds          = eris.New("coordinate outside region bounds")
	ErrShardFull            = eris.New("region at unit capacity")
	ErrShardSubdivided      = eris.New("region subdivided; route to sub-shard")
	ErrCannotSubdivide      = eris.New("region cannot be subdivided further")
	ErrFleetPresent         = eris.New("fleet already present")
	ErrFleetNotFound        = eris.New("fleet not found in region")
	ErrFleetAlreadyRevealed = eris.New("fleet already revealed")
	ErrFleetNotRevealed     = eris.New("fleet not revealed")
	ErrInvalidReveal        = eris.New("invalid fleet reveal")
	ErrInvalidSubShard      = eris.New("invalid sub-shard selector")
	ErrInvalidTarget        = eris.New("invalid hostility target")
	ErrBattleInProgress     = eris.New("fleet already engaged in battle")
	ErrBattleNotFound       = eris.New("battle not found")
	ErrBattleResolved       = eris.New("battle already resolved")
	ErrPlanetNotFound       = eris.New("planet not found")
	ErrPlanetAlreadyClaimed = eris.New("planet already claimed")
	ErrNotPlanetOwner       = eris.New("not the planet owner")
	ErrInsufficientStake    = eris.New("stake below minimum")
	ErrDebrisNotFound       = eris.New("debris not found")
)

type Config struct {
	Shard               coords.ShardCoordinate     `json:"shard"`
	Sub                 *coords.SubShardCoordinate `json:"sub,omitempty"`
	Seed                addressing.Seed            `json:"seed"`
	ShardSize           int64                      `json:"shard_size"`
	MaxUnits            uint32                     `json:"max_units"`
	MinimumStake        uint64                     `json:"minimum_stake"`
	DecayPercentPerHour uint64                     `json:"decay_percent_per_hour"`
	BattleMaxTurns      uint32                     `json:"battle_max_turns"`
	BattleTurnMicros    uint64                     `json:"battle_turn_micros"`
	DebrisPercent       uint64                     `json:"debris_percent"`
}

// ChainID is the address of the chain that owns this region.
func (c Config) ChainID() addressing.ChainID {
	if c.Sub != nil {
		return addressing.SubShardID(*c.Sub, c.Seed)
	}
	return addressing.ShardID(c.Shard, c.Seed)
}

type Meta struct {
	Config       Config             `json:"config" cbor:"1,keyasint"`
	ChainID      addressing.ChainID `json:"chain_id" cbor:"2,keyasint"`
	Subdivided   bool               `json:"subdivided" cbor:"3,keyasint"`
	FleetCount   uint32             `json:"fleet_count" cbor:"4,keyasint"`
	NextBattleID uint64             `json:"next_battle_id" cbor:"5,keyasint"`
	NextDebrisID uint64             `json:"next_debris_id" cbor:"6,keyasint"`
}

type Arrival struct {
	FleetID    uint64             `json:"fleet_id"`
	OwnerChain addressing.ChainID `json:"owner_chain"`
	Position   coords.Coordinate  `json:"position"`
	Commitment concealment.Hash   `json:"commitment"`
}

func (a Arrival) Key() units.FleetKey { return units.FleetKey{Owner: a.OwnerChain, ID: a.FleetID} }

type FleetPresence struct {
	FleetID         uint64                              `json:"fleet_id" cbor:"1,keyasint"`
	OwnerChain      addressing.ChainID                  `json:"owner_chain" cbor:"2,keyasint"`
	Position        coords.Coordinate                   `json:"position" cbor:"3,keyasint"`
	Commitment      concealment.Commitment[units.Fleet] `json:"commitment" cbor:"4,keyasint"`
	ArrivedMicros   uint64                              `json:"arrived_at" cbor:"5,keyasint"`
	Revealed        bool                                `json:"revealed" cbor:"6,keyasint"`
	Counts          []uint32                            `json:"counts,omitempty" cbor:"7,keyasint"`
	RevealRequested bool                                `json:"reveal_requested" cbor:"8,keyasint"`
	InBattle        bool                                `json:"in_battle" cbor:"9,keyasint"`
	BattleID        uint64                              `json:"battle_id,omitempty" cbor:"10,keyasint"`
}

func (p FleetPresence) Key() units.FleetKey { return units.FleetKey{Owner: p.OwnerChain, ID: p.FleetID} }

type Planet struct {
	ID                 uint64              `json:"id" cbor:"1,keyasint"`
	Position           coords.Coordinate   `json:"position" cbor:"2,keyasint"`
	Type               worldgen.PlanetType `json:"type" cbor:"3,keyasint"`
	Name               string              `json:"name" cbor:"4,keyasint"`
	Owner              addressing.ChainID  `json:"owner" cbor:"5,keyasint"`
	Stake              units.Resources     `json:"stake" cbor:"6,keyasint"`
	StakeUpdatedMicros uint64              `json:"stake_updated" cbor:"7,keyasint"`
}

func (p Planet) Claimed() bool { return !p.Owner.IsZero() }

type Debris struct {
	ID            uint64            `json:"id" cbor:"1,keyasint"`
	Position      coords.Coordinate `json:"position" cbor:"2,keyasint"`
	Resources     units.Resources   `json:"resources" cbor:"3,keyasint"`
	CreatedMicros uint64            `json:"created_at" cbor:"4,keyasint"`
}

type BattleRef struct {
	BattleID      uint64             `json:"battle_id" cbor:"1,keyasint"`
	Chain         addressing.ChainID `json:"chain" cbor:"2,keyasint"`
	Position      coords.Coordinate  `json:"position" cbor:"3,keyasint"`
	Attacker      units.FleetKey     `json:"attacker" cbor:"4,keyasint"`
	Defender      units.FleetKey     `json:"defender" cbor:"5,keyasint"`
	StartedMicros uint64             `json:"started_at" cbor:"6,keyasint"`
	Resolved      bool               `json:"resolved" cbor:"7,keyasint"`
	Reason        battle.Reason      `json:"reason" cbor:"8,keyasint"`
	Winner        *units.FleetKey    `json:"winner,omitempty" cbor:"9,keyasint,omitempty"`
}

// Expiry reports a planet whose stake decayed to nothing.
type Expiry struct {
	PlanetID uint64             `json:"planet_id"`
	Owner    addressing.ChainID `json:"owner"`
}
