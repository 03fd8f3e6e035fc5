package protocol

import (
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
)

// Region operations.
const (
	OpOpenRegion       = "OPEN_REGION"
	OpFleetArrive      = "FLEET_ARRIVE"
	OpFleetLeave       = "FLEET_LEAVE"
	OpFleetReveal      = "FLEET_REVEAL"
	OpScanFleet        = "SCAN_FLEET"
	OpDeclareHostility = "DECLARE_HOSTILITY"
	OpClaimPlanet      = "CLAIM_PLANET"
	OpResupplyPlanet   = "RESUPPLY_PLANET"
	OpAbandonPlanet    = "ABANDON_PLANET"
	OpCollectDebris    = "COLLECT_DEBRIS"
	OpStakeDecay       = "STAKE_DECAY"
	OpSubdivide        = "SUBDIVIDE"
)

// Battle operations.
const (
	OpSubmitCommand     = "SUBMIT_COMMAND"
	OpRequestResolution = "REQUEST_RESOLUTION"
	OpForceTimeout      = "FORCE_TIMEOUT"
	OpExtendWarBond     = "EXTEND_WAR_BOND"
)

// Accepted by every chain kind.
const (
	OpDigest = "DIGEST"
	OpState  = "STATE"
)

// Cross-chain message kinds.
const (
	MsgBattleResult  = "BATTLE_RESULT"
	MsgInitBattle    = "INIT_BATTLE"
	MsgRevealRequest = "REVEAL_REQUEST"
	MsgStakeReturn   = "STAKE_RETURN"
	MsgInitRegion    = "INIT_REGION"
)

type OpenRegionBody struct {
	Shard coords.ShardCoordinate     `json:"shard"`
	Sub   *coords.SubShardCoordinate `json:"sub,omitempty"`
}

type FleetArriveBody struct {
	FleetID    uint64             `json:"fleet_id"`
	OwnerChain addressing.ChainID `json:"owner_chain"`
	Position   coords.Coordinate  `json:"position"`
	Commitment concealment.Hash   `json:"commitment"`
}

// FleetRefBody names a fleet by its owner chain and per-owner id.
type FleetRefBody struct {
	FleetID    uint64             `json:"fleet_id"`
	OwnerChain addressing.ChainID `json:"owner_chain"`
}

func (b FleetRefBody) Key() units.FleetKey { return units.FleetKey{Owner: b.OwnerChain, ID: b.FleetID} }

type FleetRevealBody struct {
	Fleet units.Fleet      `json:"fleet"`
	Salt  concealment.Salt `json:"salt"`
}

type DeclareHostilityBody struct {
	Attacker units.FleetKey `json:"attacker"`
	Defender units.FleetKey `json:"defender"`
}

type ClaimPlanetBody struct {
	Position coords.Coordinate  `json:"position"`
	Claimer  addressing.ChainID `json:"claimer"`
	Stake    units.Resources    `json:"stake"`
}

type PlanetStakeBody struct {
	PlanetID uint64             `json:"planet_id"`
	Owner    addressing.ChainID `json:"owner"`
	Add      units.Resources    `json:"add,omitempty"`
}

type CollectDebrisBody struct {
	Fleet    units.FleetKey `json:"fleet"`
	DebrisID uint64         `json:"debris_id"`
}

type SubmitCommandBody struct {
	Fleet   units.FleetKey `json:"fleet"`
	Command string         `json:"command"`
}

type WarBondBody struct {
	Fleet  units.FleetKey  `json:"fleet"`
	Amount units.Resources `json:"amount"`
}

type RevealRequestBody struct {
	Fleet       units.FleetKey     `json:"fleet"`
	RegionChain addressing.ChainID `json:"region_chain"`
}

// Stake return reasons.
const (
	StakeAbandoned = "ABANDONED"
	StakeExpired   = "EXPIRED"
)

type StakeReturnBody struct {
	PlanetID    uint64             `json:"planet_id"`
	Owner       addressing.ChainID `json:"owner"`
	Stake       units.Resources    `json:"stake"`
	Reason      string             `json:"reason"`
	RegionChain addressing.ChainID `json:"region_chain"`
}

type DigestResult struct {
	ChainID string `json:"chain_id"`
	Digest  string `json:"digest"`
}
