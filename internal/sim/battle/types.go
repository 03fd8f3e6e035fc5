package battle

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
)

const (
	DefaultMaxTurns           uint32 = 60
	DefaultTurnDurationMicros uint64 = 60_000_000
	DefaultDebrisPercent      uint64 = 30
)

// Combatant slots.
const (
	Attacker uint8 = 0
	Defender uint8 = 1
)

var (
	ErrBattleNotActive     = eris.New("battle not active")
	ErrTimeoutNotReached   = eris.New("turn timeout not reached")
	ErrNotCombatant        = eris.New("fleet is not a combatant in this battle")
	ErrCommandSubmitted    = eris.New("command already submitted for this turn")
	ErrCannotRetreatYet    = eris.New("cannot retreat before the first turn resolves")
	ErrUnknownCommand      = eris.New("unknown tactical command")
	ErrAlreadyInstantiated = eris.New("battle already instantiated")
	ErrNotInstantiated     = eris.New("battle not instantiated")
	ErrBattleStillActive   = eris.New("battle still active")
)

type Status uint8

const (
	Active Status = iota
	Ended
)

func (s Status) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "ENDED"
}

type Reason uint8

const (
	ReasonNone Reason = iota
	AttackerVictory
	DefenderVictory
	MutualDestruction
	AttackerRetreat
	DefenderRetreat
	Timeout
	MaxTurnsReached
)

var reasonNames = [...]string{
	"NONE", "ATTACKER_VICTORY", "DEFENDER_VICTORY", "MUTUAL_DESTRUCTION",
	"ATTACKER_RETREAT", "DEFENDER_RETREAT", "TIMEOUT", "MAX_TURNS_REACHED",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

func ParseReason(s string) (Reason, bool) {
	for i, n := range reasonNames {
		if n == s {
			return Reason(i), true
		}
	}
	return 0, false
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Reason) UnmarshalText(b []byte) error {
	v, ok := ParseReason(string(b))
	if !ok {
		return eris.Errorf("unknown reason %q", b)
	}
	*r = v
	return nil
}

type Command uint8

const (
	AllOutAttack Command = iota
	DefensiveStance
	FocusFire
	Flank
	Hold
	Retreat
	LaunchFighters
	FieldRepair
)

var commandNames = [...]string{
	"ALL_OUT_ATTACK", "DEFENSIVE_STANCE", "FOCUS_FIRE", "FLANK",
	"HOLD", "RETREAT", "LAUNCH_FIGHTERS", "FIELD_REPAIR",
}

func (c Command) Valid() bool { return int(c) < len(commandNames) }

func (c Command) String() string {
	if c.Valid() {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

func ParseCommand(s string) (Command, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range commandNames {
		if n == s {
			return Command(i), nil
		}
	}
	return 0, eris.Wrapf(ErrUnknownCommand, "%q", s)
}

func (c Command) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Command) UnmarshalText(b []byte) error {
	v, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Side describes one combatant at instantiation, taken from revealed fleet data.
type Side struct {
	FleetID    uint64             `json:"fleet_id"`
	OwnerChain addressing.ChainID `json:"owner_chain"`
	Counts     []uint32           `json:"counts"`
	Bond       units.Resources    `json:"bond"`
}

func (s Side) Key() units.FleetKey { return units.FleetKey{Owner: s.OwnerChain, ID: s.FleetID} }

type Init struct {
	BattleID           uint64             `json:"battle_id"`
	RegionChain        addressing.ChainID `json:"region_chain"`
	Position           coords.Coordinate  `json:"position"`
	Attacker           Side               `json:"attacker"`
	Defender           Side               `json:"defender"`
	MaxTurns           uint32             `json:"max_turns,omitempty"`
	TurnDurationMicros uint64             `json:"turn_duration_micros,omitempty"`
	DebrisPercent      uint64             `json:"debris_percent,omitempty"`
}

type Meta struct {
	BattleID           uint64             `json:"battle_id" cbor:"1,keyasint"`
	RegionChain        addressing.ChainID `json:"region_chain" cbor:"2,keyasint"`
	Position           coords.Coordinate  `json:"position" cbor:"3,keyasint"`
	CurrentTurn        uint32             `json:"current_turn" cbor:"4,keyasint"`
	MaxTurns           uint32             `json:"max_turns" cbor:"5,keyasint"`
	TurnDurationMicros uint64             `json:"turn_duration_micros" cbor:"6,keyasint"`
	StartMicros        uint64             `json:"start_time_micros" cbor:"7,keyasint"`
	EndMicros          uint64             `json:"end_time_micros,omitempty" cbor:"8,keyasint"`
	Status             Status             `json:"status" cbor:"9,keyasint"`
	Reason             Reason             `json:"reason" cbor:"10,keyasint"`
	DebrisPercent      uint64             `json:"debris_percent" cbor:"11,keyasint"`
}

func (m Meta) Active() bool { return m.Status == Active }

// TurnRecord is written once per resolved turn and never modified.
// AttackerDamage is the damage dealt by the attacker.
type TurnRecord struct {
	Turn            uint32     `json:"turn" cbor:"1,keyasint"`
	Actions         [2]Command `json:"actions" cbor:"2,keyasint"`
	AttackerDamage  uint64     `json:"attacker_damage" cbor:"3,keyasint"`
	DefenderDamage  uint64     `json:"defender_damage" cbor:"4,keyasint"`
	AttackerLosses  []uint32   `json:"attacker_losses" cbor:"5,keyasint"`
	DefenderLosses  []uint32   `json:"defender_losses" cbor:"6,keyasint"`
	TimestampMicros uint64     `json:"timestamp" cbor:"7,keyasint"`
}

type Result struct {
	BattleID          uint64             `json:"battle_id"`
	RegionChain       addressing.ChainID `json:"region_chain"`
	Position          coords.Coordinate  `json:"position"`
	Reason            Reason             `json:"reason"`
	Winner            units.FleetKey     `json:"winner"`
	HasWinner         bool               `json:"has_winner"`
	AttackerFleet     units.FleetKey     `json:"attacker_fleet"`
	DefenderFleet     units.FleetKey     `json:"defender_fleet"`
	AttackerSurviving []uint32           `json:"attacker_surviving"`
	DefenderSurviving []uint32           `json:"defender_surviving"`
	Debris            units.Resources    `json:"debris"`
	AttackerBond      units.Resources    `json:"attacker_bond"`
	DefenderBond      units.Resources    `json:"defender_bond"`
	TotalTurns        uint32             `json:"total_turns"`
	DurationMicros    uint64             `json:"duration_micros"`
}
