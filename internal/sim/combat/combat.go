package combat

import (
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/logic/mathx"
	"dominion.gg/internal/sim/units"
)

// Per-type combat tables, indexed by units.ShipType. Types past the end of a
// table use the matching default.
var (
	AttackTable  = [...]uint64{5, 15, 50, 150, 100, 5, 1, 20, 80, 300}
	DefenseTable = [...]uint64{2, 10, 30, 100, 150, 10, 5, 15, 50, 200}
)

const (
	DefaultAttack      uint64 = 10
	DefaultDefense     uint64 = 5
	DefaultHullDefense uint64 = 10
	HullFactor         uint64 = 10
)

func AttackOf(i int) uint64 {
	if i >= 0 && i < len(AttackTable) {
		return AttackTable[i]
	}
	return DefaultAttack
}

func DefenseOf(i int) uint64 {
	if i >= 0 && i < len(DefenseTable) {
		return DefenseTable[i]
	}
	return DefaultDefense
}

// HullOf is the damage needed to destroy one ship of type i.
func HullOf(i int) uint64 {
	d := DefaultHullDefense
	if i >= 0 && i < len(DefenseTable) {
		d = DefenseTable[i]
	}
	return d * HullFactor
}

type Combatant struct {
	FleetID    uint64             `json:"fleet_id" cbor:"1,keyasint"`
	OwnerChain addressing.ChainID `json:"owner_chain" cbor:"2,keyasint"`
	Ships      []uint32           `json:"ships" cbor:"3,keyasint"`
	Remaining  []uint32           `json:"remaining" cbor:"4,keyasint"`
	IsDefender bool               `json:"is_defender" cbor:"5,keyasint"`
	Retreated  bool               `json:"retreated" cbor:"6,keyasint"`
	Bond       units.Resources    `json:"bond" cbor:"7,keyasint"`
}

func (c Combatant) Key() units.FleetKey { return units.FleetKey{Owner: c.OwnerChain, ID: c.FleetID} }

func NewCombatant(fleetID uint64, owner addressing.ChainID, counts []uint32, defender bool) Combatant {
	return Combatant{
		FleetID:    fleetID,
		OwnerChain: owner,
		Ships:      append([]uint32(nil), counts...),
		Remaining:  append([]uint32(nil), counts...),
		IsDefender: defender,
	}
}

func weighted(counts []uint32, stat func(int) uint64) uint64 {
	var sum uint64
	for i, n := range counts {
		sum = mathx.SatAdd(sum, mathx.SatMul(uint64(n), stat(i)))
	}
	return sum
}

func AttackPower(c Combatant) uint64  { return weighted(c.Remaining, AttackOf) }
func DefensePower(c Combatant) uint64 { return weighted(c.Remaining, DefenseOf) }

// Damage computes both sides' damage from the same pre-round counts.
func Damage(attacker, defender Combatant) (toDefender, toAttacker uint64) {
	toDefender = mathx.SatSub(AttackPower(attacker), DefensePower(defender)/2)
	toAttacker = mathx.SatSub(AttackPower(defender), DefensePower(attacker)/2)
	return toDefender, toAttacker
}

// Losses spends damage on the lowest type index first. Leftover damage smaller
// than one hull is discarded.
func Losses(c Combatant, damage uint64) []uint32 {
	losses := make([]uint32, len(c.Remaining))
	for i, n := range c.Remaining {
		if damage == 0 {
			break
		}
		if n == 0 {
			continue
		}
		hp := HullOf(i)
		killed := min(damage/hp, uint64(n))
		losses[i] = uint32(killed)
		damage -= killed * hp
	}
	return losses
}

func ApplyLosses(c *Combatant, losses []uint32) {
	for i := range c.Remaining {
		if i >= len(losses) {
			break
		}
		if losses[i] >= c.Remaining[i] {
			c.Remaining[i] = 0
		} else {
			c.Remaining[i] -= losses[i]
		}
	}
}

func IsDefeated(c Combatant) bool {
	for _, n := range c.Remaining {
		if n != 0 {
			return false
		}
	}
	return true
}

func TotalShips(c Combatant) uint64 {
	var n uint64
	for _, v := range c.Remaining {
		n += uint64(v)
	}
	return n
}

type Round struct {
	AttackerDamage uint64   `json:"attacker_damage" cbor:"1,keyasint"`
	DefenderDamage uint64   `json:"defender_damage" cbor:"2,keyasint"`
	AttackerLosses []uint32 `json:"attacker_losses" cbor:"3,keyasint"`
	DefenderLosses []uint32 `json:"defender_losses" cbor:"4,keyasint"`
}

// ResolveRound computes damage and losses for both sides before applying
// either, then updates both combatants.
func ResolveRound(attacker, defender *Combatant) Round {
	toDef, toAtk := Damage(*attacker, *defender)
	r := Round{
		AttackerDamage: toDef,
		DefenderDamage: toAtk,
		AttackerLosses: Losses(*attacker, toAtk),
		DefenderLosses: Losses(*defender, toDef),
	}
	ApplyLosses(attacker, r.AttackerLosses)
	ApplyLosses(defender, r.DefenderLosses)
	return r
}

// Debris is percent of the construction cost of every ship c has lost.
func Debris(c Combatant, percent uint64) units.Resources {
	var total units.Resources
	for i, n := range c.Ships {
		if i >= units.NumShipTypes {
			break
		}
		var left uint32
		if i < len(c.Remaining) {
			left = c.Remaining[i]
		}
		if n <= left {
			continue
		}
		total = total.Add(units.ConstructionCost(units.ShipType(i)).Scale(uint64(n - left)))
	}
	return total.Percent(percent)
}
