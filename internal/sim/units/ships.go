package units

import (
	"fmt"
	"math"
	"strings"

	"dominion.gg/internal/sim/logic/mathx"
)

type ShipType uint8

const (
	Scout ShipType = iota
	Fighter
	Cruiser
	Battleship
	Carrier
	Freighter
	Colonizer
	MineLayer
	Destroyer
	Dreadnought
)

// NumShipTypes is the length of every per-type count vector.
const NumShipTypes = 10

var shipTypeNames = [NumShipTypes]string{
	"SCOUT", "FIGHTER", "CRUISER", "BATTLESHIP", "CARRIER",
	"FREIGHTER", "COLONIZER", "MINE_LAYER", "DESTROYER", "DREADNOUGHT",
}

func (t ShipType) Valid() bool { return t < NumShipTypes }

func (t ShipType) String() string {
	if t.Valid() {
		return shipTypeNames[t]
	}
	return fmt.Sprintf("ShipType(%d)", uint8(t))
}

func ParseShipType(s string) (ShipType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range shipTypeNames {
		if n == s {
			return ShipType(i), true
		}
	}
	return 0, false
}

type Stats struct {
	MaxHealth uint32
	Attack    uint32
	Defense   uint32
	Speed     uint32
	Cargo     uint32
	Fuel      uint32
}

var statsTable = [NumShipTypes]Stats{
	Scout:       {MaxHealth: 50, Attack: 5, Defense: 2, Speed: 200, Cargo: 10, Fuel: 1},
	Fighter:     {MaxHealth: 100, Attack: 25, Defense: 10, Speed: 150, Cargo: 0, Fuel: 2},
	Cruiser:     {MaxHealth: 300, Attack: 80, Defense: 40, Speed: 100, Cargo: 50, Fuel: 5},
	Battleship:  {MaxHealth: 800, Attack: 200, Defense: 100, Speed: 60, Cargo: 100, Fuel: 15},
	Carrier:     {MaxHealth: 600, Attack: 50, Defense: 150, Speed: 50, Cargo: 500, Fuel: 20},
	Freighter:   {MaxHealth: 150, Attack: 5, Defense: 20, Speed: 80, Cargo: 1000, Fuel: 8},
	Colonizer:   {MaxHealth: 200, Attack: 0, Defense: 30, Speed: 40, Cargo: 200, Fuel: 25},
	MineLayer:   {MaxHealth: 100, Attack: 0, Defense: 15, Speed: 100, Cargo: 100, Fuel: 3},
	Destroyer:   {MaxHealth: 200, Attack: 60, Defense: 30, Speed: 120, Cargo: 20, Fuel: 4},
	Dreadnought: {MaxHealth: 5000, Attack: 1000, Defense: 500, Speed: 20, Cargo: 1000, Fuel: 100},
}

var costTable = [NumShipTypes]Resources{
	Scout:       {Iron: 100, Deuterium: 50},
	Fighter:     {Iron: 500, Deuterium: 200},
	Cruiser:     {Iron: 2000, Deuterium: 1000, Crystals: 10},
	Battleship:  {Iron: 8000, Deuterium: 4000, Crystals: 50},
	Carrier:     {Iron: 10000, Deuterium: 5000, Crystals: 100},
	Freighter:   {Iron: 1000, Deuterium: 500},
	Colonizer:   {Iron: 5000, Deuterium: 3000, Crystals: 200},
	MineLayer:   {Iron: 800, Deuterium: 400, Crystals: 5},
	Destroyer:   {Iron: 1500, Deuterium: 750, Crystals: 20},
	Dreadnought: {Iron: 100000, Deuterium: 50000, Crystals: 5000},
}

// StatsOf reports false for types outside the catalogue.
func StatsOf(t ShipType) (Stats, bool) {
	if !t.Valid() {
		return Stats{}, false
	}
	return statsTable[t], true
}

func ConstructionCost(t ShipType) Resources {
	if !t.Valid() {
		return Resources{}
	}
	return costTable[t]
}

type Ship struct {
	Type       ShipType `json:"type" cbor:"1,keyasint"`
	Health     uint32   `json:"health" cbor:"2,keyasint"`
	Experience uint32   `json:"experience" cbor:"3,keyasint"`
}

func NewShip(t ShipType) Ship {
	st, _ := StatsOf(t)
	return Ship{Type: t, Health: st.MaxHealth}
}

func (s Ship) Alive() bool { return s.Health > 0 }

// EffectiveAttack adds 1% per 100 experience.
func (s Ship) EffectiveAttack() uint32 {
	st, _ := StatsOf(s.Type)
	return withBonus(st.Attack, s.Experience/100)
}

// EffectiveDefense adds 0.5% per 100 experience.
func (s Ship) EffectiveDefense() uint32 {
	st, _ := StatsOf(s.Type)
	return withBonus(st.Defense, s.Experience/200)
}

// withBonus returns base plus pct percent of it, saturating at MaxUint32.
func withBonus(base, pct uint32) uint32 {
	v := mathx.SatAdd(uint64(base), mathx.SatMul(uint64(base), uint64(pct))/100)
	return uint32(min(v, math.MaxUint32))
}
