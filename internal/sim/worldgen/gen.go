package worldgen

import (
	"encoding/binary"
	"fmt"
	"strings"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
)

// PlanetThreshold gives roughly 14.8% planet density (38/256).
const PlanetThreshold = 38

const (
	purposeHasPlanet  = "has_planet"
	purposePlanetType = "planet_type"
	purposePlanetName = "planet_name"
	purposePlanetID   = "planet_id"
)

type PlanetType uint8

const (
	Terrestrial PlanetType = iota
	Metallic
	GasGiant
	Barren
	Volcanic
	Temporal
)

var planetTypeNames = [...]string{"TERRESTRIAL", "METALLIC", "GAS_GIANT", "BARREN", "VOLCANIC", "TEMPORAL"}

func (p PlanetType) String() string {
	if int(p) < len(planetTypeNames) {
		return planetTypeNames[p]
	}
	return fmt.Sprintf("PlanetType(%d)", uint8(p))
}

func ParsePlanetType(s string) (PlanetType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range planetTypeNames {
		if n == s {
			return PlanetType(i), true
		}
	}
	return 0, false
}

type Planet struct {
	ID       uint64            `json:"id" cbor:"1,keyasint"`
	Position coords.Coordinate `json:"position" cbor:"2,keyasint"`
	Type     PlanetType        `json:"type" cbor:"3,keyasint"`
	Name     string            `json:"name" cbor:"4,keyasint"`
}

func Digest(seed addressing.Seed, x, y int64, purpose string) [32]byte {
	return addressing.Sum(addressing.TagProcedural, seed[:], addressing.I64(x), addressing.I64(y), []byte(purpose))
}

func HasPlanet(seed addressing.Seed, c coords.Coordinate) bool {
	return Digest(seed, c.X, c.Y, purposeHasPlanet)[0] < PlanetThreshold
}

// TypeFromRoll maps a 0..99 roll onto bands of width 25/20/20/15/10/10.
func TypeFromRoll(roll uint8) PlanetType {
	switch {
	case roll < 25:
		return Terrestrial
	case roll < 45:
		return Metallic
	case roll < 65:
		return GasGiant
	case roll < 80:
		return Barren
	case roll < 90:
		return Volcanic
	default:
		return Temporal
	}
}

func PlanetTypeAt(seed addressing.Seed, c coords.Coordinate) PlanetType {
	return TypeFromRoll(Digest(seed, c.X, c.Y, purposePlanetType)[0] % 100)
}

func PlanetName(seed addressing.Seed, c coords.Coordinate) string {
	d := Digest(seed, c.X, c.Y, purposePlanetName)
	return prefixes[int(d[0])%len(prefixes)] +
		middles[int(d[1])%len(middles)] +
		suffixes[int(d[2])%len(suffixes)]
}

func PlanetID(seed addressing.Seed, c coords.Coordinate) uint64 {
	d := Digest(seed, c.X, c.Y, purposePlanetID)
	return binary.LittleEndian.Uint64(d[:8])
}

func PlanetAt(seed addressing.Seed, c coords.Coordinate) (Planet, bool) {
	if !HasPlanet(seed, c) {
		return Planet{}, false
	}
	return Planet{
		ID:       PlanetID(seed, c),
		Position: c,
		Type:     PlanetTypeAt(seed, c),
		Name:     PlanetName(seed, c),
	}, true
}

// Survey scans a shard row by row and returns its planets.
func Survey(seed addressing.Seed, s coords.ShardCoordinate, size int64) []Planet {
	if size <= 0 {
		size = 1
	}
	o := s.Origin(size)
	var out []Planet
	for dy := int64(0); dy < size; dy++ {
		for dx := int64(0); dx < size; dx++ {
			if p, ok := PlanetAt(seed, coords.Coordinate{X: o.X + dx, Y: o.Y + dy}); ok {
				out = append(out, p)
			}
		}
	}
	return out
}
