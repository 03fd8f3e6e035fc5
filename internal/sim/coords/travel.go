package coords

import (
	"cmp"
	"math"

	"dominion.gg/internal/sim/logic/mathx"
)

const (
	// TravelScale converts distance units into travel time units before dividing by speed.
	TravelScale = 1000
	// Unreachable is the travel time for a fleet that cannot move.
	Unreachable = math.MaxUint64
)

type FlightPath struct {
	Origin          Coordinate        `json:"origin"`
	Destination     Coordinate        `json:"destination"`
	Waypoints       []ShardCoordinate `json:"waypoints"`
	TotalDistance   uint64            `json:"total_distance"`
	EstimatedMicros uint64            `json:"estimated_micros"`
	FuelRequired    uint64            `json:"fuel_required"`
}

// TravelTime is a non-consensus estimate.
func TravelTime(from, to Coordinate, speed uint32) uint64 {
	if speed == 0 {
		return Unreachable
	}
	scaled := from.DistanceTo(to) * TravelScale
	if scaled >= math.MaxUint64 {
		return Unreachable
	}
	return uint64(scaled) / uint64(speed)
}

// Waypoints steps both axes toward to one shard at a time. The origin is
// excluded and the destination included.
func Waypoints(from, to ShardCoordinate) []ShardCoordinate {
	steps := from.Distance(to)
	if steps == 0 {
		return nil
	}
	out := make([]ShardCoordinate, 0, steps)
	cur := from
	for cur != to {
		cur.X += int64(cmp.Compare(to.X, cur.X))
		cur.Y += int64(cmp.Compare(to.Y, cur.Y))
		out = append(out, cur)
	}
	return out
}

func DirectPath(origin, dest Coordinate, speed uint32, fuelPerShard uint64, size int64) FlightPath {
	wps := Waypoints(origin.ToShard(size), dest.ToShard(size))
	return FlightPath{
		Origin:          origin,
		Destination:     dest,
		Waypoints:       wps,
		TotalDistance:   origin.ManhattanDistance(dest),
		EstimatedMicros: TravelTime(origin, dest, speed),
		FuelRequired:    mathx.SatMul(uint64(len(wps)), fuelPerShard),
	}
}
