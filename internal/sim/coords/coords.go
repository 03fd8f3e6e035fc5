package coords

import (
	"fmt"
	"math"

	"dominion.gg/internal/sim/logic/mathx"
)

const DefaultShardSize int64 = 100

type Coordinate struct {
	X int64 `json:"x" cbor:"1,keyasint"`
	Y int64 `json:"y" cbor:"2,keyasint"`
}

type ShardCoordinate struct {
	X int64 `json:"x" cbor:"1,keyasint"`
	Y int64 `json:"y" cbor:"2,keyasint"`
}

// SubShardCoordinate is one quadrant of a subdivided shard. SubX and SubY are 0 or 1.
type SubShardCoordinate struct {
	Shard ShardCoordinate `json:"shard" cbor:"1,keyasint"`
	SubX  uint8           `json:"sub_x" cbor:"2,keyasint"`
	SubY  uint8           `json:"sub_y" cbor:"3,keyasint"`
}

type Quadrant uint8

const (
	NorthEast Quadrant = iota
	NorthWest
	SouthWest
	SouthEast
)

func (q Quadrant) String() string {
	switch q {
	case NorthEast:
		return "NE"
	case NorthWest:
		return "NW"
	case SouthWest:
		return "SW"
	case SouthEast:
		return "SE"
	default:
		return fmt.Sprintf("Quadrant(%d)", uint8(q))
	}
}

func normSize(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return size
}

func (c Coordinate) String() string { return fmt.Sprintf("(%d, %d)", c.X, c.Y) }

// DistanceTo is Euclidean and for display/estimation only.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	dx := float64(mathx.AbsDiff(c.X, o.X))
	dy := float64(mathx.AbsDiff(c.Y, o.Y))
	return math.Sqrt(dx*dx + dy*dy)
}

func (c Coordinate) ManhattanDistance(o Coordinate) uint64 {
	return mathx.SatAdd(mathx.AbsDiff(c.X, o.X), mathx.AbsDiff(c.Y, o.Y))
}

func (c Coordinate) ToShard(size int64) ShardCoordinate {
	size = normSize(size)
	return ShardCoordinate{X: mathx.FloorDiv(c.X, size), Y: mathx.FloorDiv(c.Y, size)}
}

func (c Coordinate) InShard(s ShardCoordinate, size int64) bool {
	return c.ToShard(size) == s
}

// SubShard returns the quadrant of c's shard containing c. On each axis the
// midpoint belongs to the upper child.
func (c Coordinate) SubShard(size int64) SubShardCoordinate {
	size = normSize(size)
	half := size / 2
	sub := SubShardCoordinate{Shard: c.ToShard(size)}
	if mathx.Mod(c.X, size) >= half {
		sub.SubX = 1
	}
	if mathx.Mod(c.Y, size) >= half {
		sub.SubY = 1
	}
	return sub
}

func (s ShardCoordinate) String() string { return fmt.Sprintf("[%d, %d]", s.X, s.Y) }

// Origin is the minimum corner of the shard.
func (s ShardCoordinate) Origin(size int64) Coordinate {
	size = normSize(size)
	return Coordinate{X: s.X * size, Y: s.Y * size}
}

func (s ShardCoordinate) Contains(c Coordinate, size int64) bool {
	return c.InShard(s, size)
}

// Adjacent lists the Moore neighbourhood row-major from (x-1, y-1):
// (x-1,y-1) (x,y-1) (x+1,y-1) (x-1,y) (x+1,y) (x-1,y+1) (x,y+1) (x+1,y+1).
func (s ShardCoordinate) Adjacent() [8]ShardCoordinate {
	var out [8]ShardCoordinate
	i := 0
	for dy := int64(-1); dy <= 1; dy++ {
		for dx := int64(-1); dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out[i] = ShardCoordinate{X: s.X + dx, Y: s.Y + dy}
			i++
		}
	}
	return out
}

// Distance is the Chebyshev distance between shards.
func (s ShardCoordinate) Distance(o ShardCoordinate) uint64 {
	return max(mathx.AbsDiff(s.X, o.X), mathx.AbsDiff(s.Y, o.Y))
}

func (s ShardCoordinate) IsAdjacent(o ShardCoordinate) bool {
	return s.Distance(o) == 1
}

// Quadrant classifies by axis sign; zero counts as non-negative.
func (s ShardCoordinate) Quadrant() Quadrant {
	switch {
	case s.X >= 0 && s.Y >= 0:
		return NorthEast
	case s.X < 0 && s.Y >= 0:
		return NorthWest
	case s.X < 0:
		return SouthWest
	default:
		return SouthEast
	}
}

// Subdivide returns the four children in order (0,0) (1,0) (0,1) (1,1).
func (s ShardCoordinate) Subdivide() [4]SubShardCoordinate {
	return [4]SubShardCoordinate{
		{Shard: s, SubX: 0, SubY: 0},
		{Shard: s, SubX: 1, SubY: 0},
		{Shard: s, SubX: 0, SubY: 1},
		{Shard: s, SubX: 1, SubY: 1},
	}
}

// Valid reports whether both selectors name a half of the shard.
func (s SubShardCoordinate) Valid() bool { return s.SubX <= 1 && s.SubY <= 1 }

func (s SubShardCoordinate) String() string {
	return fmt.Sprintf("%s/%d%d", s.Shard, s.SubX, s.SubY)
}

// Bounds is the half-open box [min, max) covered by the sub-shard.
func (s SubShardCoordinate) Bounds(size int64) (Coordinate, Coordinate) {
	size = normSize(size)
	half := size / 2
	o := s.Shard.Origin(size)
	lo, hi := o, Coordinate{X: o.X + size, Y: o.Y + size}
	if s.SubX == 0 {
		hi.X = o.X + half
	} else {
		lo.X = o.X + half
	}
	if s.SubY == 0 {
		hi.Y = o.Y + half
	} else {
		lo.Y = o.Y + half
	}
	return lo, hi
}

func (s SubShardCoordinate) Contains(c Coordinate, size int64) bool {
	return c.SubShard(size) == s
}
