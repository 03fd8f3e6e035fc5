package units

import (
	"fmt"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/logic/mathx"
)

var ErrInsufficientResources = eris.New("insufficient resources")

type Resources struct {
	Iron      uint64 `json:"iron" cbor:"1,keyasint"`
	Deuterium uint64 `json:"deuterium" cbor:"2,keyasint"`
	Crystals  uint64 `json:"crystals" cbor:"3,keyasint"`
}

func (r Resources) String() string {
	return fmt.Sprintf("iron=%d deut=%d crystals=%d", r.Iron, r.Deuterium, r.Crystals)
}

func (r Resources) IsZero() bool { return r == Resources{} }

func (r Resources) Total() uint64 {
	return mathx.SatAdd(mathx.SatAdd(r.Iron, r.Deuterium), r.Crystals)
}

func (r Resources) Add(o Resources) Resources {
	return Resources{
		Iron:      mathx.SatAdd(r.Iron, o.Iron),
		Deuterium: mathx.SatAdd(r.Deuterium, o.Deuterium),
		Crystals:  mathx.SatAdd(r.Crystals, o.Crystals),
	}
}

func (r Resources) Covers(o Resources) bool {
	return r.Iron >= o.Iron && r.Deuterium >= o.Deuterium && r.Crystals >= o.Crystals
}

func (r Resources) Sub(o Resources) (Resources, error) {
	if !r.Covers(o) {
		return r, eris.Wrapf(ErrInsufficientResources, "need %s, have %s", o, r)
	}
	return r.SaturatingSub(o), nil
}

func (r Resources) SaturatingSub(o Resources) Resources {
	return Resources{
		Iron:      mathx.SatSub(r.Iron, o.Iron),
		Deuterium: mathx.SatSub(r.Deuterium, o.Deuterium),
		Crystals:  mathx.SatSub(r.Crystals, o.Crystals),
	}
}

func (r Resources) Scale(n uint64) Resources {
	return Resources{
		Iron:      mathx.SatMul(r.Iron, n),
		Deuterium: mathx.SatMul(r.Deuterium, n),
		Crystals:  mathx.SatMul(r.Crystals, n),
	}
}

// Percent returns floor(r*p/100) per component.
func (r Resources) Percent(p uint64) Resources {
	pct := func(v uint64) uint64 {
		if v <= ^uint64(0)/max(p, 1) {
			return v * p / 100
		}
		return v / 100 * p
	}
	return Resources{Iron: pct(r.Iron), Deuterium: pct(r.Deuterium), Crystals: pct(r.Crystals)}
}
