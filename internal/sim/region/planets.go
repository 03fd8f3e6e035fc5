package region

import (
	"context"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/sim/worldgen"
)

// ClaimPlanet stakes resources on the procedurally generated planet at pos.
func (r *Region) ClaimPlanet(ctx context.Context, pos coords.Coordinate, claimer addressing.ChainID, stake units.Resources, now uint64) (Planet, error) {
	m, err := r.Meta(ctx)
	if err != nil {
		return Planet{}, err
	}
	if !m.contains(pos) {
		return Planet{}, eris.Wrapf(ErrOutOfBounds, "planet at %s", pos)
	}
	gen, ok := worldgen.PlanetAt(m.Config.Seed, pos)
	if !ok {
		return Planet{}, eris.Wrapf(ErrPlanetNotFound, "no planet at %s", pos)
	}
	if stake.Total() < m.Config.MinimumStake {
		return Planet{}, eris.Wrapf(ErrInsufficientStake, "stake %d < %d", stake.Total(), m.Config.MinimumStake)
	}
	p, ok, err := r.planets.Get(ctx, gen.ID)
	if err != nil {
		return Planet{}, err
	}
	if ok && p.Claimed() {
		return p, eris.Wrapf(ErrPlanetAlreadyClaimed, "planet %d owned by %s", p.ID, p.Owner.Short())
	}
	p = Planet{
		ID:                 gen.ID,
		Position:           gen.Position,
		Type:               gen.Type,
		Name:               gen.Name,
		Owner:              claimer,
		Stake:              stake,
		StakeUpdatedMicros: now,
	}
	return p, r.planets.Put(ctx, p.ID, p)
}

func (r *Region) ownedPlanet(ctx context.Context, id uint64, owner addressing.ChainID) (Planet, error) {
	p, ok, err := r.planets.Get(ctx, id)
	if err != nil {
		return p, err
	}
	if !ok || !p.Claimed() {
		return p, eris.Wrapf(ErrPlanetNotFound, "planet %d", id)
	}
	if p.Owner != owner {
		return p, eris.Wrapf(ErrNotPlanetOwner, "planet %d", id)
	}
	return p, nil
}

func (r *Region) ResupplyPlanet(ctx context.Context, id uint64, owner addressing.ChainID, add units.Resources, now uint64) (Planet, error) {
	p, err := r.ownedPlanet(ctx, id, owner)
	if err != nil {
		return p, err
	}
	p.Stake = p.Stake.Add(add)
	if p.StakeUpdatedMicros > now {
		p.StakeUpdatedMicros = now
	}
	return p, r.planets.Put(ctx, p.ID, p)
}

// AbandonPlanet releases the planet and hands back whatever stake is left.
func (r *Region) AbandonPlanet(ctx context.Context, id uint64, owner addressing.ChainID) (units.Resources, error) {
	p, err := r.ownedPlanet(ctx, id, owner)
	if err != nil {
		return units.Resources{}, err
	}
	return p.Stake, r.planets.Delete(ctx, id)
}

// decay removes ceil(pct%) of each component so small stakes still reach zero.
func decay(r units.Resources, pct uint64) units.Resources {
	cut := func(v uint64) uint64 {
		d := v/100*pct + (v%100*pct+99)/100
		if d >= v {
			return 0
		}
		return v - d
	}
	return units.Resources{Iron: cut(r.Iron), Deuterium: cut(r.Deuterium), Crystals: cut(r.Crystals)}
}

// ProcessStakeDecay applies compounding decay for every whole hour elapsed
// since each planet's last update. Planets whose stake runs out are released
// and reported.
func (r *Region) ProcessStakeDecay(ctx context.Context, now uint64) ([]Expiry, error) {
	m, err := r.Meta(ctx)
	if err != nil {
		return nil, err
	}
	pct := min(m.Config.DecayPercentPerHour, 100)
	es, err := r.planets.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var expired []Expiry
	for _, e := range es {
		p := e.Value
		if !p.Claimed() || now <= p.StakeUpdatedMicros {
			continue
		}
		hours := (now - p.StakeUpdatedMicros) / HourMicros
		if hours == 0 {
			continue
		}
		for h := uint64(0); h < hours && !p.Stake.IsZero(); h++ {
			p.Stake = decay(p.Stake, pct)
		}
		p.StakeUpdatedMicros += hours * HourMicros
		if p.Stake.IsZero() {
			expired = append(expired, Expiry{PlanetID: p.ID, Owner: p.Owner})
			if err := r.planets.Delete(ctx, p.ID); err != nil {
				return nil, err
			}
			continue
		}
		if err := r.planets.Put(ctx, p.ID, p); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

func (r *Region) Planet(ctx context.Context, id uint64) (Planet, bool, error) {
	return r.planets.Get(ctx, id)
}
