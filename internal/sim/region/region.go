package region

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/store"
)

// Region is the state machine of one shard (or sub-shard) chain.
type Region struct {
	meta    *store.Register[Meta]
	fleets  *store.Map[string, FleetPresence]
	planets *store.Map[uint64, Planet]
	debris  *store.Map[uint64, Debris]
	battles *store.Map[uint64, BattleRef]
}

func Open(s store.Store) *Region {
	return &Region{
		meta:    store.NewRegister[Meta](s, "region"),
		fleets:  store.NewMap[string, FleetPresence](s, "fleets"),
		planets: store.NewMap[uint64, Planet](s, "planets"),
		debris:  store.NewMap[uint64, Debris](s, "debris"),
		battles: store.NewMap[uint64, BattleRef](s, "battles"),
	}
}

func (r *Region) Instantiate(ctx context.Context, cfg Config) (addressing.ChainID, error) {
	if _, ok, err := r.meta.Get(ctx); err != nil {
		return addressing.ChainID{}, err
	} else if ok {
		return addressing.ChainID{}, ErrAlreadyInstantiated
	}
	if cfg.ShardSize <= 0 {
		cfg.ShardSize = coords.DefaultShardSize
	}
	if cfg.MaxUnits == 0 {
		cfg.MaxUnits = DefaultMaxUnits
	}
	if cfg.MinimumStake == 0 {
		cfg.MinimumStake = DefaultMinimumStake
	}
	if cfg.DecayPercentPerHour == 0 {
		cfg.DecayPercentPerHour = DefaultDecayPercentPerHour
	}
	if cfg.Sub != nil {
		if !cfg.Sub.Valid() {
			return addressing.ChainID{}, eris.Wrapf(ErrInvalidSubShard, "%s", cfg.Sub)
		}
		cfg.Shard = cfg.Sub.Shard
	}
	m := Meta{Config: cfg, ChainID: cfg.ChainID()}
	return m.ChainID, r.meta.Set(ctx, m)
}

func (r *Region) Meta(ctx context.Context) (Meta, error) {
	m, ok, err := r.meta.Get(ctx)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, ErrNotInstantiated
	}
	return m, nil
}

func (m Meta) contains(c coords.Coordinate) bool {
	if m.Config.Sub != nil {
		return m.Config.Sub.Contains(c, m.Config.ShardSize)
	}
	return m.Config.Shard.Contains(c, m.Config.ShardSize)
}

func (r *Region) presence(ctx context.Context, k units.FleetKey) (FleetPresence, error) {
	p, ok, err := r.fleets.Get(ctx, k.StoreKey())
	if err != nil {
		return p, err
	}
	if !ok {
		return p, eris.Wrapf(ErrFleetNotFound, "fleet %s", k)
	}
	return p, nil
}

func (r *Region) putFleet(ctx context.Context, p FleetPresence) error {
	return r.fleets.Put(ctx, p.Key().StoreKey(), p)
}

// FleetEnter records a concealed fleet arriving in the region.
func (r *Region) FleetEnter(ctx context.Context, a Arrival, now uint64) error {
	m, err := r.Meta(ctx)
	if err != nil {
		return err
	}
	if m.Subdivided {
		return eris.Wrapf(ErrShardSubdivided, "fleet %s", a.Key())
	}
	if !m.contains(a.Position) {
		return eris.Wrapf(ErrOutOfBounds, "fleet %s at %s", a.Key(), a.Position)
	}
	if _, ok, err := r.fleets.Get(ctx, a.Key().StoreKey()); err != nil {
		return err
	} else if ok {
		return eris.Wrapf(ErrFleetPresent, "fleet %s", a.Key())
	}
	if m.FleetCount >= m.Config.MaxUnits {
		return ErrShardFull
	}
	p := FleetPresence{
		FleetID:       a.FleetID,
		OwnerChain:    a.OwnerChain,
		Position:      a.Position,
		Commitment:    concealment.FromHash[units.Fleet](a.Commitment, now),
		ArrivedMicros: now,
	}
	if err := r.putFleet(ctx, p); err != nil {
		return err
	}
	m.FleetCount++
	return r.meta.Set(ctx, m)
}

func (r *Region) FleetLeave(ctx context.Context, k units.FleetKey) (FleetPresence, error) {
	m, err := r.Meta(ctx)
	if err != nil {
		return FleetPresence{}, err
	}
	p, err := r.presence(ctx, k)
	if err != nil {
		return p, err
	}
	if p.InBattle {
		return p, eris.Wrapf(ErrBattleInProgress, "fleet %s battle %d", k, p.BattleID)
	}
	if err := r.removeFleet(ctx, &m, k); err != nil {
		return p, err
	}
	return p, r.meta.Set(ctx, m)
}

func (r *Region) removeFleet(ctx context.Context, m *Meta, k units.FleetKey) error {
	if err := r.fleets.Delete(ctx, k.StoreKey()); err != nil {
		return err
	}
	if m.FleetCount > 0 {
		m.FleetCount--
	}
	return nil
}

// FleetReveal opens the fleet's commitment. Only an exact match of fleet
// data and salt is accepted, and the fleet must be where it arrived.
func (r *Region) FleetReveal(ctx context.Context, f units.Fleet, salt concealment.Salt) (FleetPresence, error) {
	p, err := r.presence(ctx, f.Key())
	if err != nil {
		return p, err
	}
	if p.Revealed {
		return p, eris.Wrapf(ErrFleetAlreadyRevealed, "fleet %s", f.Key())
	}
	if f.Position != p.Position {
		return p, eris.Wrapf(ErrInvalidReveal, "fleet %s revealed at %s, arrived at %s", f.Key(), f.Position, p.Position)
	}
	if err := p.Commitment.Reveal(f, salt); err != nil {
		if errors.Is(err, concealment.ErrHashMismatch) {
			return p, eris.Wrapf(ErrInvalidReveal, "fleet %s: %v", f.Key(), err)
		}
		return p, err
	}
	p.Revealed = true
	p.RevealRequested = false
	p.Counts = f.Counts()
	return p, r.putFleet(ctx, p)
}

// ScanFleet flags a fleet for reveal and returns the chain to notify.
func (r *Region) ScanFleet(ctx context.Context, target units.FleetKey) (addressing.ChainID, error) {
	p, err := r.presence(ctx, target)
	if err != nil {
		return addressing.ChainID{}, err
	}
	if p.Revealed {
		return p.OwnerChain, nil
	}
	p.RevealRequested = true
	return p.OwnerChain, r.putFleet(ctx, p)
}

// DeclareHostility locks both fleets into a new battle and returns the
// instantiation argument and address of the battle chain to spawn.
func (r *Region) DeclareHostility(ctx context.Context, attacker, defender units.FleetKey, now uint64) (battle.Init, addressing.ChainID, error) {
	var none addressing.ChainID
	m, err := r.Meta(ctx)
	if err != nil {
		return battle.Init{}, none, err
	}
	if attacker == defender {
		return battle.Init{}, none, eris.Wrapf(ErrInvalidTarget, "fleet %s", attacker)
	}
	atk, err := r.presence(ctx, attacker)
	if err != nil {
		return battle.Init{}, none, err
	}
	def, err := r.presence(ctx, defender)
	if err != nil {
		return battle.Init{}, none, err
	}
	if atk.OwnerChain == def.OwnerChain {
		return battle.Init{}, none, eris.Wrapf(ErrInvalidTarget, "fleets %s and %s share an owner", attacker, defender)
	}
	for _, p := range []FleetPresence{atk, def} {
		if !p.Revealed {
			return battle.Init{}, none, eris.Wrapf(ErrFleetNotRevealed, "fleet %s", p.Key())
		}
		if p.InBattle {
			return battle.Init{}, none, eris.Wrapf(ErrBattleInProgress, "fleet %s battle %d", p.Key(), p.BattleID)
		}
	}

	m.NextBattleID++
	id := m.NextBattleID
	chain := addressing.BattleChainID(m.ChainID, id, m.Config.Seed)
	ref := BattleRef{
		BattleID:      id,
		Chain:         chain,
		Position:      def.Position,
		Attacker:      attacker,
		Defender:      defender,
		StartedMicros: now,
	}
	if err := r.battles.Put(ctx, id, ref); err != nil {
		return battle.Init{}, none, err
	}
	for _, p := range []FleetPresence{atk, def} {
		p.InBattle = true
		p.BattleID = id
		if err := r.putFleet(ctx, p); err != nil {
			return battle.Init{}, none, err
		}
	}
	if err := r.meta.Set(ctx, m); err != nil {
		return battle.Init{}, none, err
	}
	in := battle.Init{
		BattleID:           id,
		RegionChain:        m.ChainID,
		Position:           def.Position,
		Attacker:           battle.Side{FleetID: atk.FleetID, OwnerChain: atk.OwnerChain, Counts: atk.Counts},
		Defender:           battle.Side{FleetID: def.FleetID, OwnerChain: def.OwnerChain, Counts: def.Counts},
		MaxTurns:           m.Config.BattleMaxTurns,
		TurnDurationMicros: m.Config.BattleTurnMicros,
		DebrisPercent:      m.Config.DebrisPercent,
	}
	return in, chain, nil
}

// BattleResolved applies a finished battle: survivors are updated, wiped
// fleets removed and debris left at the battle position.
func (r *Region) BattleResolved(ctx context.Context, res battle.Result, now uint64) error {
	m, err := r.Meta(ctx)
	if err != nil {
		return err
	}
	ref, ok, err := r.battles.Get(ctx, res.BattleID)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrBattleNotFound, "battle %d", res.BattleID)
	}
	if ref.Resolved {
		return eris.Wrapf(ErrBattleResolved, "battle %d", res.BattleID)
	}

	sides := []struct {
		fleet     units.FleetKey
		surviving []uint32
	}{
		{ref.Attacker, res.AttackerSurviving},
		{ref.Defender, res.DefenderSurviving},
	}
	for _, s := range sides {
		p, ok, err := r.fleets.Get(ctx, s.fleet.StoreKey())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if total(s.surviving) == 0 {
			if err := r.removeFleet(ctx, &m, s.fleet); err != nil {
				return err
			}
			continue
		}
		p.Counts = append([]uint32(nil), s.surviving...)
		p.InBattle = false
		p.BattleID = 0
		if err := r.putFleet(ctx, p); err != nil {
			return err
		}
	}

	if !res.Debris.IsZero() {
		m.NextDebrisID++
		d := Debris{ID: m.NextDebrisID, Position: ref.Position, Resources: res.Debris, CreatedMicros: now}
		if err := r.debris.Put(ctx, d.ID, d); err != nil {
			return err
		}
	}

	ref.Resolved = true
	ref.Reason = res.Reason
	if res.HasWinner {
		w := res.Winner
		ref.Winner = &w
	}
	if err := r.battles.Put(ctx, ref.BattleID, ref); err != nil {
		return err
	}
	return r.meta.Set(ctx, m)
}

func total(vs []uint32) uint64 {
	var n uint64
	for _, v := range vs {
		n += uint64(v)
	}
	return n
}

func (r *Region) CollectDebris(ctx context.Context, fleet units.FleetKey, debrisID uint64) (units.Resources, error) {
	p, err := r.presence(ctx, fleet)
	if err != nil {
		return units.Resources{}, err
	}
	if p.InBattle {
		return units.Resources{}, eris.Wrapf(ErrBattleInProgress, "fleet %s", fleet)
	}
	d, ok, err := r.debris.Get(ctx, debrisID)
	if err != nil {
		return units.Resources{}, err
	}
	if !ok {
		return units.Resources{}, eris.Wrapf(ErrDebrisNotFound, "debris %d", debrisID)
	}
	if err := r.debris.Delete(ctx, debrisID); err != nil {
		return units.Resources{}, err
	}
	return d.Resources, nil
}

func (r *Region) NeedsSubdivision(ctx context.Context) (bool, error) {
	m, err := r.Meta(ctx)
	if err != nil {
		return false, err
	}
	return !m.Subdivided && m.Config.Sub == nil && m.FleetCount >= m.Config.MaxUnits, nil
}

// Subdivide splits the region one level. Fleets already present stay here;
// new arrivals are routed to the children.
func (r *Region) Subdivide(ctx context.Context) ([4]addressing.ChainID, error) {
	var ids [4]addressing.ChainID
	m, err := r.Meta(ctx)
	if err != nil {
		return ids, err
	}
	if m.Config.Sub != nil {
		return ids, ErrCannotSubdivide
	}
	if m.Subdivided {
		return ids, ErrShardSubdivided
	}
	for i, sub := range m.Config.Shard.Subdivide() {
		ids[i] = addressing.SubShardID(sub, m.Config.Seed)
	}
	m.Subdivided = true
	return ids, r.meta.Set(ctx, m)
}

// Route returns the chain that accepts arrivals at c.
func (r *Region) Route(ctx context.Context, c coords.Coordinate) (addressing.ChainID, error) {
	m, err := r.Meta(ctx)
	if err != nil {
		return addressing.ChainID{}, err
	}
	if !m.contains(c) {
		shard := c.ToShard(m.Config.ShardSize)
		if m.Config.Sub != nil && shard == m.Config.Shard {
			// sibling sub-shard of the same parent
			return addressing.SubShardID(c.SubShard(m.Config.ShardSize), m.Config.Seed), nil
		}
		return addressing.ShardID(shard, m.Config.Seed), nil
	}
	if m.Subdivided {
		return addressing.SubShardID(c.SubShard(m.Config.ShardSize), m.Config.Seed), nil
	}
	return m.ChainID, nil
}

func (r *Region) Fleet(ctx context.Context, k units.FleetKey) (FleetPresence, error) {
	return r.presence(ctx, k)
}

func (r *Region) Battle(ctx context.Context, id uint64) (BattleRef, bool, error) {
	return r.battles.Get(ctx, id)
}

func (r *Region) Fleets(ctx context.Context) ([]FleetPresence, error) {
	return values(r.fleets.Entries(ctx))
}

func (r *Region) Planets(ctx context.Context) ([]Planet, error) {
	return values(r.planets.Entries(ctx))
}

func (r *Region) DebrisFields(ctx context.Context) ([]Debris, error) {
	return values(r.debris.Entries(ctx))
}

func (r *Region) Battles(ctx context.Context) ([]BattleRef, error) {
	return values(r.battles.Entries(ctx))
}

func values[K store.Key, V any](es []store.Entry[K, V], err error) ([]V, error) {
	if err != nil {
		return nil, err
	}
	out := make([]V, len(es))
	for i, e := range es {
		out[i] = e.Value
	}
	return out, nil
}
