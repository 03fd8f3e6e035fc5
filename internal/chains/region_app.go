package chains

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/host"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/region"
	"dominion.gg/internal/sim/units"
)

// RegionApp hosts one shard or sub-shard.
type RegionApp struct {
	id   addressing.ChainID
	tmpl region.Config
}

type RegionState struct {
	Meta    region.Meta            `json:"meta"`
	Fleets  []region.FleetPresence `json:"fleets"`
	Planets []region.Planet        `json:"planets"`
	Debris  []region.Debris        `json:"debris"`
	Battles []region.BattleRef     `json:"battles"`
}

type hostilityResult struct {
	BattleID    uint64             `json:"battle_id"`
	BattleChain addressing.ChainID `json:"battle_chain"`
}

func (a *RegionApp) config(shard coords.ShardCoordinate, sub *coords.SubShardCoordinate) region.Config {
	cfg := a.tmpl
	cfg.Shard = shard
	cfg.Sub = sub
	if sub != nil {
		cfg.Shard = sub.Shard
	}
	return cfg
}

func (a *RegionApp) ExecuteOperation(ctx context.Context, x *host.Exec, op protocol.Operation) (any, error) {
	r := region.Open(x.Store())
	now := x.Now()
	log := x.Logger()

	switch op.Type {
	case protocol.OpOpenRegion:
		b, err := decode[protocol.OpenRegionBody](op.Body)
		if err != nil {
			return nil, err
		}
		if b.Sub != nil {
			return nil, eris.Wrapf(ErrSubShardByParent, "%s", b.Sub)
		}
		cfg := a.config(b.Shard, nil)
		if cfg.ChainID() != x.ChainID() {
			return nil, eris.Wrapf(ErrWrongChain, "region %s belongs to %s", cfg.Shard, cfg.ChainID().Short())
		}
		if _, err := r.Instantiate(ctx, cfg); err != nil {
			return nil, err
		}
		log.Info().Str("shard", cfg.Shard.String()).Msg("region opened")
		return r.Meta(ctx)

	case protocol.OpFleetArrive:
		b, err := decode[protocol.FleetArriveBody](op.Body)
		if err != nil {
			return nil, err
		}
		err = r.FleetEnter(ctx, region.Arrival{
			FleetID:    b.FleetID,
			OwnerChain: b.OwnerChain,
			Position:   b.Position,
			Commitment: b.Commitment,
		}, now)
		if errors.Is(err, region.ErrShardSubdivided) {
			if dest, rerr := r.Route(ctx, b.Position); rerr == nil {
				return nil, eris.Wrapf(err, "route to %s", dest)
			}
		}
		if err != nil {
			return nil, err
		}
		if need, err := r.NeedsSubdivision(ctx); err == nil && need {
			log.Info().Msg("region at capacity; subdivision recommended")
		}
		return r.Fleet(ctx, units.FleetKey{Owner: b.OwnerChain, ID: b.FleetID})

	case protocol.OpFleetLeave:
		b, err := decode[protocol.FleetRefBody](op.Body)
		if err != nil {
			return nil, err
		}
		return r.FleetLeave(ctx, b.Key())

	case protocol.OpFleetReveal:
		b, err := decode[protocol.FleetRevealBody](op.Body)
		if err != nil {
			return nil, err
		}
		return r.FleetReveal(ctx, b.Fleet, b.Salt)

	case protocol.OpScanFleet:
		b, err := decode[protocol.FleetRefBody](op.Body)
		if err != nil {
			return nil, err
		}
		owner, err := r.ScanFleet(ctx, b.Key())
		if err != nil {
			return nil, err
		}
		if err := x.Send(ctx, owner, protocol.MsgRevealRequest, protocol.RevealRequestBody{
			Fleet:       b.Key(),
			RegionChain: x.ChainID(),
		}); err != nil {
			return nil, err
		}
		return r.Fleet(ctx, b.Key())

	case protocol.OpDeclareHostility:
		b, err := decode[protocol.DeclareHostilityBody](op.Body)
		if err != nil {
			return nil, err
		}
		in, chain, err := r.DeclareHostility(ctx, b.Attacker, b.Defender, now)
		if err != nil {
			return nil, err
		}
		x.OpenChain(chain, KindBattle)
		if err := x.Send(ctx, chain, protocol.MsgInitBattle, in); err != nil {
			return nil, err
		}
		log.Info().Uint64("battle", in.BattleID).Str("battle_chain", chain.Short()).
			Stringer("attacker", b.Attacker).Stringer("defender", b.Defender).Msg("hostility declared")
		return hostilityResult{BattleID: in.BattleID, BattleChain: chain}, nil

	case protocol.OpClaimPlanet:
		b, err := decode[protocol.ClaimPlanetBody](op.Body)
		if err != nil {
			return nil, err
		}
		return r.ClaimPlanet(ctx, b.Position, b.Claimer, b.Stake, now)

	case protocol.OpResupplyPlanet:
		b, err := decode[protocol.PlanetStakeBody](op.Body)
		if err != nil {
			return nil, err
		}
		return r.ResupplyPlanet(ctx, b.PlanetID, b.Owner, b.Add, now)

	case protocol.OpAbandonPlanet:
		b, err := decode[protocol.PlanetStakeBody](op.Body)
		if err != nil {
			return nil, err
		}
		stake, err := r.AbandonPlanet(ctx, b.PlanetID, b.Owner)
		if err != nil {
			return nil, err
		}
		return stake, a.returnStake(ctx, x, b.PlanetID, b.Owner, stake, protocol.StakeAbandoned)

	case protocol.OpCollectDebris:
		b, err := decode[protocol.CollectDebrisBody](op.Body)
		if err != nil {
			return nil, err
		}
		return r.CollectDebris(ctx, b.Fleet, b.DebrisID)

	case protocol.OpStakeDecay:
		expired, err := r.ProcessStakeDecay(ctx, now)
		if err != nil {
			return nil, err
		}
		for _, e := range expired {
			if err := a.returnStake(ctx, x, e.PlanetID, e.Owner, units.Resources{}, protocol.StakeExpired); err != nil {
				return nil, err
			}
		}
		if len(expired) > 0 {
			log.Info().Int("expired", len(expired)).Msg("planet stakes exhausted")
		}
		return expired, nil

	case protocol.OpSubdivide:
		m, err := r.Meta(ctx)
		if err != nil {
			return nil, err
		}
		ids, err := r.Subdivide(ctx)
		if err != nil {
			return nil, err
		}
		for i, sub := range m.Config.Shard.Subdivide() {
			cfg := a.config(sub.Shard, &sub)
			x.OpenChain(ids[i], KindRegion)
			if err := x.Send(ctx, ids[i], protocol.MsgInitRegion, cfg); err != nil {
				return nil, err
			}
		}
		log.Info().Str("shard", m.Config.Shard.String()).Msg("region subdivided")
		return ids, nil

	case protocol.OpDigest:
		d, err := r.Digest(ctx)
		if err != nil {
			return nil, err
		}
		return digestResult(x.ChainID(), d), nil

	case protocol.OpState:
		return a.state(ctx, r)
	}
	return nil, eris.Wrapf(ErrUnknownOp, "%q on region", op.Type)
}

func (a *RegionApp) returnStake(ctx context.Context, x *host.Exec, planet uint64, owner addressing.ChainID, stake units.Resources, reason string) error {
	return x.Send(ctx, owner, protocol.MsgStakeReturn, protocol.StakeReturnBody{
		PlanetID:    planet,
		Owner:       owner,
		Stake:       stake,
		Reason:      reason,
		RegionChain: x.ChainID(),
	})
}

func (a *RegionApp) state(ctx context.Context, r *region.Region) (RegionState, error) {
	var st RegionState
	var err error
	if st.Meta, err = r.Meta(ctx); err != nil {
		return st, err
	}
	if st.Fleets, err = r.Fleets(ctx); err != nil {
		return st, err
	}
	if st.Planets, err = r.Planets(ctx); err != nil {
		return st, err
	}
	if st.Debris, err = r.DebrisFields(ctx); err != nil {
		return st, err
	}
	st.Battles, err = r.Battles(ctx)
	return st, err
}

func (a *RegionApp) ExecuteMessage(ctx context.Context, x *host.Exec, msg protocol.Message) error {
	r := region.Open(x.Store())
	switch msg.Kind {
	case protocol.MsgBattleResult:
		res, err := decode[battle.Result](msg.Body)
		if err != nil {
			return err
		}
		ref, ok, err := r.Battle(ctx, res.BattleID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(region.ErrBattleNotFound, "battle %d", res.BattleID)
		}
		if ref.Chain != msg.From {
			return eris.Wrapf(ErrUntrusted, "result for battle %d from %s", res.BattleID, msg.From.Short())
		}
		if err := r.BattleResolved(ctx, res, x.Now()); err != nil {
			return err
		}
		x.Logger().Info().Uint64("battle", res.BattleID).Str("reason", res.Reason.String()).
			Uint32("turns", res.TotalTurns).Msg("battle resolved")
		return nil

	case protocol.MsgInitRegion:
		cfg, err := decode[region.Config](msg.Body)
		if err != nil {
			return err
		}
		if cfg.Sub == nil || msg.From != addressing.ShardID(cfg.Shard, cfg.Seed) {
			return eris.Wrapf(ErrUntrusted, "init from %s", msg.From.Short())
		}
		if cfg.ChainID() != x.ChainID() {
			return eris.Wrapf(ErrMisdelivered, "init for %s", cfg.ChainID().Short())
		}
		_, err = r.Instantiate(ctx, cfg)
		return err
	}
	return eris.Wrapf(ErrUnknownMsg, "%q on region", msg.Kind)
}
