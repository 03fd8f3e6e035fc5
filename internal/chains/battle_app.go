package chains

import (
	"context"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/host"
	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/combat"
)

// BattleApp hosts one battle spawned by a region.
type BattleApp struct {
	id    addressing.ChainID
	seed  addressing.Seed
	turns *plog.TurnLogger
}

type BattleState struct {
	Meta     battle.Meta         `json:"meta"`
	Attacker combat.Combatant    `json:"attacker"`
	Defender combat.Combatant    `json:"defender"`
	Turns    []battle.TurnRecord `json:"turns"`
}

type resolution struct {
	Turn   battle.TurnRecord `json:"turn"`
	Ended  bool              `json:"ended"`
	Result *battle.Result    `json:"result,omitempty"`
}

func (a *BattleApp) ExecuteOperation(ctx context.Context, x *host.Exec, op protocol.Operation) (any, error) {
	c := battle.Open(x.Store())
	now := x.Now()

	switch op.Type {
	case protocol.OpSubmitCommand:
		b, err := decode[protocol.SubmitCommandBody](op.Body)
		if err != nil {
			return nil, err
		}
		cmd, err := battle.ParseCommand(b.Command)
		if err != nil {
			return nil, err
		}
		if err := c.SubmitCommand(ctx, b.Fleet, cmd); err != nil {
			return nil, err
		}
		return map[string]any{"fleet": b.Fleet, "command": cmd}, nil

	case protocol.OpRequestResolution:
		rec, err := c.RequestResolution(ctx, now)
		if err != nil {
			return nil, err
		}
		m, err := c.Meta(ctx)
		if err != nil {
			return nil, err
		}
		a.logTurn(x, m, rec)
		out := resolution{Turn: rec}
		if !m.Active() {
			res, err := a.finish(ctx, x, c)
			if err != nil {
				return nil, err
			}
			out.Ended, out.Result = true, &res
		}
		return out, nil

	case protocol.OpForceTimeout:
		if err := c.ForceTimeout(ctx, now); err != nil {
			return nil, err
		}
		return a.finish(ctx, x, c)

	case protocol.OpExtendWarBond:
		b, err := decode[protocol.WarBondBody](op.Body)
		if err != nil {
			return nil, err
		}
		return c.ExtendWarBond(ctx, b.Fleet, b.Amount)

	case protocol.OpDigest:
		d, err := c.Digest(ctx)
		if err != nil {
			return nil, err
		}
		return digestResult(x.ChainID(), d), nil

	case protocol.OpState:
		var st BattleState
		var err error
		if st.Meta, err = c.Meta(ctx); err != nil {
			return nil, err
		}
		if st.Attacker, st.Defender, err = c.Combatants(ctx); err != nil {
			return nil, err
		}
		if st.Turns, err = c.Turns(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, eris.Wrapf(ErrUnknownOp, "%q on battle", op.Type)
}

// finish reports the outcome to the region and both owners.
func (a *BattleApp) finish(ctx context.Context, x *host.Exec, c *battle.Controller) (battle.Result, error) {
	res, err := c.Result(ctx)
	if err != nil {
		return res, err
	}
	sent := map[addressing.ChainID]bool{}
	for _, dest := range []addressing.ChainID{res.RegionChain, res.AttackerFleet.Owner, res.DefenderFleet.Owner} {
		if dest.IsZero() || sent[dest] {
			continue
		}
		sent[dest] = true
		if err := x.Send(ctx, dest, protocol.MsgBattleResult, res); err != nil {
			return res, err
		}
	}
	x.Logger().Info().Uint64("battle", res.BattleID).Str("reason", res.Reason.String()).
		Uint32("turns", res.TotalTurns).Msg("battle ended")
	return res, nil
}

func (a *BattleApp) logTurn(x *host.Exec, m battle.Meta, rec battle.TurnRecord) {
	if a.turns == nil {
		return
	}
	e := plog.TurnEntry{
		Chain:           x.ChainID().String(),
		BattleID:        m.BattleID,
		Turn:            rec.Turn,
		Actions:         []string{rec.Actions[0].String(), rec.Actions[1].String()},
		AttackerDamage:  rec.AttackerDamage,
		DefenderDamage:  rec.DefenderDamage,
		AttackerLosses:  rec.AttackerLosses,
		DefenderLosses:  rec.DefenderLosses,
		TimestampMicros: rec.TimestampMicros,
	}
	if !m.Active() {
		e.Reason = m.Reason.String()
	}
	if err := a.turns.WriteTurn(e); err != nil {
		x.Logger().Warn().Err(err).Msg("turn log write")
	}
}

func (a *BattleApp) ExecuteMessage(ctx context.Context, x *host.Exec, msg protocol.Message) error {
	switch msg.Kind {
	case protocol.MsgInitBattle:
		in, err := decode[battle.Init](msg.Body)
		if err != nil {
			return err
		}
		if msg.From != in.RegionChain {
			return eris.Wrapf(ErrUntrusted, "init from %s", msg.From.Short())
		}
		if addressing.BattleChainID(in.RegionChain, in.BattleID, a.seed) != x.ChainID() {
			return eris.Wrapf(ErrMisdelivered, "battle %d", in.BattleID)
		}
		if err := battle.Open(x.Store()).Instantiate(ctx, in, x.Now()); err != nil {
			return err
		}
		x.Logger().Info().Uint64("battle", in.BattleID).Msg("battle started")
		return nil
	}
	return eris.Wrapf(ErrUnknownMsg, "%q on battle", msg.Kind)
}
