package battle

import (
	"context"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/sim/combat"
	"dominion.gg/internal/sim/logic/mathx"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/store"
)

// Controller is the turn state machine of one battle chain. It holds no state
// of its own: every call reads and writes the chain store. Calls must be
// serialized by the caller.
type Controller struct {
	meta       *store.Register[Meta]
	combatants *store.Map[uint8, combat.Combatant]
	turns      *store.Map[uint32, TurnRecord]
	commands   *store.Map[uint8, Command]
}

func Open(s store.Store) *Controller {
	return &Controller{
		meta:       store.NewRegister[Meta](s, "battle"),
		combatants: store.NewMap[uint8, combat.Combatant](s, "combatants"),
		turns:      store.NewMap[uint32, TurnRecord](s, "turns"),
		commands:   store.NewMap[uint8, Command](s, "commands"),
	}
}

func (c *Controller) Instantiate(ctx context.Context, in Init, now uint64) error {
	if _, ok, err := c.meta.Get(ctx); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInstantiated
	}
	m := Meta{
		BattleID:           in.BattleID,
		RegionChain:        in.RegionChain,
		Position:           in.Position,
		MaxTurns:           in.MaxTurns,
		TurnDurationMicros: in.TurnDurationMicros,
		StartMicros:        now,
		Status:             Active,
		DebrisPercent:      in.DebrisPercent,
	}
	if m.MaxTurns == 0 {
		m.MaxTurns = DefaultMaxTurns
	}
	if m.TurnDurationMicros == 0 {
		m.TurnDurationMicros = DefaultTurnDurationMicros
	}
	if m.DebrisPercent == 0 {
		m.DebrisPercent = DefaultDebrisPercent
	}

	atk := combat.NewCombatant(in.Attacker.FleetID, in.Attacker.OwnerChain, in.Attacker.Counts, false)
	atk.Bond = in.Attacker.Bond
	def := combat.NewCombatant(in.Defender.FleetID, in.Defender.OwnerChain, in.Defender.Counts, true)
	def.Bond = in.Defender.Bond
	if err := c.combatants.Put(ctx, Attacker, atk); err != nil {
		return err
	}
	if err := c.combatants.Put(ctx, Defender, def); err != nil {
		return err
	}
	return c.meta.Set(ctx, m)
}

func (c *Controller) Meta(ctx context.Context) (Meta, error) {
	m, ok, err := c.meta.Get(ctx)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, ErrNotInstantiated
	}
	return m, nil
}

func (c *Controller) activeMeta(ctx context.Context) (Meta, error) {
	m, err := c.Meta(ctx)
	if err != nil {
		return m, err
	}
	if !m.Active() {
		return m, ErrBattleNotActive
	}
	return m, nil
}

func (c *Controller) Combatants(ctx context.Context) (atk, def combat.Combatant, err error) {
	var ok bool
	if atk, ok, err = c.combatants.Get(ctx, Attacker); err != nil || !ok {
		return atk, def, eris.Wrap(orMissing(err), "attacker")
	}
	if def, ok, err = c.combatants.Get(ctx, Defender); err != nil || !ok {
		return atk, def, eris.Wrap(orMissing(err), "defender")
	}
	return atk, def, nil
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return ErrNotInstantiated
}

// slotOf maps a fleet to its combatant slot. Both sides may use the same
// fleet id, so the owner chain has to match too.
func (c *Controller) slotOf(ctx context.Context, fleet units.FleetKey) (uint8, error) {
	atk, def, err := c.Combatants(ctx)
	if err != nil {
		return 0, err
	}
	switch fleet {
	case atk.Key():
		return Attacker, nil
	case def.Key():
		return Defender, nil
	}
	return 0, eris.Wrapf(ErrNotCombatant, "fleet %s", fleet)
}

func (c *Controller) SubmitCommand(ctx context.Context, fleet units.FleetKey, cmd Command) error {
	m, err := c.activeMeta(ctx)
	if err != nil {
		return err
	}
	if !cmd.Valid() {
		return eris.Wrapf(ErrUnknownCommand, "%d", uint8(cmd))
	}
	slot, err := c.slotOf(ctx, fleet)
	if err != nil {
		return err
	}
	if cmd == Retreat && m.CurrentTurn == 0 {
		return ErrCannotRetreatYet
	}
	if _, ok, err := c.commands.Get(ctx, slot); err != nil {
		return err
	} else if ok {
		return eris.Wrapf(ErrCommandSubmitted, "fleet %s turn %d", fleet, m.CurrentTurn+1)
	}
	return c.commands.Put(ctx, slot, cmd)
}

func (c *Controller) ExtendWarBond(ctx context.Context, fleet units.FleetKey, add units.Resources) (units.Resources, error) {
	if _, err := c.activeMeta(ctx); err != nil {
		return units.Resources{}, err
	}
	slot, err := c.slotOf(ctx, fleet)
	if err != nil {
		return units.Resources{}, err
	}
	var bond units.Resources
	err = c.combatants.Update(ctx, slot, func(cb *combat.Combatant, _ bool) error {
		cb.Bond = cb.Bond.Add(add)
		bond = cb.Bond
		return nil
	})
	return bond, err
}

func (c *Controller) pendingCommand(ctx context.Context, slot uint8) (Command, error) {
	cmd, ok, err := c.commands.Get(ctx, slot)
	if err != nil {
		return Hold, err
	}
	if !ok {
		return Hold, nil
	}
	return cmd, nil
}

// RequestResolution resolves exactly one turn and checks for termination.
func (c *Controller) RequestResolution(ctx context.Context, now uint64) (TurnRecord, error) {
	m, err := c.activeMeta(ctx)
	if err != nil {
		return TurnRecord{}, err
	}
	atk, def, err := c.Combatants(ctx)
	if err != nil {
		return TurnRecord{}, err
	}
	var actions [2]Command
	for slot := range actions {
		if actions[slot], err = c.pendingCommand(ctx, uint8(slot)); err != nil {
			return TurnRecord{}, err
		}
	}

	round := combat.ResolveRound(&atk, &def)
	m.CurrentTurn++
	rec := TurnRecord{
		Turn:            m.CurrentTurn,
		Actions:         actions,
		AttackerDamage:  round.AttackerDamage,
		DefenderDamage:  round.DefenderDamage,
		AttackerLosses:  round.AttackerLosses,
		DefenderLosses:  round.DefenderLosses,
		TimestampMicros: now,
	}

	if reason := terminal(m, atk, def, actions); reason != ReasonNone {
		m.Status = Ended
		m.Reason = reason
		m.EndMicros = now
		switch reason {
		case AttackerRetreat:
			atk.Retreated = true
		case DefenderRetreat:
			def.Retreated = true
		}
	}

	if err := c.turns.Put(ctx, rec.Turn, rec); err != nil {
		return TurnRecord{}, err
	}
	for slot := range actions {
		if err := c.commands.Delete(ctx, uint8(slot)); err != nil {
			return TurnRecord{}, err
		}
	}
	if err := c.combatants.Put(ctx, Attacker, atk); err != nil {
		return TurnRecord{}, err
	}
	if err := c.combatants.Put(ctx, Defender, def); err != nil {
		return TurnRecord{}, err
	}
	if err := c.meta.Set(ctx, m); err != nil {
		return TurnRecord{}, err
	}
	return rec, nil
}

// terminal decides the end reason after a resolved turn. Defeat outranks
// retreat, which outranks the turn limit.
func terminal(m Meta, atk, def combat.Combatant, actions [2]Command) Reason {
	atkDead, defDead := combat.IsDefeated(atk), combat.IsDefeated(def)
	switch {
	case atkDead && defDead:
		return MutualDestruction
	case defDead:
		return AttackerVictory
	case atkDead:
		return DefenderVictory
	case actions[Attacker] == Retreat:
		return AttackerRetreat
	case actions[Defender] == Retreat:
		return DefenderRetreat
	case m.CurrentTurn >= m.MaxTurns:
		return MaxTurnsReached
	}
	return ReasonNone
}

// TimeoutAt is the earliest timestamp at which ForceTimeout succeeds.
func (m Meta) TimeoutAt() uint64 {
	return mathx.SatAdd(m.StartMicros, mathx.SatMul(uint64(m.CurrentTurn)+1, m.TurnDurationMicros))
}

func (c *Controller) ForceTimeout(ctx context.Context, now uint64) error {
	m, err := c.activeMeta(ctx)
	if err != nil {
		return err
	}
	if now < m.TimeoutAt() {
		return eris.Wrapf(ErrTimeoutNotReached, "now %d, due %d", now, m.TimeoutAt())
	}
	m.Status = Ended
	m.Reason = Timeout
	m.EndMicros = now
	return c.meta.Set(ctx, m)
}

// Turns returns the turn log in order.
func (c *Controller) Turns(ctx context.Context) ([]TurnRecord, error) {
	es, err := c.turns.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TurnRecord, len(es))
	for i, e := range es {
		out[i] = e.Value
	}
	return out, nil
}

func (c *Controller) Result(ctx context.Context) (Result, error) {
	m, err := c.Meta(ctx)
	if err != nil {
		return Result{}, err
	}
	if m.Active() {
		return Result{}, ErrBattleStillActive
	}
	atk, def, err := c.Combatants(ctx)
	if err != nil {
		return Result{}, err
	}
	r := Result{
		BattleID:          m.BattleID,
		RegionChain:       m.RegionChain,
		Position:          m.Position,
		Reason:            m.Reason,
		AttackerFleet:     atk.Key(),
		DefenderFleet:     def.Key(),
		AttackerSurviving: atk.Remaining,
		DefenderSurviving: def.Remaining,
		Debris:            combat.Debris(atk, m.DebrisPercent).Add(combat.Debris(def, m.DebrisPercent)),
		AttackerBond:      atk.Bond,
		DefenderBond:      def.Bond,
		TotalTurns:        m.CurrentTurn,
		DurationMicros:    mathx.SatSub(m.EndMicros, m.StartMicros),
	}
	switch m.Reason {
	case AttackerVictory, DefenderRetreat:
		r.Winner, r.HasWinner = atk.Key(), true
	case DefenderVictory, AttackerRetreat:
		r.Winner, r.HasWinner = def.Key(), true
	}
	return r, nil
}
