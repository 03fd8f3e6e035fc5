package battle

import (
	"context"

	"lukechampine.com/blake3"

	"dominion.gg/internal/sim/combat"
	"dominion.gg/internal/sim/io/digestcodec"
)

// Digest hashes the full battle state. Replicas that executed the same
// operations produce the same digest.
func (c *Controller) Digest(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	m, err := c.Meta(ctx)
	if err != nil {
		return out, err
	}
	atk, def, err := c.Combatants(ctx)
	if err != nil {
		return out, err
	}
	turns, err := c.Turns(ctx)
	if err != nil {
		return out, err
	}

	h := blake3.New(32, nil)
	var tmp [8]byte
	digestcodec.WriteU64(h, &tmp, m.BattleID)
	h.Write(m.RegionChain[:])
	digestcodec.WriteI64(h, &tmp, m.Position.X)
	digestcodec.WriteI64(h, &tmp, m.Position.Y)
	digestcodec.WriteU64(h, &tmp, uint64(m.CurrentTurn))
	digestcodec.WriteU64(h, &tmp, uint64(m.MaxTurns))
	digestcodec.WriteU64(h, &tmp, m.TurnDurationMicros)
	digestcodec.WriteU64(h, &tmp, m.StartMicros)
	digestcodec.WriteU64(h, &tmp, m.EndMicros)
	h.Write([]byte{byte(m.Status), byte(m.Reason)})

	for _, cb := range []combat.Combatant{atk, def} {
		digestCombatant(h, &tmp, cb)
	}
	digestcodec.WriteU64(h, &tmp, uint64(len(turns)))
	for _, t := range turns {
		digestcodec.WriteU64(h, &tmp, uint64(t.Turn))
		h.Write([]byte{byte(t.Actions[0]), byte(t.Actions[1])})
		digestcodec.WriteU64(h, &tmp, t.AttackerDamage)
		digestcodec.WriteU64(h, &tmp, t.DefenderDamage)
		digestcodec.WriteU32s(h, &tmp, t.AttackerLosses)
		digestcodec.WriteU32s(h, &tmp, t.DefenderLosses)
		digestcodec.WriteU64(h, &tmp, t.TimestampMicros)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

func digestCombatant(w digestcodec.Writer, tmp *[8]byte, cb combat.Combatant) {
	digestcodec.WriteU64(w, tmp, cb.FleetID)
	w.Write(cb.OwnerChain[:])
	digestcodec.WriteU32s(w, tmp, cb.Ships)
	digestcodec.WriteU32s(w, tmp, cb.Remaining)
	digestcodec.WriteBool(w, cb.IsDefender)
	digestcodec.WriteBool(w, cb.Retreated)
	digestcodec.WriteSortedNonZeroU64Map(w, tmp, map[string]uint64{
		"iron":      cb.Bond.Iron,
		"deuterium": cb.Bond.Deuterium,
		"crystals":  cb.Bond.Crystals,
	})
}
