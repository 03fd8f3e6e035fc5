package region

import (
	"context"

	"lukechampine.com/blake3"

	"dominion.gg/internal/sim/io/digestcodec"
	"dominion.gg/internal/sim/units"
)

// Digest hashes meta, fleets, planets, debris and battles in key order.
func (r *Region) Digest(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	m, err := r.Meta(ctx)
	if err != nil {
		return out, err
	}
	fleets, err := r.Fleets(ctx)
	if err != nil {
		return out, err
	}
	planets, err := r.Planets(ctx)
	if err != nil {
		return out, err
	}
	debris, err := r.DebrisFields(ctx)
	if err != nil {
		return out, err
	}
	battles, err := r.Battles(ctx)
	if err != nil {
		return out, err
	}

	h := blake3.New(32, nil)
	var tmp [8]byte
	h.Write(m.ChainID[:])
	digestcodec.WriteBool(h, m.Subdivided)
	digestcodec.WriteU64(h, &tmp, uint64(m.FleetCount))
	digestcodec.WriteU64(h, &tmp, m.NextBattleID)
	digestcodec.WriteU64(h, &tmp, m.NextDebrisID)

	digestcodec.WriteU64(h, &tmp, uint64(len(fleets)))
	for _, f := range fleets {
		digestcodec.WriteU64(h, &tmp, f.FleetID)
		h.Write(f.OwnerChain[:])
		digestcodec.WriteI64(h, &tmp, f.Position.X)
		digestcodec.WriteI64(h, &tmp, f.Position.Y)
		h.Write(f.Commitment.Hash[:])
		digestcodec.WriteU64(h, &tmp, f.ArrivedMicros)
		digestcodec.WriteBool(h, f.Revealed)
		digestcodec.WriteU32s(h, &tmp, f.Counts)
		digestcodec.WriteBool(h, f.RevealRequested)
		digestcodec.WriteBool(h, f.InBattle)
		digestcodec.WriteU64(h, &tmp, f.BattleID)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(planets)))
	for _, p := range planets {
		digestcodec.WriteU64(h, &tmp, p.ID)
		h.Write(p.Owner[:])
		writeResources(h, &tmp, p.Stake)
		digestcodec.WriteU64(h, &tmp, p.StakeUpdatedMicros)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(debris)))
	for _, d := range debris {
		digestcodec.WriteU64(h, &tmp, d.ID)
		digestcodec.WriteI64(h, &tmp, d.Position.X)
		digestcodec.WriteI64(h, &tmp, d.Position.Y)
		writeResources(h, &tmp, d.Resources)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(battles)))
	for _, b := range battles {
		digestcodec.WriteU64(h, &tmp, b.BattleID)
		h.Write(b.Chain[:])
		writeFleetKey(h, &tmp, b.Attacker)
		writeFleetKey(h, &tmp, b.Defender)
		digestcodec.WriteBool(h, b.Resolved)
		h.Write([]byte{byte(b.Reason)})
		digestcodec.WriteBool(h, b.Winner != nil)
		if b.Winner != nil {
			writeFleetKey(h, &tmp, *b.Winner)
		}
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

func writeFleetKey(w digestcodec.Writer, tmp *[8]byte, k units.FleetKey) {
	w.Write(k.Owner[:])
	digestcodec.WriteU64(w, tmp, k.ID)
}

func writeResources(w digestcodec.Writer, tmp *[8]byte, r units.Resources) {
	digestcodec.WriteU64(w, tmp, r.Iron)
	digestcodec.WriteU64(w, tmp, r.Deuterium)
	digestcodec.WriteU64(w, tmp, r.Crystals)
}
