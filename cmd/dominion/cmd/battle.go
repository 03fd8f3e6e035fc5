package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/store"
)

// parseCounts reads "fighter=5,scout=10" into a per-type count vector.
// Each type may appear once.
func parseCounts(s string) ([]uint32, error) {
	out := make([]uint32, units.NumShipTypes)
	given := make([]bool, units.NumShipTypes)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, n, ok := strings.Cut(part, "=")
		if !ok {
			return nil, eris.Errorf("expected type=count, got %q", part)
		}
		t, ok := units.ParseShipType(name)
		if !ok {
			return nil, eris.Errorf("unknown ship type %q", name)
		}
		if given[t] {
			return nil, eris.Errorf("ship type %s given twice", t)
		}
		v, err := strconv.ParseUint(strings.TrimSpace(n), 10, 32)
		if err != nil {
			return nil, eris.Wrapf(err, "count for %s", name)
		}
		out[t], given[t] = uint32(v), true
	}
	return out, nil
}

func parseCommands(s string) ([]battle.Command, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []battle.Command
	for _, part := range strings.Split(s, ",") {
		c, err := battle.ParseCommand(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type simulation struct {
	Turns  []battle.TurnRecord `json:"turns"`
	Result battle.Result       `json:"result"`
}

type simSide struct {
	counts string
	orders string
}

// simulate runs one battle to completion against an in-memory store.
// orders[i] is submitted before turn i+1; later turns hold.
func simulate(ctx context.Context, atk, def simSide, maxTurns uint32, debris uint64) (simulation, error) {
	var sim simulation
	var sides [2]battle.Side
	var orders [2][]battle.Command
	for i, s := range []simSide{atk, def} {
		counts, err := parseCounts(s.counts)
		if err != nil {
			return sim, err
		}
		if orders[i], err = parseCommands(s.orders); err != nil {
			return sim, err
		}
		sides[i] = battle.Side{FleetID: uint64(i + 1), OwnerChain: addressing.ChainID{byte(i + 1)}, Counts: counts}
	}

	c := battle.Open(store.NewMemory())
	now := uint64(1)
	if err := c.Instantiate(ctx, battle.Init{
		BattleID:      1,
		Attacker:      sides[0],
		Defender:      sides[1],
		MaxTurns:      maxTurns,
		DebrisPercent: debris,
	}, now); err != nil {
		return sim, err
	}
	for turn := 0; ; turn++ {
		m, err := c.Meta(ctx)
		if err != nil {
			return sim, err
		}
		if !m.Active() {
			break
		}
		for i, o := range orders {
			if turn < len(o) {
				if err := c.SubmitCommand(ctx, sides[i].Key(), o[turn]); err != nil {
					return sim, eris.Wrapf(err, "turn %d", turn+1)
				}
			}
		}
		now += m.TurnDurationMicros
		rec, err := c.RequestResolution(ctx, now)
		if err != nil {
			return sim, err
		}
		sim.Turns = append(sim.Turns, rec)
	}
	res, err := c.Result(ctx)
	sim.Result = res
	return sim, err
}

func newBattleCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "battle",
		Short: "Offline battle tools",
	}

	var atk, def simSide
	var maxTurns uint32
	var debris uint64
	sim := &cobra.Command{
		Use:   "simulate",
		Short: "Resolve a battle between two fleets offline",
		Long: `Resolve a battle turn by turn with the live combat rules and print every
turn and the final result.

Examples:
  dominion battle simulate --attacker fighter=5 --defender scout=10
  dominion battle simulate --attacker cruiser=3 --defender fighter=8 --attacker-orders hold,retreat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.tuning()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-turns") {
				maxTurns = t.Battle.MaxTurns
			}
			if !cmd.Flags().Changed("debris") {
				debris = t.Battle.DebrisPercent
			}
			out, err := simulate(cmd.Context(), atk, def, maxTurns, debris)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	sim.Flags().StringVar(&atk.counts, "attacker", "", "attacker ships, e.g. fighter=5,cruiser=1")
	sim.Flags().StringVar(&def.counts, "defender", "", "defender ships")
	sim.Flags().StringVar(&atk.orders, "attacker-orders", "", "comma-separated per-turn commands")
	sim.Flags().StringVar(&def.orders, "defender-orders", "", "comma-separated per-turn commands")
	sim.Flags().Uint32Var(&maxTurns, "max-turns", battle.DefaultMaxTurns, "turn cap")
	sim.Flags().Uint64Var(&debris, "debris", battle.DefaultDebrisPercent, "debris percent of destroyed ship cost")
	_ = sim.MarkFlagRequired("attacker")
	_ = sim.MarkFlagRequired("defender")
	c.AddCommand(sim)
	return c
}
