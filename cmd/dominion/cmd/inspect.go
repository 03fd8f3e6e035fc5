package cmd

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/worldgen"
)

func parsePair(args []string) (int64, int64, error) {
	x, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "x %q", args[0])
	}
	y, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "y %q", args[1])
	}
	return x, y, nil
}

type shardChain struct {
	Shard   coords.ShardCoordinate `json:"shard"`
	ChainID addressing.ChainID     `json:"chain_id"`
}

type subChain struct {
	Sub     string             `json:"sub"`
	ChainID addressing.ChainID `json:"chain_id"`
}

type shardReport struct {
	Shard      coords.ShardCoordinate `json:"shard"`
	Quadrant   string                 `json:"quadrant"`
	ChainID    addressing.ChainID     `json:"chain_id"`
	Neighbours []shardChain           `json:"neighbours"`
	SubShards  []subChain             `json:"sub_shards"`
}

func newShardCmd(opts *rootOptions) *cobra.Command {
	var world bool
	c := &cobra.Command{
		Use:   "shard X Y",
		Short: "Show the chain addresses for a shard",
		Long: `Print the region chain id of shard (X, Y), its eight neighbours and its
four sub-shards. With --world, X and Y are a world coordinate and the
containing shard is reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.tuning()
			if err != nil {
				return err
			}
			seed, err := t.SeedValue()
			if err != nil {
				return err
			}
			x, y, err := parsePair(args)
			if err != nil {
				return err
			}
			s := coords.ShardCoordinate{X: x, Y: y}
			if world {
				s = coords.Coordinate{X: x, Y: y}.ToShard(t.ShardSize)
			}

			rep := shardReport{Shard: s, Quadrant: s.Quadrant().String(), ChainID: addressing.ShardID(s, seed)}
			ids := addressing.Neighbours(s, seed)
			for i, n := range s.Adjacent() {
				rep.Neighbours = append(rep.Neighbours, shardChain{Shard: n, ChainID: ids[i]})
			}
			for _, sub := range s.Subdivide() {
				rep.SubShards = append(rep.SubShards, subChain{Sub: sub.String(), ChainID: addressing.SubShardID(sub, seed)})
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	c.Flags().BoolVar(&world, "world", false, "treat X Y as a world coordinate")
	return c
}

type planetView struct {
	ID       uint64            `json:"id"`
	Position coords.Coordinate `json:"position"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
}

func viewPlanet(p worldgen.Planet) planetView {
	return planetView{ID: p.ID, Position: p.Position, Type: p.Type.String(), Name: p.Name}
}

func newPlanetCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "planet X Y",
		Short: "Show the planet at a world coordinate, if any",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.tuning()
			if err != nil {
				return err
			}
			seed, err := t.SeedValue()
			if err != nil {
				return err
			}
			x, y, err := parsePair(args)
			if err != nil {
				return err
			}
			p, ok := worldgen.PlanetAt(seed, coords.Coordinate{X: x, Y: y})
			if !ok {
				return eris.Errorf("no planet at (%d, %d)", x, y)
			}
			return printJSON(cmd.OutOrStdout(), viewPlanet(p))
		},
	}

	var kind string
	survey := &cobra.Command{
		Use:   "survey SX SY",
		Short: "List every planet in shard (SX, SY)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.tuning()
			if err != nil {
				return err
			}
			seed, err := t.SeedValue()
			if err != nil {
				return err
			}
			x, y, err := parsePair(args)
			if err != nil {
				return err
			}
			var filter *worldgen.PlanetType
			if kind != "" {
				pt, ok := worldgen.ParsePlanetType(kind)
				if !ok {
					return eris.Errorf("unknown planet type %q", kind)
				}
				filter = &pt
			}
			out := []planetView{}
			for _, p := range worldgen.Survey(seed, coords.ShardCoordinate{X: x, Y: y}, t.ShardSize) {
				if filter == nil || p.Type == *filter {
					out = append(out, viewPlanet(p))
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	survey.Flags().StringVar(&kind, "type", "", "only list planets of this type")
	c.AddCommand(survey)
	return c
}
