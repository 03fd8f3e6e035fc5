package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	plog "dominion.gg/internal/persistence/log"
)

type chainSummary struct {
	Chain    string         `json:"chain"`
	Kind     string         `json:"kind"`
	Ops      map[string]int `json:"ops"`
	FirstTs  uint64         `json:"first_ts"`
	LastTs   uint64         `json:"last_ts"`
	Battles  int            `json:"battles,omitempty"`
	Turns    int            `json:"turns,omitempty"`
	Outcomes map[string]int `json:"outcomes,omitempty"`
}

type replaySummary struct {
	AuditEntries int            `json:"audit_entries"`
	TurnEntries  int            `json:"turn_entries"`
	Chains       []chainSummary `json:"chains"`
}

// summarize folds audit and turn entries into per-chain counters.
func summarize(audit []plog.AuditEntry, turns []plog.TurnEntry, only string) replaySummary {
	byChain := map[string]*chainSummary{}
	get := func(id, kind string) *chainSummary {
		s, ok := byChain[id]
		if !ok {
			s = &chainSummary{Chain: id, Kind: kind, Ops: map[string]int{}}
			byChain[id] = s
		}
		if s.Kind == "" {
			s.Kind = kind
		}
		return s
	}
	touch := func(s *chainSummary, ts uint64) {
		if s.FirstTs == 0 || ts < s.FirstTs {
			s.FirstTs = ts
		}
		if ts > s.LastTs {
			s.LastTs = ts
		}
	}

	out := replaySummary{}
	for _, e := range audit {
		if only != "" && e.Chain != only {
			continue
		}
		out.AuditEntries++
		s := get(e.Chain, e.Kind)
		s.Ops[e.Op]++
		touch(s, e.Micros)
	}
	seen := map[string]map[uint64]bool{}
	for _, e := range turns {
		if only != "" && e.Chain != only {
			continue
		}
		out.TurnEntries++
		s := get(e.Chain, "battle")
		s.Turns++
		touch(s, e.TimestampMicros)
		if seen[e.Chain] == nil {
			seen[e.Chain] = map[uint64]bool{}
		}
		if !seen[e.Chain][e.BattleID] {
			seen[e.Chain][e.BattleID] = true
			s.Battles++
		}
		if e.Reason != "" {
			if s.Outcomes == nil {
				s.Outcomes = map[string]int{}
			}
			s.Outcomes[e.Reason]++
		}
	}

	for _, s := range byChain {
		out.Chains = append(out.Chains, *s)
	}
	sort.Slice(out.Chains, func(i, j int) bool { return out.Chains[i].Chain < out.Chains[j].Chain })
	return out
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var dataDir, chain string
	c := &cobra.Command{
		Use:   "replay",
		Short: "Summarize turn and audit logs",
		Long: `Read the zstd audit and turn logs under the data directory and print a
per-chain summary of accepted operations and battle outcomes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				t, err := opts.tuning()
				if err != nil {
					return err
				}
				dataDir = t.DataDir
			}
			audit, err := plog.ReadAudit(dataDir)
			if err != nil {
				return err
			}
			turns, err := plog.ReadTurns(dataDir)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summarize(audit, turns, chain))
		},
	}
	c.Flags().StringVar(&dataDir, "data", "", "data directory (default: data_dir from config)")
	c.Flags().StringVar(&chain, "chain", "", "only this chain id")
	return c
}
