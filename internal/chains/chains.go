package chains

import (
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/host"
	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/region"
)

// Chain kinds hosted by this package.
const (
	KindRegion = "region"
	KindBattle = "battle"
)

type Config struct {
	// Region is the template for every region chain; Shard and Sub are
	// filled in per chain.
	Region region.Config
	// Turns, when set, receives each resolved battle turn.
	Turns *plog.TurnLogger
}

func Factories(cfg Config) map[string]host.Factory {
	return map[string]host.Factory{
		KindRegion: func(id addressing.ChainID) host.Application {
			return &RegionApp{id: id, tmpl: cfg.Region}
		},
		KindBattle: func(id addressing.ChainID) host.Application {
			return &BattleApp{id: id, seed: cfg.Region.Seed, turns: cfg.Turns}
		},
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, eris.Wrapf(ErrBadBody, "%v", err)
	}
	return v, nil
}

func digestResult(id addressing.ChainID, d [32]byte) protocol.DigestResult {
	return protocol.DigestResult{ChainID: id.String(), Digest: hex.EncodeToString(d[:])}
}
