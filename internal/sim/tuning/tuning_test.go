package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/coords"
)

func TestLoadRepoConfig(t *testing.T) {
	tn, err := Load(filepath.Join("..", "..", "..", DefaultPath))
	require.NoError(t, err)
	require.Equal(t, int64(100), tn.ShardSize)
	require.Equal(t, uint32(60), tn.Battle.MaxTurns)
	seed, err := tn.SeedValue()
	require.NoError(t, err)
	require.Equal(t, addressing.DefaultSeed, seed)

	rc := tn.RegionConfig(coords.ShardCoordinate{X: 1}, seed)
	require.Equal(t, uint64(60_000_000), rc.BattleTurnMicros)
	require.Equal(t, uint64(30), rc.DebrisPercent)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	tn, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().Server.Addr, tn.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	tn := Defaults()
	env := map[string]string{
		"DOMINION_SEED":      "AB00000000000000000000000000000000000000000000000000000000000000",
		"DOMINION_LOG_LEVEL": "DEBUG",
		"DOMINION_STORE":     "sqlite",
	}
	tn.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	tn.Normalize()
	require.NoError(t, tn.Validate())
	require.Equal(t, "debug", tn.Log.Level)
	require.Equal(t, "data/dominion.db", tn.Store.Path)
	seed, err := tn.SeedValue()
	require.NoError(t, err)
	require.Equal(t, byte(0xab), seed[0])
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"zero shard":    func(t *Tuning) { t.ShardSize = 0 },
		"decay":         func(t *Tuning) { t.Region.DecayPercentPerHour = 101 },
		"backend":       func(t *Tuning) { t.Store.Backend = "etcd" },
		"redis no addr": func(t *Tuning) { t.Store.Backend = "redis" },
		"short seed":    func(t *Tuning) { t.Seed = "abcd" },
		"log level":     func(t *Tuning) { t.Log.Level = "loud" },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			tn := Defaults()
			mut(&tn)
			require.Error(t, tn.Validate())
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("shard_size: [1"), 0o644))
	_, err := Load(p)
	require.Error(t, err)
}
