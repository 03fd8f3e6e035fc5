package tuning

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/region"
)

const DefaultPath = "configs/dominion.yaml"

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" validate:"required"`
	// Seed is hex; empty selects addressing.DefaultSeed.
	Seed      string `yaml:"seed" validate:"omitempty,hexadecimal,len=64"`
	ShardSize int64  `yaml:"shard_size" validate:"gt=0"`
	DataDir   string `yaml:"data_dir"`

	Region RegionTuning `yaml:"region"`
	Battle BattleTuning `yaml:"battle"`
	Server ServerTuning `yaml:"server"`
	Store  StoreTuning  `yaml:"store"`
	Log    LogTuning    `yaml:"log"`
}

type RegionTuning struct {
	MaxUnits            uint32 `yaml:"max_units" validate:"gt=0"`
	MinimumStake        uint64 `yaml:"minimum_stake" validate:"gt=0"`
	DecayPercentPerHour uint64 `yaml:"decay_percent_per_hour" validate:"min=1,max=100"`
	DecayEverySec       int    `yaml:"decay_every_sec" validate:"gte=0"`
}

type BattleTuning struct {
	MaxTurns       uint32 `yaml:"max_turns" validate:"gt=0"`
	TurnDurationMs uint64 `yaml:"turn_duration_ms" validate:"gt=0"`
	DebrisPercent  uint64 `yaml:"debris_percent" validate:"max=100"`
	TurnLog        bool   `yaml:"turn_log"`
}

type ServerTuning struct {
	Addr            string  `yaml:"addr" validate:"required"`
	RatePerSec      float64 `yaml:"rate_per_sec" validate:"gt=0"`
	RateBurst       int     `yaml:"rate_burst" validate:"gt=0"`
	MaxMessageBytes int64   `yaml:"max_message_bytes" validate:"gt=0"`
	SubmitTimeoutMs int     `yaml:"submit_timeout_ms" validate:"gt=0"`
}

type StoreTuning struct {
	Backend          string `yaml:"backend" validate:"oneof=memory sqlite redis"`
	Path             string `yaml:"path" validate:"required_if=Backend sqlite"`
	RedisAddr        string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	SnapshotEverySec int    `yaml:"snapshot_every_sec" validate:"gte=0"`
	SeenRetentionSec int    `yaml:"seen_retention_sec" validate:"gte=0"`
}

type LogTuning struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		ShardSize:       coords.DefaultShardSize,
		DataDir:         "data",
		Region: RegionTuning{
			MaxUnits:            region.DefaultMaxUnits,
			MinimumStake:        region.DefaultMinimumStake,
			DecayPercentPerHour: region.DefaultDecayPercentPerHour,
			DecayEverySec:       60,
		},
		Battle: BattleTuning{
			MaxTurns:       battle.DefaultMaxTurns,
			TurnDurationMs: battle.DefaultTurnDurationMicros / 1000,
			DebrisPercent:  battle.DefaultDebrisPercent,
		},
		Server: ServerTuning{
			Addr:            ":8080",
			RatePerSec:      20,
			RateBurst:       40,
			MaxMessageBytes: 1 << 20,
			SubmitTimeoutMs: 5000,
		},
		Store: StoreTuning{Backend: "memory", SeenRetentionSec: 3600},
		Log:   LogTuning{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies .env and environment
// overrides, then normalizes and validates. An empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, eris.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, eris.Wrapf(err, "%s", path)
		}
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return t, eris.Wrap(err, ".env")
	}
	t.ApplyEnv(os.LookupEnv)
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, eris.Wrapf(err, "%s", path)
	}
	return t, nil
}

// ApplyEnv overrides selected fields from DOMINION_* variables.
func (t *Tuning) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("DOMINION_SEED"); ok {
		t.Seed = v
	}
	if v, ok := lookup("DOMINION_LOG_LEVEL"); ok {
		t.Log.Level = v
	}
	if v, ok := lookup("DOMINION_STORE"); ok {
		t.Store.Backend = v
	}
	if v, ok := lookup("DOMINION_REDIS_ADDR"); ok {
		t.Store.RedisAddr = v
	}
}

func (t *Tuning) Normalize() {
	t.Seed = strings.ToLower(strings.TrimSpace(t.Seed))
	t.Log.Level = strings.ToLower(strings.TrimSpace(t.Log.Level))
	t.Log.Format = strings.ToLower(strings.TrimSpace(t.Log.Format))
	t.Store.Backend = strings.ToLower(strings.TrimSpace(t.Store.Backend))
	if t.Store.Backend == "" {
		t.Store.Backend = "memory"
	}
	if t.Store.Backend == "sqlite" && t.Store.Path == "" && t.DataDir != "" {
		t.Store.Path = t.DataDir + "/dominion.db"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return eris.Wrap(err, "invalid tuning")
	}
	return nil
}

func (t Tuning) SeedValue() (addressing.Seed, error) {
	if t.Seed == "" {
		return addressing.DefaultSeed, nil
	}
	return addressing.ParseSeed(t.Seed)
}

// RegionConfig is the instantiation argument for the region owning shard.
func (t Tuning) RegionConfig(shard coords.ShardCoordinate, seed addressing.Seed) region.Config {
	return region.Config{
		Shard:               shard,
		Seed:                seed,
		ShardSize:           t.ShardSize,
		MaxUnits:            t.Region.MaxUnits,
		MinimumStake:        t.Region.MinimumStake,
		DecayPercentPerHour: t.Region.DecayPercentPerHour,
		BattleMaxTurns:      t.Battle.MaxTurns,
		BattleTurnMicros:    t.Battle.TurnDurationMs * 1000,
		DebrisPercent:       t.Battle.DebrisPercent,
	}
}
