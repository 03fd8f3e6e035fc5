package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dominion.gg/internal/chains"
	"dominion.gg/internal/host"
	"dominion.gg/internal/logging"
	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/region"
	"dominion.gg/internal/sim/tuning"
	"dominion.gg/internal/transport/observer"
	"dominion.gg/internal/transport/ws"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the chain host and websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.tuning()
			if err != nil {
				return err
			}
			if addr != "" {
				t.Server.Addr = addr
			}
			return serve(cmd.Context(), t)
		},
	}
	c.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return c
}

func serve(parent context.Context, t tuning.Tuning) error {
	log := logging.New(logging.Config{Level: t.Log.Level, Format: t.Log.Format})
	seed, err := t.SeedValue()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	be, err := openBackend(ctx, t, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer func() { _ = be.close() }()

	audit := plog.NewAuditLogger(t.DataDir)
	defer audit.Close()
	var turns *plog.TurnLogger
	if t.Battle.TurnLog {
		turns = plog.NewTurnLogger(t.DataDir)
		defer turns.Close()
	}

	bus := host.NewBus(logging.Component(log, "bus"))
	defer bus.Close()

	mgr, err := host.NewManager(host.Options{
		Store:         be.store,
		Bus:           bus,
		Clock:         host.SystemClock{},
		Log:           logging.Component(log, "host"),
		Factories:     chains.Factories(chains.Config{Region: t.RegionConfig(coords.ShardCoordinate{}, seed), Turns: turns}),
		Audit:         audit,
		SeenRetention: time.Duration(t.Store.SeenRetentionSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		mgr.Close()
		if be.snapshot != nil {
			if err := be.snapshot(); err != nil {
				log.Error().Err(err).Msg("final snapshot")
			}
		}
	}()

	if be.snapshot != nil {
		go mgr.SnapshotLoop(ctx, time.Duration(t.Store.SnapshotEverySec)*time.Second, be.snapshot)
	}
	if t.Region.DecayEverySec > 0 {
		go decayLoop(ctx, mgr, time.Duration(t.Region.DecayEverySec)*time.Second, logging.Component(log, "decay"))
	}

	schemas, err := protocol.CompileSchemas()
	if err != nil {
		return err
	}
	wsSrv := ws.NewServer(mgr, schemas, ws.Config{
		Seed:            seed,
		RatePerSec:      t.Server.RatePerSec,
		RateBurst:       t.Server.RateBurst,
		MaxMessageBytes: t.Server.MaxMessageBytes,
		SubmitTimeout:   time.Duration(t.Server.SubmitTimeoutMs) * time.Millisecond,
	}, logging.Component(log, "ws"))
	obs := observer.NewServer(mgr, logging.Component(log, "observer"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/observer/chains", obs.ChainsHandler())
	mux.HandleFunc("/observer/state", obs.StateHandler())

	srv := &http.Server{
		Addr:              t.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.Info().Str("addr", t.Server.Addr).Str("store", t.Store.Backend).
		Int("chains", len(mgr.Chains())).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// decayLoop submits STAKE_DECAY to every region chain on each tick.
func decayLoop(ctx context.Context, mgr *host.Manager, every time.Duration, log zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	op := protocol.Operation{Type: protocol.OpStakeDecay}
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		for _, info := range mgr.Chains() {
			if info.Kind != chains.KindRegion {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, every)
			res, err := mgr.Submit(sctx, info.ID, op)
			cancel()
			switch {
			case errors.Is(err, region.ErrNotInstantiated):
			case err != nil:
				log.Warn().Err(err).Str("chain", info.ID.Short()).Msg("stake decay")
			default:
				if exp, ok := res.([]region.Expiry); ok && len(exp) > 0 {
					log.Info().Str("chain", info.ID.Short()).Int("expired", len(exp)).Msg("stakes expired")
				}
			}
		}
	}
}
