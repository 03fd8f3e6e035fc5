package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"dominion.gg/internal/sim/tuning"
	"dominion.gg/internal/store"
)

// backend is the opened base store plus its lifecycle hooks. snapshot is
// nil for backends that persist on their own.
type backend struct {
	store    store.Store
	snapshot func() error
	close    func() error
}

func snapshotPath(dataDir string) string {
	return filepath.Join(dataDir, "snapshots", "latest.snap.zst")
}

func openBackend(ctx context.Context, t tuning.Tuning, log zerolog.Logger) (*backend, error) {
	switch t.Store.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(t.Store.Path), 0o755); err != nil {
			return nil, err
		}
		s, err := store.OpenSQLite(t.Store.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "open sqlite %s", t.Store.Path)
		}
		log.Info().Str("path", t.Store.Path).Msg("sqlite store opened")
		return &backend{store: s, close: s.Close}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: t.Store.RedisAddr})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			_ = client.Close()
			return nil, eris.Wrapf(err, "redis %s", t.Store.RedisAddr)
		}
		log.Info().Str("addr", t.Store.RedisAddr).Msg("redis store connected")
		return &backend{store: store.NewRedis(client, "dominion:"), close: client.Close}, nil

	default:
		m := store.NewMemory()
		path := snapshotPath(t.DataDir)
		hdr, err := m.LoadSnapshot(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info().Msg("memory store starting empty")
		case err != nil:
			return nil, eris.Wrapf(err, "load snapshot %s", path)
		default:
			log.Info().Int("entries", hdr.Entries).Str("path", path).Msg("memory store restored")
		}
		return &backend{
			store:    m,
			snapshot: func() error { return m.SaveSnapshot(path, time.Now().UTC().Format(time.RFC3339)) },
			close:    func() error { return nil },
		}, nil
	}
}
