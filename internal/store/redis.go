package store

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Redis stores entries as plain string keys: namespace followed by the
// lowercase hex of the key, which keeps lexical order equal to byte order.
type Redis struct {
	c  redis.Cmdable
	ns string
}

func NewRedis(c redis.Cmdable, namespace string) *Redis {
	return &Redis{c: c, ns: namespace}
}

func (r *Redis) key(k []byte) string { return r.ns + hex.EncodeToString(k) }

func (r *Redis) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, err := r.c.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "redis get")
	}
	return v, true, nil
}

func (r *Redis) Put(ctx context.Context, key, value []byte) error {
	return eris.Wrap(r.c.Set(ctx, r.key(key), value, 0).Err(), "redis set")
}

func (r *Redis) Delete(ctx context.Context, key []byte) error {
	return eris.Wrap(r.c.Del(ctx, r.key(key)).Err(), "redis del")
}

func (r *Redis) Scan(ctx context.Context, prefix []byte) ([]KV, error) {
	match := r.key(prefix) + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.c.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return nil, eris.Wrap(err, "redis scan")
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	keys = dedupSorted(keys)

	vals, err := r.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis mget")
	}
	out := make([]KV, 0, len(keys))
	for i, k := range keys {
		s, ok := vals[i].(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		raw, err := hex.DecodeString(k[len(r.ns):])
		if err != nil {
			return nil, eris.Wrapf(err, "redis key %q", k)
		}
		out = append(out, KV{Key: raw, Value: []byte(s)})
	}
	return out, nil
}

// Apply writes ops in one MULTI/EXEC transaction.
func (r *Redis) Apply(ctx context.Context, ops []Op) error {
	_, err := r.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				p.Del(ctx, r.key(op.Key))
			} else {
				p.Set(ctx, r.key(op.Key), op.Value, 0)
			}
		}
		return nil
	})
	return eris.Wrap(err, "redis tx")
}

func dedupSorted(keys []string) []string {
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out
}
