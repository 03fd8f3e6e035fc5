package store

import (
	"bytes"
	"context"
	"sort"

	"github.com/rotisserie/eris"
)

var ErrClosed = eris.New("store closed")

type KV struct {
	Key   []byte
	Value []byte
}

// Store is a flat byte-keyed map. Scan returns entries sorted by key.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Scan(ctx context.Context, prefix []byte) ([]KV, error)
}

func sortKVs(kvs []KV) {
	sort.Slice(kvs, func(i, j int) bool { return bytes.Compare(kvs[i].Key, kvs[j].Key) < 0 })
}

// prefixEnd is the smallest key greater than every key starting with p, or
// nil when no such key exists.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type scoped struct {
	s  Store
	ns []byte
}

// Scoped confines s to keys under ns. Keys passed in and returned are
// relative to ns.
func Scoped(s Store, ns []byte) Store {
	if sc, ok := s.(*scoped); ok {
		return &scoped{s: sc.s, ns: append(append([]byte(nil), sc.ns...), ns...)}
	}
	return &scoped{s: s, ns: append([]byte(nil), ns...)}
}

func (sc *scoped) key(k []byte) []byte {
	out := make([]byte, 0, len(sc.ns)+len(k))
	return append(append(out, sc.ns...), k...)
}

func (sc *scoped) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return sc.s.Get(ctx, sc.key(key))
}

func (sc *scoped) Put(ctx context.Context, key, value []byte) error {
	return sc.s.Put(ctx, sc.key(key), value)
}

func (sc *scoped) Delete(ctx context.Context, key []byte) error {
	return sc.s.Delete(ctx, sc.key(key))
}

func (sc *scoped) Scan(ctx context.Context, prefix []byte) ([]KV, error) {
	kvs, err := sc.s.Scan(ctx, sc.key(prefix))
	if err != nil {
		return nil, err
	}
	for i := range kvs {
		kvs[i].Key = kvs[i].Key[len(sc.ns):]
	}
	return kvs, nil
}

func (sc *scoped) Apply(ctx context.Context, ops []Op) error {
	prefixed := make([]Op, len(ops))
	for i, op := range ops {
		prefixed[i] = Op{Key: sc.key(op.Key), Value: op.Value, Delete: op.Delete}
	}
	if b, ok := sc.s.(Batcher); ok {
		return b.Apply(ctx, prefixed)
	}
	for _, op := range prefixed {
		var err error
		if op.Delete {
			err = sc.s.Delete(ctx, op.Key)
		} else {
			err = sc.s.Put(ctx, op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
