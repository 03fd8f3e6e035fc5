package store

import (
	"bytes"
	"context"
	"sort"
)

// Overlay buffers writes over a base store. Reads see buffered writes;
// nothing reaches the base until Commit.
type Overlay struct {
	base   Store
	writes map[string][]byte // nil value marks a delete
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, writes: map[string][]byte{}}
}

func (o *Overlay) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if v, ok := o.writes[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return bytes.Clone(v), true, nil
	}
	return o.base.Get(ctx, key)
}

func (o *Overlay) Put(_ context.Context, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	o.writes[string(key)] = bytes.Clone(value)
	return nil
}

func (o *Overlay) Delete(_ context.Context, key []byte) error {
	o.writes[string(key)] = nil
	return nil
}

func (o *Overlay) Scan(ctx context.Context, prefix []byte) ([]KV, error) {
	base, err := o.base.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(base))
	for _, kv := range base {
		merged[string(kv.Key)] = kv.Value
	}
	for k, v := range o.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = bytes.Clone(v)
		}
	}
	out := make([]KV, 0, len(merged))
	for k, v := range merged {
		out = append(out, KV{Key: []byte(k), Value: v})
	}
	sortKVs(out)
	return out, nil
}

func (o *Overlay) Dirty() int { return len(o.writes) }

// Commit applies buffered writes to the base in key order.
func (o *Overlay) Commit(ctx context.Context) error {
	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if b, ok := o.base.(Batcher); ok {
		ops := make([]Op, 0, len(keys))
		for _, k := range keys {
			ops = append(ops, Op{Key: []byte(k), Value: o.writes[k], Delete: o.writes[k] == nil})
		}
		if err := b.Apply(ctx, ops); err != nil {
			return err
		}
		o.Discard()
		return nil
	}
	for _, k := range keys {
		v := o.writes[k]
		var err error
		if v == nil {
			err = o.base.Delete(ctx, []byte(k))
		} else {
			err = o.base.Put(ctx, []byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	o.Discard()
	return nil
}

func (o *Overlay) Discard() {
	o.writes = map[string][]byte{}
}

type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}
