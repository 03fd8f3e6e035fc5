package store

import (
	"context"
	"encoding/binary"

	"github.com/rotisserie/eris"
)

// Key types sort by their numeric value: integers are stored big-endian.
type Key interface {
	uint8 | uint32 | uint64 | string
}

func encodeKey[K Key](k K) []byte {
	switch v := any(k).(type) {
	case uint8:
		return []byte{v}
	case uint32:
		return binary.BigEndian.AppendUint32(nil, v)
	case uint64:
		return binary.BigEndian.AppendUint64(nil, v)
	case string:
		return []byte(v)
	}
	panic("unreachable")
}

func decodeKey[K Key](b []byte) (K, error) {
	var zero K
	switch any(zero).(type) {
	case uint8:
		if len(b) != 1 {
			break
		}
		return any(b[0]).(K), nil
	case uint32:
		if len(b) != 4 {
			break
		}
		return any(binary.BigEndian.Uint32(b)).(K), nil
	case uint64:
		if len(b) != 8 {
			break
		}
		return any(binary.BigEndian.Uint64(b)).(K), nil
	case string:
		return any(string(b)).(K), nil
	}
	return zero, eris.Errorf("bad key length %d", len(b))
}

type Entry[K Key, V any] struct {
	Key   K
	Value V
}

// Map is a typed view over the keys of s under name.
type Map[K Key, V any] struct {
	s      Store
	prefix []byte
}

func NewMap[K Key, V any](s Store, name string) *Map[K, V] {
	return &Map[K, V]{s: s, prefix: []byte(name + "/")}
}

func (m *Map[K, V]) key(k K) []byte {
	return append(append([]byte(nil), m.prefix...), encodeKey(k)...)
}

func (m *Map[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	var v V
	b, ok, err := m.s.Get(ctx, m.key(k))
	if err != nil || !ok {
		return v, false, err
	}
	if err := decode(b, &v); err != nil {
		return v, false, eris.Wrapf(err, "%s%v", m.prefix, k)
	}
	return v, true, nil
}

func (m *Map[K, V]) Put(ctx context.Context, k K, v V) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	return m.s.Put(ctx, m.key(k), b)
}

func (m *Map[K, V]) Delete(ctx context.Context, k K) error {
	return m.s.Delete(ctx, m.key(k))
}

// Update runs a get-modify-put cycle on k. fn sees ok=false for a missing
// key; returning an error leaves the entry untouched.
func (m *Map[K, V]) Update(ctx context.Context, k K, fn func(v *V, ok bool) error) error {
	v, ok, err := m.Get(ctx, k)
	if err != nil {
		return err
	}
	if err := fn(&v, ok); err != nil {
		return err
	}
	return m.Put(ctx, k, v)
}

// Entries returns all entries ordered by key.
func (m *Map[K, V]) Entries(ctx context.Context) ([]Entry[K, V], error) {
	kvs, err := m.s.Scan(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry[K, V], 0, len(kvs))
	for _, kv := range kvs {
		k, err := decodeKey[K](kv.Key[len(m.prefix):])
		if err != nil {
			return nil, eris.Wrapf(err, "%s", m.prefix)
		}
		var v V
		if err := decode(kv.Value, &v); err != nil {
			return nil, eris.Wrapf(err, "%s%v", m.prefix, k)
		}
		out = append(out, Entry[K, V]{Key: k, Value: v})
	}
	return out, nil
}

func (m *Map[K, V]) Len(ctx context.Context) (int, error) {
	kvs, err := m.s.Scan(ctx, m.prefix)
	return len(kvs), err
}

// Register is a single typed value stored under name.
type Register[T any] struct {
	s   Store
	key []byte
}

func NewRegister[T any](s Store, name string) *Register[T] {
	return &Register[T]{s: s, key: []byte(name)}
}

func (r *Register[T]) Get(ctx context.Context) (T, bool, error) {
	var v T
	b, ok, err := r.s.Get(ctx, r.key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := decode(b, &v); err != nil {
		return v, false, eris.Wrapf(err, "%s", r.key)
	}
	return v, true, nil
}

func (r *Register[T]) Set(ctx context.Context, v T) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	return r.s.Put(ctx, r.key, b)
}

func (r *Register[T]) Update(ctx context.Context, fn func(v *T, ok bool) error) error {
	v, ok, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if err := fn(&v, ok); err != nil {
		return err
	}
	return r.Set(ctx, v)
}
