package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string   `cbor:"1,keyasint"`
	Count uint32   `cbor:"2,keyasint"`
	Tags  []uint32 `cbor:"3,keyasint"`
}

func TestMapOrderedByNumericKey(t *testing.T) {
	ctx := context.Background()
	m := NewMap[uint64, record](NewMemory(), "fleets")
	for _, k := range []uint64{300, 2, 1 << 40, 17} {
		require.NoError(t, m.Put(ctx, k, record{Name: "f", Count: uint32(k % 1000)}))
	}
	es, err := m.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, es, 4)
	require.Equal(t, []uint64{2, 17, 300, 1 << 40}, []uint64{es[0].Key, es[1].Key, es[2].Key, es[3].Key})

	n, err := m.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestMapUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMap[uint32, record](NewMemory(), "turns")

	require.NoError(t, m.Update(ctx, 1, func(r *record, ok bool) error {
		require.False(t, ok)
		r.Count = 5
		return nil
	}))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Update(ctx, 1, func(r *record, ok bool) error {
		r.Count = 99
		return boom
	}), boom)

	r, ok, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(5), r.Count)

	require.NoError(t, m.Delete(ctx, 1))
	_, ok, err = m.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMapsDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := NewMap[uint8, record](s, "a")
	ab := NewMap[uint8, record](s, "ab")
	require.NoError(t, a.Put(ctx, 1, record{Name: "a"}))
	require.NoError(t, ab.Put(ctx, 1, record{Name: "ab"}))
	es, err := a.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, es, 1)
	require.Equal(t, "a", es[0].Value.Name)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := NewRegister[record](NewMemory(), "meta")
	_, ok, err := r.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Set(ctx, record{Name: "x", Tags: []uint32{1, 2}}))
	require.NoError(t, r.Update(ctx, func(v *record, ok bool) error {
		require.True(t, ok)
		v.Count++
		return nil
	}))
	v, ok, err := r.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "x", Count: 1, Tags: []uint32{1, 2}}, v)
}

func TestStringKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMap[string, uint64](NewMemory(), "seen")
	require.NoError(t, m.Put(ctx, "beta", 2))
	require.NoError(t, m.Put(ctx, "alpha", 1))
	es, err := m.Entries(ctx)
	require.NoError(t, err)
	require.Equal(t, "alpha", es[0].Key)
	require.Equal(t, uint64(2), es[1].Value)
}
