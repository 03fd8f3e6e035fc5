package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, []byte("b/2"), []byte("two")))
	require.NoError(t, s.Put(ctx, []byte("b/1"), []byte("one")))
	require.NoError(t, s.Put(ctx, []byte("a/1"), []byte("other")))
	require.NoError(t, s.Put(ctx, []byte{'b', '/', 0xff}, []byte("high")))

	v, ok, err := s.Get(ctx, []byte("b/1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), v)

	kvs, err := s.Scan(ctx, []byte("b/"))
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	require.Equal(t, []byte("b/1"), kvs[0].Key)
	require.Equal(t, []byte("b/2"), kvs[1].Key)
	require.Equal(t, []byte{'b', '/', 0xff}, kvs[2].Key)

	require.NoError(t, s.Delete(ctx, []byte("b/1")))
	kvs, err = s.Scan(ctx, []byte("b/"))
	require.NoError(t, err)
	require.Len(t, kvs, 2)

	require.NoError(t, s.Put(ctx, []byte("b/2"), []byte("TWO")))
	v, _, err = s.Get(ctx, []byte("b/2"))
	require.NoError(t, err)
	require.Equal(t, []byte("TWO"), v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.sqlite"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	require.NoError(t, s.Apply(context.Background(), []Op{
		{Key: []byte("x"), Value: []byte("1")},
		{Key: []byte("b/2"), Delete: true},
	}))
	_, ok, err := s.Get(context.Background(), []byte("b/2"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Put(context.Background(), []byte("y"), nil), ErrClosed)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer c.Close()
	s := NewRedis(c, "dominion:")
	exerciseStore(t, s)

	require.NoError(t, s.Apply(context.Background(), []Op{{Key: []byte("z"), Value: []byte("9")}}))
	require.True(t, mr.Exists("dominion:7a"))
}

func TestScopedIsolation(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := Scoped(base, []byte("chainA:"))
	b := Scoped(base, []byte("chainB:"))
	exerciseStore(t, a)

	_, ok, err := b.Get(ctx, []byte("b/2"))
	require.NoError(t, err)
	require.False(t, ok)

	kvs, err := b.Scan(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, kvs)

	nested := Scoped(a, []byte("inner:"))
	require.NoError(t, nested.Put(ctx, []byte("k"), []byte("v")))
	_, ok, err = base.Get(ctx, []byte("chainA:inner:k"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	require.NoError(t, base.Put(ctx, []byte("k/1"), []byte("base")))
	require.NoError(t, base.Put(ctx, []byte("k/2"), []byte("doomed")))

	o := NewOverlay(base)
	require.NoError(t, o.Put(ctx, []byte("k/3"), []byte("new")))
	require.NoError(t, o.Delete(ctx, []byte("k/2")))

	// read-your-writes
	_, ok, err := o.Get(ctx, []byte("k/2"))
	require.NoError(t, err)
	require.False(t, ok)
	kvs, err := o.Scan(ctx, []byte("k/"))
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	require.Equal(t, []byte("k/3"), kvs[1].Key)

	// base untouched until commit
	_, ok, _ = base.Get(ctx, []byte("k/3"))
	require.False(t, ok)

	o.Discard()
	require.Zero(t, o.Dirty())
	_, ok, _ = o.Get(ctx, []byte("k/2"))
	require.True(t, ok)

	require.NoError(t, o.Put(ctx, []byte("k/3"), []byte("new")))
	require.NoError(t, o.Commit(ctx))
	v, ok, err := base.Get(ctx, []byte("k/3"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), v)
}

func TestMemorySnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Put(ctx, []byte{0, 1, 2}, []byte{9}))

	path := filepath.Join(t.TempDir(), "snap", "kv.snap.zst")
	require.NoError(t, m.SaveSnapshot(path, "test"))

	back := NewMemory()
	hdr, err := back.LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, 2, hdr.Entries)
	require.Equal(t, "test", hdr.Note)
	v, ok, err := back.Get(ctx, []byte{0, 1, 2})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{9}, v)
}
