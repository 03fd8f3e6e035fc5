package host

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/store"
)

var errBoom = eris.New("boom")

type pingBody struct {
	N    uint64             `json:"n"`
	Dest addressing.ChainID `json:"dest"`
}

// counter increments on INC, forwards PINGs and records the order in which
// messages arrive.
type counter struct{}

func (counter) ExecuteOperation(ctx context.Context, x *Exec, op protocol.Operation) (any, error) {
	n := store.NewRegister[uint64](x.Store(), "n")
	switch op.Type {
	case "INC":
		var v uint64
		err := n.Update(ctx, func(p *uint64, _ bool) error { *p++; v = *p; return nil })
		return v, err
	case "FAIL":
		if err := n.Set(ctx, 999); err != nil {
			return nil, err
		}
		return nil, errBoom
	case "NOW":
		return x.Now(), nil
	case "PING":
		b, err := protocol.DecodeBody[pingBody](op.Body)
		if err != nil {
			return nil, err
		}
		for i := uint64(1); i <= b.N; i++ {
			if err := x.Send(ctx, b.Dest, "PING", i); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "SPAWN":
		b, err := protocol.DecodeBody[pingBody](op.Body)
		if err != nil {
			return nil, err
		}
		x.OpenChain(b.Dest, "counter")
		return nil, x.Send(ctx, b.Dest, "PING", uint64(1))
	case "RECEIVED":
		es, err := store.NewMap[uint64, uint64](x.Store(), "got").Entries(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]uint64, len(es))
		for i, e := range es {
			out[i] = e.Value
		}
		return out, nil
	case "GET":
		v, _, err := n.Get(ctx)
		return v, err
	}
	return nil, eris.Errorf("unknown op %s", op.Type)
}

func (counter) ExecuteMessage(ctx context.Context, x *Exec, msg protocol.Message) error {
	var v uint64
	if err := json.Unmarshal(msg.Body, &v); err != nil {
		return err
	}
	got := store.NewMap[uint64, uint64](x.Store(), "got")
	l, err := got.Len(ctx)
	if err != nil {
		return err
	}
	return got.Put(ctx, uint64(l), v)
}

func newManager(t *testing.T, st store.Store, clock Clock) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Store:     st,
		Bus:       NewBus(zerolog.Nop()),
		Clock:     clock,
		Log:       zerolog.Nop(),
		Factories: map[string]Factory{"counter": func(addressing.ChainID) Application { return counter{} }},
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func op(t *testing.T, typ string, body any) protocol.Operation {
	t.Helper()
	o, err := protocol.NewOperation(typ, body)
	require.NoError(t, err)
	return o
}

func received(t *testing.T, m *Manager, id addressing.ChainID) []uint64 {
	t.Helper()
	v, err := m.Submit(context.Background(), id, protocol.Operation{Type: "RECEIVED"})
	require.NoError(t, err)
	return v.([]uint64)
}

func TestFailedOperationDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	a := addressing.ChainID{1}
	_, err := m.Open(ctx, a, "counter")
	require.NoError(t, err)

	v, err := m.Submit(ctx, a, protocol.Operation{Type: "INC"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)
	_, err = m.Submit(ctx, a, protocol.Operation{Type: "FAIL"})
	require.ErrorIs(t, err, errBoom)
	v, err = m.Submit(ctx, a, protocol.Operation{Type: "GET"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)
}

func TestStampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(1000)
	m := newManager(t, store.NewMemory(), clock)
	a := addressing.ChainID{1}
	_, err := m.Open(ctx, a, "counter")
	require.NoError(t, err)

	_, err = m.Submit(ctx, a, protocol.Operation{Type: "INC"})
	require.NoError(t, err)
	clock.Set(10)
	v, err := m.Submit(ctx, a, protocol.Operation{Type: "NOW"})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), v)
	clock.Advance(5000)
	v, err = m.Submit(ctx, a, protocol.Operation{Type: "NOW"})
	require.NoError(t, err)
	require.Equal(t, uint64(5010), v)
}

func TestMessagesArriveInOrder(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	a, b := addressing.ChainID{1}, addressing.ChainID{2}
	for _, id := range []addressing.ChainID{a, b} {
		_, err := m.Open(ctx, id, "counter")
		require.NoError(t, err)
	}
	_, err := m.Submit(ctx, a, op(t, "PING", pingBody{N: 50, Dest: b}))
	require.NoError(t, err)

	want := make([]uint64, 50)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	require.Eventually(t, func() bool { return len(received(t, m, b)) == 50 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, want, received(t, m, b))
}

func TestDuplicateMessageIgnored(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	b := addressing.ChainID{2}
	_, err := m.Open(ctx, b, "counter")
	require.NoError(t, err)

	msg := protocol.Message{Kind: "PING", From: addressing.ChainID{9}, Seq: 1, Body: json.RawMessage(`7`)}
	require.NoError(t, m.Bus().Publish(b, msg))
	require.NoError(t, m.Bus().Publish(b, msg))
	msg.Seq = 2
	msg.Body = json.RawMessage(`8`)
	require.NoError(t, m.Bus().Publish(b, msg))

	require.Eventually(t, func() bool { return len(received(t, m, b)) == 2 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []uint64{7, 8}, received(t, m, b))
}

func TestRejectedMessageIsConsumed(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	b := addressing.ChainID{2}
	_, err := m.Open(ctx, b, "counter")
	require.NoError(t, err)

	bad := protocol.Message{Kind: "PING", From: addressing.ChainID{9}, Seq: 1, Body: json.RawMessage(`"x"`)}
	require.NoError(t, m.Bus().Publish(b, bad))
	good := protocol.Message{Kind: "PING", From: addressing.ChainID{9}, Seq: 2, Body: json.RawMessage(`1`)}
	require.NoError(t, m.Bus().Publish(b, good))
	require.Eventually(t, func() bool { return len(received(t, m, b)) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestOpenChainFromExecution(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	a, c := addressing.ChainID{1}, addressing.ChainID{3}
	_, err := m.Open(ctx, a, "counter")
	require.NoError(t, err)

	_, err = m.Submit(ctx, a, op(t, "SPAWN", pingBody{Dest: c}))
	require.NoError(t, err)
	_, ok := m.Chain(c)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(received(t, m, c)) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Len(t, m.Chains(), 2)
}

func TestRestartRestoresChains(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	a := addressing.ChainID{1}

	m1 := newManager(t, st, nil)
	_, err := m1.Open(ctx, a, "counter")
	require.NoError(t, err)
	_, err = m1.Submit(ctx, a, protocol.Operation{Type: "INC"})
	require.NoError(t, err)
	m1.Close()
	_, err = m1.Submit(ctx, a, protocol.Operation{Type: "INC"})
	require.ErrorIs(t, err, ErrClosed)

	m2 := newManager(t, st, nil)
	v, err := m2.Submit(ctx, a, protocol.Operation{Type: "INC"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemory(), nil)
	_, err := m.Open(ctx, addressing.ChainID{1}, "nope")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = m.Submit(ctx, addressing.ChainID{1}, protocol.Operation{Type: "INC"})
	require.ErrorIs(t, err, ErrUnknownChain)
}

func TestBusCompressesPayload(t *testing.T) {
	msg := protocol.Message{Kind: "X", From: addressing.ChainID{1}, Seq: 4, Body: json.RawMessage(`{"a":[1,2,3]}`)}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	z, err := compress(raw)
	require.NoError(t, err)
	got, err := decodeMessage(z)
	require.NoError(t, err)
	require.Equal(t, msg.Seq, got.Seq)
	require.JSONEq(t, `{"a":[1,2,3]}`, string(got.Body))
}

func TestSeenRecordsArePruned(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(1_000_000)
	st := store.NewMemory()
	m, err := NewManager(Options{
		Store:         st,
		Bus:           NewBus(zerolog.Nop()),
		Clock:         clock,
		Log:           zerolog.Nop(),
		Factories:     map[string]Factory{"counter": func(addressing.ChainID) Application { return counter{} }},
		SeenRetention: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	b := addressing.ChainID{2}
	_, err = m.Open(ctx, b, "counter")
	require.NoError(t, err)

	seen := func() int {
		n, err := store.NewMap[string, uint64](store.Scoped(st, append([]byte("c/"), b[:]...)), hostPrefix+"seen").Len(ctx)
		require.NoError(t, err)
		return n
	}
	from := addressing.ChainID{9}
	require.NoError(t, m.Bus().Publish(b, protocol.Message{Kind: "PING", From: from, Seq: 1, Body: json.RawMessage(`1`)}))
	require.Eventually(t, func() bool { return len(received(t, m, b)) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, seen())

	// inside the window a replay is still dropped
	clock.Advance(500_000)
	require.NoError(t, m.Bus().Publish(b, protocol.Message{Kind: "PING", From: from, Seq: 1, Body: json.RawMessage(`1`)}))
	require.NoError(t, m.Bus().Publish(b, protocol.Message{Kind: "PING", From: from, Seq: 2, Body: json.RawMessage(`2`)}))
	require.Eventually(t, func() bool { return len(received(t, m, b)) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 2, seen())

	clock.Advance(2_000_000)
	require.NoError(t, m.Bus().Publish(b, protocol.Message{Kind: "PING", From: from, Seq: 3, Body: json.RawMessage(`3`)}))
	require.Eventually(t, func() bool { return seen() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{1, 2, 3}, received(t, m, b))
}
