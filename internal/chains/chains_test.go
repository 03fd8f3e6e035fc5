package chains

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dominion.gg/internal/host"
	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/coords"
	"dominion.gg/internal/sim/region"
	"dominion.gg/internal/sim/units"
	"dominion.gg/internal/sim/worldgen"
	"dominion.gg/internal/store"
)

var (
	alice = addressing.ChainID{0xa1}
	bob   = addressing.ChainID{0xb0}
	seed  = addressing.DefaultSeed
	home  = coords.ShardCoordinate{}
)

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (in *inbox) add(m protocol.Message) {
	in.mu.Lock()
	in.msgs = append(in.msgs, m)
	in.mu.Unlock()
}

func (in *inbox) kinds() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]string, len(in.msgs))
	for i, m := range in.msgs {
		out[i] = m.Kind
	}
	return out
}

func (in *inbox) last() protocol.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.msgs[len(in.msgs)-1]
}

type env struct {
	m      *host.Manager
	region addressing.ChainID
	owners map[addressing.ChainID]*inbox
	data   string
	turns  *plog.TurnLogger
}

func setup(t *testing.T, mut func(*region.Config)) *env {
	t.Helper()
	ctx := context.Background()
	tmpl := region.Config{Seed: seed, ShardSize: coords.DefaultShardSize, BattleMaxTurns: 20}
	if mut != nil {
		mut(&tmpl)
	}
	dir := t.TempDir()
	turns := plog.NewTurnLogger(dir)
	t.Cleanup(func() { _ = turns.Close() })

	bus := host.NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })
	m, err := host.NewManager(host.Options{
		Store:     store.NewMemory(),
		Bus:       bus,
		Clock:     host.NewManualClock(1_000_000),
		Log:       zerolog.Nop(),
		Factories: Factories(Config{Region: tmpl, Turns: turns}),
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	e := &env{m: m, region: addressing.ShardID(home, seed), owners: map[addressing.ChainID]*inbox{}, data: dir, turns: turns}
	for _, o := range []addressing.ChainID{alice, bob} {
		in := &inbox{}
		e.owners[o] = in
		require.NoError(t, bus.Subscribe(ctx, o, in.add))
	}
	_, err = m.Open(ctx, e.region, KindRegion)
	require.NoError(t, err)
	_, err = e.submit(t, e.region, protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: home})
	require.NoError(t, err)
	return e
}

func (e *env) submit(t *testing.T, id addressing.ChainID, typ string, body any) (any, error) {
	t.Helper()
	op, err := protocol.NewOperation(typ, body)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.m.Submit(ctx, id, op)
}

func (e *env) regionState(t *testing.T, id addressing.ChainID) RegionState {
	t.Helper()
	v, err := e.submit(t, id, protocol.OpState, nil)
	require.NoError(t, err)
	return v.(RegionState)
}

func counts(pairs ...uint32) []uint32 {
	out := make([]uint32, units.NumShipTypes)
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = pairs[i+1]
	}
	return out
}

// bring moves a fleet into the region and reveals it.
func (e *env) bring(t *testing.T, f units.Fleet) {
	t.Helper()
	salt := concealment.GenerateSalt([]byte{byte(f.ID), 7})
	h, err := concealment.Commit(f, salt)
	require.NoError(t, err)
	_, err = e.submit(t, e.region, protocol.OpFleetArrive, protocol.FleetArriveBody{
		FleetID: f.ID, OwnerChain: f.OwnerChain, Position: f.Position, Commitment: h,
	})
	require.NoError(t, err)
	_, err = e.submit(t, e.region, protocol.OpFleetReveal, protocol.FleetRevealBody{Fleet: f, Salt: salt})
	require.NoError(t, err)
}

func TestBattleLifecycle(t *testing.T) {
	e := setup(t, nil)
	e.bring(t, units.FleetFromCounts(1, "alice", alice, counts(1, 5), coords.Coordinate{X: 3, Y: 3}))
	e.bring(t, units.FleetFromCounts(2, "bob", bob, counts(0, 10), coords.Coordinate{X: 4, Y: 3}))

	v, err := e.submit(t, e.region, protocol.OpDeclareHostility, protocol.DeclareHostilityBody{Attacker: units.FleetKey{Owner: alice, ID: 1}, Defender: units.FleetKey{Owner: bob, ID: 2}})
	require.NoError(t, err)
	hr := v.(hostilityResult)
	require.Equal(t, addressing.BattleChainID(e.region, 1, seed), hr.BattleChain)

	require.Eventually(t, func() bool {
		_, err := e.submit(t, hr.BattleChain, protocol.OpState, nil)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err = e.submit(t, hr.BattleChain, protocol.OpSubmitCommand, protocol.SubmitCommandBody{Fleet: units.FleetKey{Owner: bob, ID: 2}, Command: "retreat"})
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	_, err = e.submit(t, hr.BattleChain, protocol.OpSubmitCommand, protocol.SubmitCommandBody{Fleet: units.FleetKey{Owner: alice, ID: 2}, Command: "hold"})
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	_, err = e.submit(t, hr.BattleChain, protocol.OpSubmitCommand, protocol.SubmitCommandBody{Fleet: units.FleetKey{Owner: alice, ID: 1}, Command: "dance"})
	require.Equal(t, protocol.ErrBadRequest, ErrorCode(err))
	_, err = e.submit(t, hr.BattleChain, protocol.OpForceTimeout, nil)
	require.Equal(t, protocol.ErrTimeoutNotReached, ErrorCode(err))

	var final *battle.Result
	for i := 0; i < 20 && final == nil; i++ {
		v, err := e.submit(t, hr.BattleChain, protocol.OpRequestResolution, nil)
		require.NoError(t, err)
		final = v.(resolution).Result
	}
	require.NotNil(t, final)
	require.Equal(t, battle.AttackerVictory, final.Reason)
	require.True(t, final.HasWinner)
	require.Equal(t, units.FleetKey{Owner: alice, ID: 1}, final.Winner)

	_, err = e.submit(t, hr.BattleChain, protocol.OpRequestResolution, nil)
	require.Equal(t, protocol.ErrNotActive, ErrorCode(err))

	require.Eventually(t, func() bool {
		st := e.regionState(t, e.region)
		return len(st.Battles) == 1 && st.Battles[0].Resolved
	}, 5*time.Second, 10*time.Millisecond)
	st := e.regionState(t, e.region)
	require.Len(t, st.Fleets, 1)
	require.Equal(t, uint64(1), st.Fleets[0].FleetID)
	require.False(t, st.Fleets[0].InBattle)
	require.Len(t, st.Debris, 1)

	for _, o := range []addressing.ChainID{alice, bob} {
		in := e.owners[o]
		require.Eventually(t, func() bool { return len(in.kinds()) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, protocol.MsgBattleResult, in.last().Kind)
	}

	got, err := e.submit(t, e.region, protocol.OpCollectDebris, protocol.CollectDebrisBody{Fleet: units.FleetKey{Owner: alice, ID: 1}, DebrisID: st.Debris[0].ID})
	require.NoError(t, err)
	require.Equal(t, final.Debris, got)

	require.NoError(t, e.turns.Close())
	turns, err := plog.ReadTurns(e.data)
	require.NoError(t, err)
	require.Len(t, turns, int(final.TotalTurns))
	require.Equal(t, "ATTACKER_VICTORY", turns[len(turns)-1].Reason)
}

func TestSharedFleetIDAcrossOwners(t *testing.T) {
	e := setup(t, nil)
	ours := units.FleetKey{Owner: alice, ID: 1}
	theirs := units.FleetKey{Owner: bob, ID: 1}
	e.bring(t, units.FleetFromCounts(1, "alice", alice, counts(1, 5), coords.Coordinate{X: 3, Y: 3}))
	e.bring(t, units.FleetFromCounts(1, "bob", bob, counts(0, 10), coords.Coordinate{X: 4, Y: 3}))
	require.Len(t, e.regionState(t, e.region).Fleets, 2)

	v, err := e.submit(t, e.region, protocol.OpDeclareHostility, protocol.DeclareHostilityBody{Attacker: ours, Defender: theirs})
	require.NoError(t, err)
	bc := v.(hostilityResult).BattleChain
	require.Eventually(t, func() bool {
		_, err := e.submit(t, bc, protocol.OpState, nil)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	// same id, so only the owner tells the two sides apart
	_, err = e.submit(t, bc, protocol.OpSubmitCommand, protocol.SubmitCommandBody{Fleet: theirs, Command: "retreat"})
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	bond, err := e.submit(t, bc, protocol.OpExtendWarBond, protocol.WarBondBody{Fleet: theirs, Amount: units.Resources{Iron: 40}})
	require.NoError(t, err)
	require.Equal(t, units.Resources{Iron: 40}, bond)
	v, err = e.submit(t, bc, protocol.OpState, nil)
	require.NoError(t, err)
	st := v.(BattleState)
	require.True(t, st.Attacker.Bond.IsZero())
	require.Equal(t, units.Resources{Iron: 40}, st.Defender.Bond)

	var final *battle.Result
	for i := 0; i < 20 && final == nil; i++ {
		v, err := e.submit(t, bc, protocol.OpRequestResolution, nil)
		require.NoError(t, err)
		final = v.(resolution).Result
	}
	require.NotNil(t, final)
	require.Equal(t, battle.AttackerVictory, final.Reason)
	require.Equal(t, ours, final.Winner)
	require.Equal(t, theirs, final.DefenderFleet)

	require.Eventually(t, func() bool {
		st := e.regionState(t, e.region)
		return len(st.Battles) == 1 && st.Battles[0].Resolved
	}, 5*time.Second, 10*time.Millisecond)
	rs := e.regionState(t, e.region)
	require.Len(t, rs.Fleets, 1)
	require.Equal(t, alice, rs.Fleets[0].OwnerChain)
	require.Equal(t, &ours, rs.Battles[0].Winner)

	_, err = e.submit(t, e.region, protocol.OpCollectDebris, protocol.CollectDebrisBody{Fleet: theirs, DebrisID: rs.Debris[0].ID})
	require.Equal(t, protocol.ErrNotFound, ErrorCode(err))
}

func TestForgedBattleResultRejected(t *testing.T) {
	e := setup(t, nil)
	e.bring(t, units.FleetFromCounts(1, "alice", alice, counts(0, 1), coords.Coordinate{X: 1, Y: 1}))
	e.bring(t, units.FleetFromCounts(2, "bob", bob, counts(0, 1), coords.Coordinate{X: 1, Y: 2}))
	_, err := e.submit(t, e.region, protocol.OpDeclareHostility, protocol.DeclareHostilityBody{Attacker: units.FleetKey{Owner: alice, ID: 1}, Defender: units.FleetKey{Owner: bob, ID: 2}})
	require.NoError(t, err)

	body, err := json.Marshal(battle.Result{BattleID: 1, Reason: battle.AttackerVictory, AttackerSurviving: counts(0, 1), DefenderSurviving: counts()})
	require.NoError(t, err)
	require.NoError(t, e.m.Bus().Publish(e.region, protocol.Message{Kind: protocol.MsgBattleResult, From: bob, Seq: 1, Body: body}))

	require.Never(t, func() bool {
		st := e.regionState(t, e.region)
		return st.Battles[0].Resolved || len(st.Fleets) != 2
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestScanSendsRevealRequest(t *testing.T) {
	e := setup(t, nil)
	f := units.FleetFromCounts(5, "alice", alice, counts(2, 3), coords.Coordinate{X: 9, Y: 9})
	h, err := concealment.Commit(f, concealment.Salt{})
	require.NoError(t, err)
	_, err = e.submit(t, e.region, protocol.OpFleetArrive, protocol.FleetArriveBody{FleetID: 5, OwnerChain: alice, Position: f.Position, Commitment: h})
	require.NoError(t, err)

	_, err = e.submit(t, e.region, protocol.OpScanFleet, protocol.FleetRefBody{FleetID: 5, OwnerChain: alice})
	require.NoError(t, err)
	in := e.owners[alice]
	require.Eventually(t, func() bool { return len(in.kinds()) == 1 }, 5*time.Second, 10*time.Millisecond)
	var body protocol.RevealRequestBody
	require.NoError(t, json.Unmarshal(in.last().Body, &body))
	require.Equal(t, units.FleetKey{Owner: alice, ID: 5}, body.Fleet)
	require.Equal(t, e.region, body.RegionChain)

	_, err = e.submit(t, e.region, protocol.OpFleetReveal, protocol.FleetRevealBody{Fleet: f, Salt: concealment.Salt{1}})
	require.Equal(t, protocol.ErrInvalidReveal, ErrorCode(err))
}

func TestAbandonReturnsStake(t *testing.T) {
	e := setup(t, nil)
	gp := worldgen.Survey(seed, home, coords.DefaultShardSize)[0]
	stake := units.Resources{Iron: 2000}
	v, err := e.submit(t, e.region, protocol.OpClaimPlanet, protocol.ClaimPlanetBody{Position: gp.Position, Claimer: bob, Stake: stake})
	require.NoError(t, err)
	require.Equal(t, gp.ID, v.(region.Planet).ID)

	_, err = e.submit(t, e.region, protocol.OpAbandonPlanet, protocol.PlanetStakeBody{PlanetID: gp.ID, Owner: alice})
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	_, err = e.submit(t, e.region, protocol.OpAbandonPlanet, protocol.PlanetStakeBody{PlanetID: gp.ID, Owner: bob})
	require.NoError(t, err)

	in := e.owners[bob]
	require.Eventually(t, func() bool { return len(in.kinds()) == 1 }, 5*time.Second, 10*time.Millisecond)
	var body protocol.StakeReturnBody
	require.NoError(t, json.Unmarshal(in.last().Body, &body))
	require.Equal(t, protocol.StakeAbandoned, body.Reason)
	require.Equal(t, stake, body.Stake)
}

func TestSubdivisionOpensChildren(t *testing.T) {
	e := setup(t, func(c *region.Config) { c.MaxUnits = 1 })
	e.bring(t, units.FleetFromCounts(1, "alice", alice, counts(0, 1), coords.Coordinate{X: 1, Y: 1}))

	_, err := e.submit(t, e.region, protocol.OpFleetArrive, protocol.FleetArriveBody{FleetID: 2, OwnerChain: bob, Position: coords.Coordinate{X: 2, Y: 2}})
	require.Equal(t, protocol.ErrCapacity, ErrorCode(err))

	v, err := e.submit(t, e.region, protocol.OpSubdivide, nil)
	require.NoError(t, err)
	ids := v.([4]addressing.ChainID)

	for i, sub := range home.Subdivide() {
		require.Equal(t, addressing.SubShardID(sub, seed), ids[i])
		require.Eventually(t, func() bool {
			_, err := e.submit(t, ids[i], protocol.OpDigest, nil)
			return err == nil
		}, 5*time.Second, 10*time.Millisecond)
	}

	_, err = e.submit(t, e.region, protocol.OpFleetArrive, protocol.FleetArriveBody{FleetID: 2, OwnerChain: bob, Position: coords.Coordinate{X: 60, Y: 2}})
	require.Equal(t, protocol.ErrConflict, ErrorCode(err))
	require.Contains(t, err.Error(), ids[1].String())

	_, err = e.submit(t, ids[1], protocol.OpFleetArrive, protocol.FleetArriveBody{FleetID: 2, OwnerChain: bob, Position: coords.Coordinate{X: 60, Y: 2}})
	require.NoError(t, err)
	st := e.regionState(t, ids[1])
	require.NotNil(t, st.Meta.Config.Sub)
	require.Len(t, st.Fleets, 1)
}

func TestOpenRegionWrongChain(t *testing.T) {
	e := setup(t, nil)
	_, err := e.submit(t, e.region, protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: coords.ShardCoordinate{X: 5}})
	require.Equal(t, protocol.ErrBadRequest, ErrorCode(err))
	_, err = e.submit(t, e.region, protocol.OpOpenRegion, protocol.OpenRegionBody{Shard: home})
	require.Equal(t, protocol.ErrConflict, ErrorCode(err))
	_, err = e.submit(t, e.region, "TELEPORT", nil)
	require.Equal(t, protocol.ErrBadRequest, ErrorCode(err))
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{eris.Wrap(region.ErrShardFull, "x"), protocol.ErrCapacity},
		{battle.ErrTimeoutNotReached, protocol.ErrTimeoutNotReached},
		{host.ErrUnknownChain, protocol.ErrUnknownChain},
		{region.ErrDebrisNotFound, protocol.ErrNotFound},
		{concealment.ErrHashMismatch, protocol.ErrInvalidReveal},
		{errors.New("disk on fire"), protocol.ErrInternal},
		{eris.Wrapf(ErrBadBody, "bad %d", 1), protocol.ErrBadRequest},
		{eris.Wrap(battle.ErrBattleNotActive, "turn"), protocol.ErrNotActive},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ErrorCode(c.err), "%v", c.err)
		require.True(t, protocol.IsKnownCode(ErrorCode(c.err)))
	}
}

func TestOpenRegionRefusesSubShard(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	sub := home.Subdivide()[1]
	body := protocol.OpenRegionBody{Shard: home, Sub: &sub}

	_, err := e.submit(t, e.region, protocol.OpOpenRegion, body)
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	require.ErrorIs(t, err, ErrSubShardByParent)

	subID := addressing.SubShardID(sub, seed)
	_, err = e.m.Open(ctx, subID, KindRegion)
	require.NoError(t, err)
	_, err = e.submit(t, subID, protocol.OpOpenRegion, body)
	require.Equal(t, protocol.ErrForbidden, ErrorCode(err))
	_, err = e.submit(t, subID, protocol.OpDigest, nil)
	require.Equal(t, protocol.ErrNotActive, ErrorCode(err))
	require.False(t, e.regionState(t, e.region).Meta.Subdivided)

	// the parent's SUBDIVIDE is the way in
	_, err = e.submit(t, e.region, protocol.OpSubdivide, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := e.submit(t, subID, protocol.OpDigest, nil)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	st := e.regionState(t, subID)
	require.Equal(t, sub, *st.Meta.Config.Sub)
}

func TestInitRegionRejectsBadSubSelector(t *testing.T) {
	e := setup(t, nil)
	bad := coords.SubShardCoordinate{Shard: home, SubX: 2}
	subID := addressing.SubShardID(bad, seed)
	_, err := e.m.Open(context.Background(), subID, KindRegion)
	require.NoError(t, err)

	cfg := region.Config{Shard: home, Sub: &bad, Seed: seed, ShardSize: coords.DefaultShardSize}
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, e.m.Bus().Publish(subID, protocol.Message{Kind: protocol.MsgInitRegion, From: e.region, Seq: 1, Body: body}))

	require.Never(t, func() bool {
		_, err := e.submit(t, subID, protocol.OpDigest, nil)
		return err == nil
	}, 300*time.Millisecond, 20*time.Millisecond)
}
