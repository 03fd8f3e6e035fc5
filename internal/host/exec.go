package host

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/store"
)

// Application is the state machine hosted by a chain.
type Application interface {
	ExecuteOperation(ctx context.Context, x *Exec, op protocol.Operation) (any, error)
	ExecuteMessage(ctx context.Context, x *Exec, msg protocol.Message) error
}

// Factory builds the application for a newly opened chain.
type Factory func(id addressing.ChainID) Application

// Keys under hostPrefix belong to the runtime, not the application.
const hostPrefix = "_host/"

type outgoing struct {
	dest addressing.ChainID
	msg  protocol.Message
}

type openReq struct {
	id   addressing.ChainID
	kind string
}

// Exec is the context of a single operation or message execution. Its store
// writes and queued effects are applied only if execution succeeds.
type Exec struct {
	chain *Chain
	now   uint64
	st    *store.Overlay
	log   zerolog.Logger
	seq   *store.Register[uint64]

	out   []outgoing
	opens []openReq
}

func newExec(c *Chain, ov *store.Overlay, now uint64) *Exec {
	return &Exec{
		chain: c,
		now:   now,
		st:    ov,
		log:   c.log,
		seq:   store.NewRegister[uint64](ov, hostPrefix+"seq"),
	}
}

func (x *Exec) Now() uint64                 { return x.now }
func (x *Exec) Store() store.Store          { return x.st }
func (x *Exec) ChainID() addressing.ChainID { return x.chain.id }
func (x *Exec) Logger() *zerolog.Logger     { return &x.log }

// Send queues a message for dest. Sequence numbers are persisted with the
// rest of the execution's writes.
func (x *Exec) Send(ctx context.Context, dest addressing.ChainID, kind string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "encode %s", kind)
	}
	var seq uint64
	if err := x.seq.Update(ctx, func(v *uint64, _ bool) error {
		*v++
		seq = *v
		return nil
	}); err != nil {
		return err
	}
	x.out = append(x.out, outgoing{dest: dest, msg: protocol.Message{
		Kind: kind,
		From: x.chain.id,
		Seq:  seq,
		Body: raw,
	}})
	return nil
}

// OpenChain asks the host to start a chain of kind at id once this
// execution commits.
func (x *Exec) OpenChain(id addressing.ChainID, kind string) {
	x.opens = append(x.opens, openReq{id: id, kind: kind})
}
