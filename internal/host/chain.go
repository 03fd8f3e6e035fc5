package host

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/store"
)

type result struct {
	data any
	err  error
}

type work struct {
	op   *protocol.Operation
	msg  *protocol.Message
	resp chan result
}

// Chain runs one application on its own goroutine. Work is queued without
// bound and executed strictly one item at a time.
type Chain struct {
	id   addressing.ChainID
	kind string
	app  Application
	st   store.Store
	mgr  *Manager
	log  zerolog.Logger

	mu     sync.Mutex
	queue  []work
	signal chan struct{}
	done   chan struct{}
}

func (c *Chain) ID() addressing.ChainID { return c.id }
func (c *Chain) Kind() string           { return c.kind }

func (c *Chain) enqueue(w work) {
	c.mu.Lock()
	c.queue = append(c.queue, w)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Chain) pop() (work, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return work{}, false
	}
	w := c.queue[0]
	c.queue[0] = work{}
	c.queue = c.queue[1:]
	return w, true
}

// Submit executes op and waits for its result.
func (c *Chain) Submit(ctx context.Context, op protocol.Operation) (any, error) {
	resp := make(chan result, 1)
	c.enqueue(work{op: &op, resp: resp})
	select {
	case r := <-resp:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Chain) deliver(m protocol.Message) {
	c.enqueue(work{msg: &m})
}

func (c *Chain) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.failPending()
			return
		case <-c.signal:
		}
		for {
			w, ok := c.pop()
			if !ok {
				break
			}
			c.process(ctx, w)
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (c *Chain) failPending() {
	for {
		w, ok := c.pop()
		if !ok {
			return
		}
		if w.resp != nil {
			w.resp <- result{err: ErrClosed}
		}
	}
}

func (c *Chain) process(ctx context.Context, w work) {
	ov := store.NewOverlay(c.st)
	stamp := store.NewRegister[uint64](ov, hostPrefix+"stamp")
	prev, _, err := stamp.Get(ctx)
	if err != nil {
		c.reply(w, result{err: err})
		return
	}
	// Stamps never go backwards even if the clock does.
	now := max(prev, c.mgr.clock.NowMicros())
	x := newExec(c, ov, now)

	var data any
	if w.msg != nil {
		seen := store.NewMap[string, uint64](ov, hostPrefix+"seen")
		id := w.msg.ID()
		if _, dup, err := seen.Get(ctx, string(id[:])); err != nil {
			c.log.Error().Err(err).Msg("dedup lookup")
			return
		} else if dup {
			c.log.Debug().Str("kind", w.msg.Kind).Str("from", w.msg.From.Short()).Uint64("seq", w.msg.Seq).Msg("duplicate message dropped")
			return
		}
		if err := c.app.ExecuteMessage(ctx, x, *w.msg); err != nil {
			ov.Discard()
			c.log.Warn().Err(err).Str("kind", w.msg.Kind).Str("from", w.msg.From.Short()).Msg("message rejected")
			c.consume(ctx, id, now)
			return
		}
		if err := seen.Put(ctx, string(id[:]), now); err != nil {
			c.log.Error().Err(err).Msg("dedup record")
			return
		}
		if err := c.pruneSeen(ctx, ov, now); err != nil {
			c.log.Error().Err(err).Msg("dedup prune")
			return
		}
	} else {
		data, err = c.app.ExecuteOperation(ctx, x, *w.op)
		if err != nil {
			ov.Discard()
			c.reply(w, result{err: err})
			return
		}
	}

	if err := stamp.Set(ctx, now); err != nil {
		c.reply(w, result{err: err})
		return
	}
	if err := c.mgr.commit(ctx, ov); err != nil {
		c.log.Error().Err(err).Msg("commit failed")
		c.reply(w, result{err: eris.Wrap(err, "commit")})
		return
	}
	if w.op != nil {
		c.audit(w.op, data, now)
	}

	for _, o := range x.opens {
		if _, err := c.mgr.Open(ctx, o.id, o.kind); err != nil {
			c.log.Error().Err(err).Str("chain", o.id.Short()).Str("kind", o.kind).Msg("open chain")
		}
	}
	for _, o := range x.out {
		if err := c.mgr.bus.Publish(o.dest, o.msg); err != nil {
			c.log.Error().Err(err).Str("dest", o.dest.Short()).Str("kind", o.msg.Kind).Msg("publish")
		}
	}
	c.reply(w, result{data: data})
}

// consume records a rejected message as seen so redelivery is a no-op.
func (c *Chain) consume(ctx context.Context, id [32]byte, now uint64) {
	ov := store.NewOverlay(c.st)
	if err := store.NewMap[string, uint64](ov, hostPrefix+"seen").Put(ctx, string(id[:]), now); err != nil {
		c.log.Error().Err(err).Msg("dedup record")
		return
	}
	if err := c.pruneSeen(ctx, ov, now); err != nil {
		c.log.Error().Err(err).Msg("dedup prune")
		return
	}
	if err := c.mgr.commit(ctx, ov); err != nil {
		c.log.Error().Err(err).Msg("commit failed")
	}
}

// pruneSeen forgets message ids recorded more than one retention window
// before now. The sweep runs at most once per window.
func (c *Chain) pruneSeen(ctx context.Context, ov *store.Overlay, now uint64) error {
	ttl := c.mgr.seenTTL
	last := store.NewRegister[uint64](ov, hostPrefix+"seen_swept")
	prev, ok, err := last.Get(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return last.Set(ctx, now)
	}
	if now-prev < ttl {
		return nil
	}
	seen := store.NewMap[string, uint64](ov, hostPrefix+"seen")
	es, err := seen.Entries(ctx)
	if err != nil {
		return err
	}
	dropped := 0
	for _, e := range es {
		if now-e.Value < ttl {
			continue
		}
		if err := seen.Delete(ctx, e.Key); err != nil {
			return err
		}
		dropped++
	}
	if dropped > 0 {
		c.log.Debug().Int("dropped", dropped).Msg("dedup records pruned")
	}
	return last.Set(ctx, now)
}

func (c *Chain) reply(w work, r result) {
	if w.resp != nil {
		w.resp <- r
	}
}

func (c *Chain) audit(op *protocol.Operation, data any, now uint64) {
	if c.mgr.audit == nil || op.Type == protocol.OpDigest || op.Type == protocol.OpState {
		return
	}
	e := plog.AuditEntry{Chain: c.id.String(), Kind: c.kind, Op: op.Type, Micros: now, Body: op.Body}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Result = b
		}
	}
	if err := c.mgr.audit.WriteAudit(e); err != nil {
		c.log.Warn().Err(err).Msg("audit write")
	}
}
