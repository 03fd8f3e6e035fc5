package host

import (
	"sync/atomic"
	"time"
)

// Clock supplies execution timestamps in microseconds.
type Clock interface {
	NowMicros() uint64
}

type SystemClock struct{}

func (SystemClock) NowMicros() uint64 { return uint64(time.Now().UnixMicro()) }

// ManualClock only moves when told to.
type ManualClock struct{ now atomic.Uint64 }

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) NowMicros() uint64 { return c.now.Load() }
func (c *ManualClock) Set(v uint64)      { c.now.Store(v) }
func (c *ManualClock) Advance(d uint64)  { c.now.Add(d) }
