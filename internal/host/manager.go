package host

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	plog "dominion.gg/internal/persistence/log"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/store"
)

var (
	ErrUnknownChain = eris.New("unknown chain")
	ErrUnknownKind  = eris.New("unknown chain kind")
	ErrKindMismatch = eris.New("chain already open with another kind")
	ErrClosed       = eris.New("host closed")
)

type Options struct {
	Store     store.Store
	Bus       *Bus
	Clock     Clock
	Log       zerolog.Logger
	Factories map[string]Factory
	// Audit, when set, receives every committed operation.
	Audit *plog.AuditLogger
	// SeenRetention bounds how long a delivered message id is remembered
	// for deduplication. Zero means DefaultSeenRetention.
	SeenRetention time.Duration
}

const DefaultSeenRetention = time.Hour

type ChainInfo struct {
	ID   addressing.ChainID `json:"id"`
	Kind string             `json:"kind"`
}

// Manager owns the chains of one host process.
type Manager struct {
	base      store.Store
	bus       *Bus
	clock     Clock
	log       zerolog.Logger
	factories map[string]Factory
	audit     *plog.AuditLogger
	registry  *store.Map[string, string]
	seenTTL   uint64

	// Commits hold commitMu shared; snapshots hold it exclusively.
	commitMu sync.RWMutex

	mu     sync.RWMutex
	chains map[addressing.ChainID]*Chain
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewManager restarts every chain recorded in the store's registry.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Bus == nil {
		return nil, eris.New("host: store and bus are required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.SeenRetention <= 0 {
		opts.SeenRetention = DefaultSeenRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		base:      opts.Store,
		bus:       opts.Bus,
		clock:     opts.Clock,
		log:       opts.Log.With().Str("component", "host").Logger(),
		factories: opts.Factories,
		audit:     opts.Audit,
		registry:  store.NewMap[string, string](opts.Store, "chains"),
		seenTTL:   uint64(opts.SeenRetention.Microseconds()),
		chains:    map[addressing.ChainID]*Chain{},
		ctx:       ctx,
		cancel:    cancel,
	}
	entries, err := m.registry.Entries(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	for _, e := range entries {
		id, err := addressing.ParseChainID(e.Key)
		if err != nil {
			cancel()
			return nil, eris.Wrapf(err, "registry entry %q", e.Key)
		}
		if _, err := m.start(id, e.Value); err != nil {
			cancel()
			return nil, err
		}
	}
	if len(entries) > 0 {
		m.log.Info().Int("chains", len(entries)).Msg("restored chains")
	}
	return m, nil
}

// Open starts the chain at id, or returns it if it already runs.
func (m *Manager) Open(ctx context.Context, id addressing.ChainID, kind string) (*Chain, error) {
	m.mu.RLock()
	c, ok := m.chains[id]
	m.mu.RUnlock()
	if ok {
		if c.kind != kind {
			return c, eris.Wrapf(ErrKindMismatch, "%s is %s, not %s", id.Short(), c.kind, kind)
		}
		return c, nil
	}
	if _, ok := m.factories[kind]; !ok {
		return nil, eris.Wrapf(ErrUnknownKind, "%q", kind)
	}
	if err := m.registry.Put(ctx, id.String(), kind); err != nil {
		return nil, err
	}
	return m.start(id, kind)
}

func (m *Manager) start(id addressing.ChainID, kind string) (*Chain, error) {
	f, ok := m.factories[kind]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownKind, "%q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if c, ok := m.chains[id]; ok {
		return c, nil
	}
	c := &Chain{
		id:     id,
		kind:   kind,
		app:    f(id),
		st:     store.Scoped(m.base, append([]byte("c/"), id[:]...)),
		mgr:    m,
		log:    m.log.With().Str("chain", id.Short()).Str("kind", kind).Logger(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if err := m.bus.Subscribe(m.ctx, id, c.deliver); err != nil {
		return nil, err
	}
	m.chains[id] = c
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.run(m.ctx)
	}()
	c.log.Debug().Msg("chain started")
	return c, nil
}

func (m *Manager) Chain(id addressing.ChainID) (*Chain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chains[id]
	return c, ok
}

// Chains lists running chains ordered by id.
func (m *Manager) Chains() []ChainInfo {
	m.mu.RLock()
	out := make([]ChainInfo, 0, len(m.chains))
	for id, c := range m.chains {
		out = append(out, ChainInfo{ID: id, Kind: c.kind})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (m *Manager) Submit(ctx context.Context, id addressing.ChainID, op protocol.Operation) (any, error) {
	c, ok := m.Chain(id)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownChain, "%s", id.Short())
	}
	return c.Submit(ctx, op)
}

func (m *Manager) Bus() *Bus { return m.bus }

func (m *Manager) commit(ctx context.Context, ov *store.Overlay) error {
	m.commitMu.RLock()
	defer m.commitMu.RUnlock()
	return ov.Commit(ctx)
}

// Quiesce runs fn while no chain is committing.
func (m *Manager) Quiesce(fn func() error) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return fn()
}

// SnapshotLoop calls save every interval between commits until ctx ends.
func (m *Manager) SnapshotLoop(ctx context.Context, every time.Duration, save func() error) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-t.C:
			if err := m.Quiesce(save); err != nil {
				m.log.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// Close stops every chain and waits for their goroutines.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}
