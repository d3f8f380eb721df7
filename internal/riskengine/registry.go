package riskengine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/slab"
)

// Registry holds the live EngineState for every market the crank
// scheduler and the admin/query surface operate against — one slab per
// market. Each market has its own mutex so a slow operation on one
// market never blocks another.
type Registry struct {
	store *SlabStore

	mu      sync.RWMutex
	markets map[string]*marketSlot
}

type marketSlot struct {
	mu    sync.Mutex
	state *engine.EngineState
}

func NewRegistry(store *SlabStore) *Registry {
	return &Registry{store: store, markets: make(map[string]*marketSlot)}
}

// LoadAll repopulates the registry from persisted slabs. Call once at
// process start, analogous to the deterministic core's snapshot
// restore — here each market's slab IS the snapshot, so there is no
// separate replay step.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	states, err := r.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, st := range states {
		r.markets[id] = &marketSlot{state: st}
	}
	return len(states), nil
}

// CreateMarket initializes a brand-new market and persists its first
// slab image.
func (r *Registry) CreateMarket(
	ctx context.Context,
	marketID string,
	admin uuid.UUID,
	cfg engine.MarketConfig,
	params engine.RiskParams,
	maxAccounts int,
	feed engine.Feed,
) error {
	r.mu.Lock()
	if _, exists := r.markets[marketID]; exists {
		r.mu.Unlock()
		return ErrMarketExists
	}
	r.mu.Unlock()

	st, err := engine.NewMarket(admin, cfg, params, maxAccounts, feed)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.markets[marketID] = &marketSlot{state: st}
	r.mu.Unlock()

	return r.store.Save(ctx, marketID, st)
}

// MarketIDs returns the IDs of every market currently registered.
func (r *Registry) MarketIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) slot(marketID string) (*marketSlot, error) {
	r.mu.RLock()
	m, ok := r.markets[marketID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrMarketNotFound
	}
	return m, nil
}

// WithMarket runs fn against a market's live EngineState under that
// market's lock, then persists the resulting slab if fn succeeds. Every
// mutating instruction — deposit, withdraw, trade, crank step,
// liquidate, admin update — goes through this one choke point so the
// in-memory state and the durable slab can never diverge. fn returning
// an error skips the persist; the in-memory state still carries
// whatever partial mutation fn made before erroring, matching the
// engine package's own convention of mutating in place before
// validating (see e.g. trade.go's ExecuteTrade).
func (r *Registry) WithMarket(ctx context.Context, marketID string, fn func(*engine.EngineState) error) error {
	m, err := r.slot(marketID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fn(m.state); err != nil {
		return err
	}
	return r.store.Save(ctx, marketID, m.state)
}

// Snapshot returns a deep copy of a market's current state, produced by
// round-tripping it through the slab codec — the same bit-exact
// representation used for persistence — so the copy can never alias
// the live state a concurrent WithMarket call is mutating.
func (r *Registry) Snapshot(marketID string) (*engine.EngineState, error) {
	m, err := r.slot(marketID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, err := slab.Marshal(m.state)
	if err != nil {
		return nil, err
	}
	return slab.Unmarshal(buf)
}
