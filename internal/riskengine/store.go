package riskengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/slab"
)

// SlabStore persists one market's EngineState as its bit-exact slab
// image (internal/slab.Marshal output) in risk_engine.market_slabs.
// Unlike event_log, which is append-only, a market slab is a single row
// overwritten in place — the slab itself is the durable state, not a
// log of operations against it.
type SlabStore struct {
	db *sql.DB
}

func NewSlabStore(db *sql.DB) *SlabStore {
	return &SlabStore{db: db}
}

// Save overwrites the persisted slab for marketID with the current
// in-memory state.
func (s *SlabStore) Save(ctx context.Context, marketID string, state *engine.EngineState) error {
	buf, err := slab.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal slab for %s: %w", marketID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_engine.market_slabs (market_id, slab, current_slot, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (market_id) DO UPDATE
			SET slab = $2, current_slot = $3, updated_at = now()
	`, marketID, buf, state.CurrentSlot)
	if err != nil {
		return fmt.Errorf("save slab for %s: %w", marketID, err)
	}
	return nil
}

// Load reads and decodes the persisted slab for marketID.
func (s *SlabStore) Load(ctx context.Context, marketID string) (*engine.EngineState, error) {
	var buf []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT slab FROM risk_engine.market_slabs WHERE market_id = $1
	`, marketID).Scan(&buf)
	if err == sql.ErrNoRows {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load slab for %s: %w", marketID, err)
	}
	return slab.Unmarshal(buf)
}

// LoadAll reads and decodes every persisted market slab, for use on
// process start to repopulate the in-memory registry.
func (s *SlabStore) LoadAll(ctx context.Context) (map[string]*engine.EngineState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id, slab FROM risk_engine.market_slabs`)
	if err != nil {
		return nil, fmt.Errorf("load all slabs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*engine.EngineState)
	for rows.Next() {
		var marketID string
		var buf []byte
		if err := rows.Scan(&marketID, &buf); err != nil {
			return nil, err
		}
		st, err := slab.Unmarshal(buf)
		if err != nil {
			return nil, fmt.Errorf("unmarshal slab for %s: %w", marketID, err)
		}
		out[marketID] = st
	}
	return out, rows.Err()
}
