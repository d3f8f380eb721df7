package riskengine

import (
	"context"
	"log"
	"time"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/observability"
)

// SlotClock converts wall-clock time to the monotonically increasing
// slot counter every engine operation is keyed on. It is the one place
// in this package allowed to read
// wall-clock time — everything below it in internal/engine takes
// now_slot as an explicit argument, so a crank step's result depends
// only on the slab and the slot number passed in, never on when the
// call happened to run.
type SlotClock struct {
	epoch        time.Time
	slotDuration time.Duration
}

// NewSlotClock starts a slot clock with its epoch at the current time.
func NewSlotClock(slotDuration time.Duration) SlotClock {
	return SlotClock{epoch: time.Now(), slotDuration: slotDuration}
}

func (c SlotClock) Now() int64 {
	return int64(time.Since(c.epoch) / c.slotDuration)
}

// PriceSource supplies the oracle price a crank step should use for a
// given market. Production wiring reads this from the oracle adapter's
// last successfully pushed price; tests substitute a fixed source.
type PriceSource interface {
	PriceE6(marketID string) (int64, error)
}

// FixedPriceSource is a PriceSource that always returns the same price,
// useful for tests and for single-market deployments fed by an external
// poller that calls PushOracle directly instead.
type FixedPriceSource int64

func (p FixedPriceSource) PriceE6(string) (int64, error) { return int64(p), nil }

// RegistryPriceSource reads the last oracle price successfully pushed
// into a market and reuses it for the crank's own PriceE6 input, so a
// deployment that only has a PushOracle-calling poller doesn't need a
// second, separate price feed wired into the crank runner.
type RegistryPriceSource struct {
	registry *Registry
}

func NewRegistryPriceSource(registry *Registry) RegistryPriceSource {
	return RegistryPriceSource{registry: registry}
}

func (p RegistryPriceSource) PriceE6(marketID string) (int64, error) {
	s, err := p.registry.Snapshot(marketID)
	if err != nil {
		return 0, err
	}
	return s.LastEffectivePriceE6, nil
}

// CrankRunner drives RunCrankStep for every registered market on a
// fixed tick, playing the role of the off-chain keeper bot a deployment
// of this engine runs continuously. One tick advances every market by
// exactly one of its 16 round-robin steps — the runner never batches
// multiple steps into a single tick, and it never skips a step.
type CrankRunner struct {
	registry *Registry
	prices   PriceSource
	clock    SlotClock
	metrics  *observability.Metrics
	interval time.Duration
}

func NewCrankRunner(registry *Registry, prices PriceSource, clock SlotClock, metrics *observability.Metrics, interval time.Duration) *CrankRunner {
	return &CrankRunner{registry: registry, prices: prices, clock: clock, metrics: metrics, interval: interval}
}

// Run ticks until ctx is cancelled, advancing every registered market
// by one crank step per tick.
func (r *CrankRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, marketID := range r.registry.MarketIDs() {
				r.step(ctx, marketID)
			}
		}
	}
}

func (r *CrankRunner) step(ctx context.Context, marketID string) {
	start := time.Now()

	priceE6, err := r.prices.PriceE6(marketID)
	if err != nil {
		log.Printf("WARN: riskengine crank: no price for market %s: %v", marketID, err)
		return
	}

	nowSlot := r.clock.Now()
	var stepLabel string

	var liquidated int
	err = r.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		stepLabel = crankStepName(s.CrankStep)
		engine.RunCrankStep(s, engine.CrankContext{
			PriceE6:       priceE6,
			LPNetPosition: lpNetPosition(s),
			NowSlot:       nowSlot,
		})

		// Drain whatever this step's sweep flagged as liquidatable and
		// execute right away — the crank has no liquidator signer to
		// pay, so ExecuteCrankLiquidation routes the fee into
		// insurance.fee_revenue instead.
		for _, idx := range s.PendingLiquidations() {
			if idx < 0 || idx >= len(s.Accounts) || !s.Bitmap[idx] {
				continue
			}
			if _, e := engine.ExecuteCrankLiquidation(s, &s.Accounts[idx], priceE6, s.CrankHaircutSnapshotE6); e == nil {
				liquidated++
			}
		}

		r.recordMetrics(marketID, s)
		return nil
	})
	if err != nil {
		log.Printf("ERROR: riskengine crank step failed for market %s: %v", marketID, err)
		return
	}

	if r.metrics != nil {
		r.metrics.CrankStepDuration.WithLabelValues(marketID, stepLabel).Observe(time.Since(start).Seconds())
		if liquidated > 0 {
			r.metrics.LiquidationsTotal.WithLabelValues(marketID).Add(float64(liquidated))
		}
	}
}

// lpNetPosition reads the LP account's current position size, the skew
// signal AccrueFunding needs. A market has exactly one LP account, so
// the first occupied LP slot found is it.
func lpNetPosition(s *engine.EngineState) int64 {
	for i := range s.Accounts {
		if s.Bitmap[i] && s.Accounts[i].IsLP() {
			return s.Accounts[i].PositionSize
		}
	}
	return 0
}

func (r *CrankRunner) recordMetrics(marketID string, s *engine.EngineState) {
	if r.metrics == nil {
		return
	}
	r.metrics.WarmupBudgetLamports.WithLabelValues(marketID).Set(float64(engine.WarmupBudget(s)))
	r.metrics.LossAccumLamports.WithLabelValues(marketID).Set(float64(s.LossAccum))
	r.metrics.HaircutRatioE6.WithLabelValues(marketID).Set(float64(s.CrankHaircutSnapshotE6))
	r.metrics.CrankStalenessSlots.WithLabelValues(marketID).Set(float64(s.CurrentSlot - s.LastFullSweepCompletedSlot))

	riskReduction := 0.0
	if s.RiskReductionOnly {
		riskReduction = 1.0
	}
	r.metrics.RiskReductionMode.WithLabelValues(marketID).Set(riskReduction)
}

var crankStepNames = [16]string{
	"haircut_snapshot", "accrue_funding",
	"sweep_0", "sweep_1", "sweep_2", "sweep_3", "sweep_4", "sweep_5",
	"sweep_6", "sweep_7", "sweep_8", "sweep_9", "sweep_10", "sweep_11",
	"gc_sweep", "recovery_check",
}

func crankStepName(step int) string {
	if step < 0 || step >= len(crankStepNames) {
		return "unknown"
	}
	return crankStepNames[step]
}
