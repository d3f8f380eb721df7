package engine

import (
	"testing"

	"github.com/google/uuid"
)

func newTestState(t *testing.T, im, mm int64) *EngineState {
	t.Helper()
	params := RiskParams{
		WarmupPeriodSlots:      100,
		MaintenanceMarginBps:   mm,
		InitialMarginBps:       im,
		TradingFeeBps:          10,
		MaxAccounts:            8,
		RiskReductionThreshold: 0,
		MaintenanceFeePerSlot:  0,
		MaxCrankStalenessSlots: 1000,
		LiquidationFeeBps:      50,
		LiquidationFeeCap:      1_000_000_000,
		LiquidationBufferBps:   50,
		MinLiquidationAbs:      1,
	}
	if err := ValidateRiskParams(&params); err != nil {
		t.Fatalf("invalid risk params: %v", err)
	}
	s := &EngineState{
		Params:   params,
		Accounts: make([]Account, 8),
		Bitmap:   make([]bool, 8),
	}
	s.LastFullSweepStartSlot = 0
	s.LastFullSweepCompletedSlot = 0
	return s
}

func freshAccount(idx int, s *EngineState) *Account {
	s.Bitmap[idx] = true
	s.Accounts[idx] = Account{Owner: uuid.New(), AccountID: uuid.New()}
	return &s.Accounts[idx]
}

// Opens a 2x long at unit price, cranks through a price rise, and
// confirms the gain reaches pnl.
func TestScenarioS1HappyLongCycle(t *testing.T) {
	s := newTestState(t, 1000, 500)
	user := freshAccount(0, s)
	lp := freshAccount(1, s)
	lp.MatcherProgram = uuid.New()
	lp.Capital = 1_000_000_000_000

	const capital = 10_000_000_000
	if err := Deposit(s, user, capital); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	te := &TradeExecutor{Matcher: DirectMatcher{}}
	const oracle = int64(1_000_000) // price 1.0
	const size = 20_000_000_000     // notional 20e9, 2x the deposited capital

	if err := te.ExecuteTrade(s, user, lp, size, oracle, PriceScale); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if user.PositionSize != size {
		t.Fatalf("expected position size %d, got %d", size, user.PositionSize)
	}
	if user.Capital >= capital {
		t.Fatalf("expected fee to have been deducted from capital, got %d", user.Capital)
	}

	// Price rises 50%.
	newPrice := oracle + oracle/2
	for slot := int64(1); slot <= 100; slot++ {
		RunCrankStep(s, CrankContext{PriceE6: newPrice, NowSlot: slot})
	}

	if user.Pnl <= 0 {
		t.Fatalf("expected positive realized pnl after price rise, got %d", user.Pnl)
	}
}

// A price gap that wipes out an account's margin with insurance too
// thin to cover the shortfall must push the market into risk-reduction
// with warmup paused, and once the keeper's follow-up liquidation
// clears open interest, the next full sweep must auto-recover.
func TestScenarioS2GapRiskSocializationAndRecovery(t *testing.T) {
	s := newTestState(t, 1000, 500) // IM 10%, MM 5%
	s.Insurance.Balance = 10
	s.TotalOpenInterest = 1000

	user := freshAccount(0, s)
	user.Capital = 100
	user.PositionSize = 1000
	user.EntryPriceE6 = 1_000_000 // price 1.0

	const gapPrice = 500_000 // 50% down gap, no intervening crank

	// First full sweep after the gap: the partitioned sweep finds the
	// account underwater and flags it — it does not execute the
	// liquidation itself (it has no liquidator signer to credit).
	for slot := int64(1); slot <= 16; slot++ {
		RunCrankStep(s, CrankContext{PriceE6: gapPrice, NowSlot: slot})
	}
	if s.RiskReductionOnly {
		t.Fatalf("flagging a liquidatable account must not itself enter risk-reduction")
	}

	// The keeper (internal/riskengine's CrankRunner in production) drains
	// what the sweep flagged and executes.
	pending := s.PendingLiquidations()
	if len(pending) != 1 || pending[0] != 0 {
		t.Fatalf("expected account 0 to be flagged pending liquidation, got %v", pending)
	}
	if _, err := ExecuteCrankLiquidation(s, &s.Accounts[0], gapPrice, s.CrankHaircutSnapshotE6); err != nil {
		t.Fatalf("crank liquidation: %v", err)
	}

	if !s.RiskReductionOnly {
		t.Fatalf("expected risk_reduction_only after uncovered bad debt")
	}
	if !s.WarmupPaused {
		t.Fatalf("expected warmup_paused alongside risk_reduction_only")
	}
	if s.Insurance.Balance != 0 {
		t.Fatalf("expected insurance to drain to ~0, got %d", s.Insurance.Balance)
	}
	if s.LossAccum == 0 {
		t.Fatalf("expected loss_accum to carry the uncovered shortfall")
	}
	if user.PositionSize != 0 {
		t.Fatalf("expected the cascade to close the position, got %d", user.PositionSize)
	}
	if s.TotalOpenInterest != 0 {
		t.Fatalf("expected open interest to clear, got %d", s.TotalOpenInterest)
	}

	// Next full sweep: open interest is 0, so automatic recovery fires.
	for slot := int64(17); slot <= 32; slot++ {
		RunCrankStep(s, CrankContext{PriceE6: gapPrice, NowSlot: slot})
	}

	if s.RiskReductionOnly {
		t.Fatalf("expected risk_reduction_only to clear after auto-recovery")
	}
	if s.WarmupPaused {
		t.Fatalf("expected warmup_paused to clear after auto-recovery")
	}
	if s.LossAccum != 0 {
		t.Fatalf("expected loss_accum to clear after auto-recovery, got %d", s.LossAccum)
	}
}

// A matcher returning an exec_price_e6 far from the oracle price must
// not let the trading fee or margin check be computed off that bogus
// price, and once a deviation bound is configured the fill must be
// rejected outright.
type badPriceMatcher struct{}

func (badPriceMatcher) Match(_ *Account, requestedSize, _ int64) (int64, int64, error) {
	return requestedSize, 1, nil // exec_price_e6 = 1, nowhere near the oracle
}

func TestScenarioS3MatcherMisbehavesExecPrice(t *testing.T) {
	s := newTestState(t, 1000, 500)
	const oracle = int64(1_000_000)

	user := freshAccount(0, s)
	user.Capital = 1_000_000_000
	lp := freshAccount(1, s)
	lp.MatcherProgram = uuid.New()
	lp.Capital = 1_000_000_000_000

	te := &TradeExecutor{Matcher: badPriceMatcher{}}
	const size = 1_000_000

	if err := te.ExecuteTrade(s, user, lp, size, oracle, PriceScale); err != nil {
		t.Fatalf("expected the fill to proceed with no deviation bound configured: %v", err)
	}
	if user.PositionSize != size {
		t.Fatalf("expected full fill at the (bogus) exec size, got %d", user.PositionSize)
	}
	wantFee := MulBps(Notional(size, oracle), s.Params.TradingFeeBps)
	gotFee := int64(1_000_000_000) - int64(user.Capital)
	if gotFee != wantFee {
		t.Fatalf("fee must be computed on oracle price (%d), not exec price: got %d, want %d", oracle, gotFee, wantFee)
	}

	// With a deviation bound configured, the same matcher response must
	// be rejected instead of silently accepted.
	s.Params.MaxExecPriceDeviationBps = 100 // 1%
	user2 := freshAccount(2, s)
	user2.Capital = 1_000_000_000
	lp2 := freshAccount(3, s)
	lp2.MatcherProgram = uuid.New()
	lp2.Capital = 1_000_000_000_000

	if err := te.ExecuteTrade(s, user2, lp2, size, oracle, PriceScale); err != ErrInvalidExecutionPrice {
		t.Fatalf("expected ErrInvalidExecutionPrice once a deviation bound is set, got %v", err)
	}
}

// An account with capital=0, position_size != 0, pnl > 0 must not
// become an un-liquidatable zombie — the crank sweep's fee drain
// eventually pushes it underwater, the keeper's liquidation flattens
// it, and warmup finishes converting its remaining pnl so GC can
// reclaim the slot.
func TestScenarioS5ZeroCapitalPnlZombieGetsReclaimed(t *testing.T) {
	s := newTestState(t, 1000, 500)
	s.Insurance.Balance = 1_000_000_000 // ample warmup budget
	s.Params.WarmupPeriodSlots = 1      // converts availGross in a single touch
	s.Params.MaintenanceFeePerSlot = 1_000_000

	a := freshAccount(0, s)
	a.Capital = 0
	a.PositionSize = 500
	a.EntryPriceE6 = 1_000_000
	a.Pnl = 100

	const price = 1_000_000 // flat price isolates the fee-drain/warmup path

	cleared := false
	for sweep := 0; sweep < 16 && !cleared; sweep++ {
		for step := 0; step < 16; step++ {
			slot := int64(sweep*16 + step + 1)
			RunCrankStep(s, CrankContext{PriceE6: price, NowSlot: slot})
		}
		for _, idx := range s.PendingLiquidations() {
			if _, err := ExecuteCrankLiquidation(s, &s.Accounts[idx], price, s.CrankHaircutSnapshotE6); err != nil {
				t.Fatalf("crank liquidation: %v", err)
			}
		}
		if !s.Bitmap[0] {
			cleared = true
		}
	}

	if !cleared {
		t.Fatalf("expected the zero-capital zombie to eventually be liquidated and GC'd")
	}
}

// An account with equity sufficient for maintenance but not initial
// margin must be rejected when opening new risk, not merely when it
// has none.
func TestScenarioS4MarginCheckUsesIM(t *testing.T) {
	s := newTestState(t, 1000, 500) // IM 10%, MM 5%
	user := &Account{Capital: 7}    // equity sits between the MM and IM floors below

	if err := CheckTradeMargin(user, PriceScale, PriceScale, &s.Params, true); err != nil {
		t.Fatalf("unexpected error on flat account: %v", err)
	}

	user.PositionSize = 100 // notional 100 at price 1.0 -> MM req 5, IM req 10
	user.EntryPriceE6 = PriceScale

	if err := CheckTradeMargin(user, PriceScale, PriceScale, &s.Params, true); err == nil {
		t.Fatalf("expected InsufficientMargin: equity 7 fails the IM requirement of 10")
	}
	if err := CheckTradeMargin(user, PriceScale, PriceScale, &s.Params, false); err != nil {
		t.Fatalf("risk-reducing trade should only require MM (5), got %v", err)
	}
}

// Oracle push circuit breaker: a price update that moves too far from
// the last effective price in one push must be rejected.
func TestScenarioS6OraclePushCircuitBreaker(t *testing.T) {
	s := &EngineState{Config: MarketConfig{OraclePriceCapE2Bps: 10_000}} // 1%
	s.LastEffectivePriceE6 = 100_000_000

	if err := PushOraclePrice(s, 101_000_000, 1); err != nil {
		t.Fatalf("expected 1%% push to be accepted: %v", err)
	}
	if err := PushOraclePrice(s, 102_000_000, 2); err != nil {
		t.Fatalf("expected second 1%% push from new baseline to be accepted: %v", err)
	}

	s.LastEffectivePriceE6 = 100_000_000
	if err := PushOraclePrice(s, 105_000_000, 3); err != ErrOraclePriceCapExceeded {
		t.Fatalf("expected a >1%% push to be rejected, got %v", err)
	}
}

// P-PositionSum: trading between user and LP must keep size(user) +
// size(lp) == 0 at every step.
func TestPropertyPositionSum(t *testing.T) {
	s := newTestState(t, 1000, 500)
	user := freshAccount(0, s)
	lp := freshAccount(1, s)
	lp.MatcherProgram = uuid.New()
	lp.Capital = 1_000_000_000_000

	if err := Deposit(s, user, 1_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	te := &TradeExecutor{Matcher: DirectMatcher{}}
	if err := te.ExecuteTrade(s, user, lp, 100_000, PriceScale, PriceScale); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if user.PositionSize+lp.PositionSize != 0 {
		t.Fatalf("P-PositionSum violated: user=%d lp=%d", user.PositionSize, lp.PositionSize)
	}
}

// P-WarmupBound: reserved_pnl must never exceed max(0, total pnl), where
// total pnl is the residual Pnl plus what ApplyWarmup has moved into
// ReservedPnl.
func TestPropertyWarmupBound(t *testing.T) {
	s := newTestState(t, 1000, 500)
	s.Insurance.Balance = 1_000_000_000
	a := freshAccount(0, s)
	a.Pnl = 1_000_000
	a.WarmupStartedAtSlot = 0

	for slot := int64(1); slot <= 200; slot++ {
		ApplyWarmup(s, a, slot)
		if int64(a.ReservedPnl) > maxI64(0, a.Pnl+int64(a.ReservedPnl)) {
			t.Fatalf("P-WarmupBound violated at slot %d: reserved=%d pnl=%d", slot, a.ReservedPnl, a.Pnl)
		}
	}
}

// P-LiquidationIdempotent: liquidating a healthy account is a no-op error.
func TestPropertyLiquidationIdempotent(t *testing.T) {
	s := newTestState(t, 1000, 500)
	target := freshAccount(0, s)
	liquidator := freshAccount(1, s)
	target.Capital = 1_000_000_000

	_, err := ExecuteLiquidation(s, target, liquidator, PriceScale, PriceScale)
	if err != ErrNotLiquidatable {
		t.Fatalf("expected ErrNotLiquidatable on a healthy flat account, got %v", err)
	}
}

// P-RecoveryConservesLegit: the global haircut confiscates, in total,
// exactly min(loss_accum, aggregate positive pnl) and no more.
func TestPropertyRecoveryHaircutFormula(t *testing.T) {
	s := newTestState(t, 1000, 500)
	s.LossAccum = 300
	a := freshAccount(0, s)
	a.Pnl = 1000
	b := freshAccount(1, s)
	b.Pnl = 1000

	ApplyGlobalHaircut(s)

	totalCutExpected := int64(300) // min(loss_accum, pnl_pos_total=2000)
	totalCutActual := (1000 - a.Pnl) + (1000 - b.Pnl)
	if totalCutActual != totalCutExpected {
		t.Fatalf("expected total haircut %d, got %d", totalCutExpected, totalCutActual)
	}
}
