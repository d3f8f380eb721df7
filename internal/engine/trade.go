package engine

import "github.com/th3noryx/riskengine/internal/math"

// Matcher is the external program-call contract invoked during a
// matcher-routed trade. The engine trusts nothing it returns beyond the
// checks in validateExecution.
type Matcher interface {
	Match(lp *Account, requestedSize int64, oraclePriceE6 int64) (execSize int64, execPriceE6 int64, err error)
}

// DirectMatcher fills directly at the oracle price with no external
// call, for markets or test paths that don't route through an external
// matcher program.
type DirectMatcher struct{}

func (DirectMatcher) Match(_ *Account, requestedSize int64, oraclePriceE6 int64) (int64, int64, error) {
	return requestedSize, oraclePriceE6, nil
}

// TradeExecutor runs the trade-execution procedure end to end: freshness
// gate, account touch, matcher invocation, fill, fee, margin recheck,
// open-interest update.
type TradeExecutor struct {
	Matcher Matcher
}

// ExecuteTrade applies the full 8-step trade procedure against user and lp.
// oraclePriceE6 must already have passed oracle freshness/confidence
// checks before this is called.
func (te *TradeExecutor) ExecuteTrade(s *EngineState, user, lp *Account, requestedSize int64, oraclePriceE6 int64, haircutE6 int64) error {
	// Step 1: risk-reduction gate.
	increasing := isRiskIncreasing(user.PositionSize, requestedSize)
	if s.RiskReductionOnly && increasing {
		return ErrRiskReductionOnly
	}

	// Step 2: crank freshness (I-6).
	if err := CheckCrankFresh(s); err != nil {
		return err
	}

	// Step 3: touch both accounts.
	SettleFunding(s, user)
	SettleMarkToOracle(user, oraclePriceE6)
	ApplyWarmup(s, user, s.CurrentSlot)
	SettleFunding(s, lp)
	SettleMarkToOracle(lp, oraclePriceE6)
	ApplyWarmup(s, lp, s.CurrentSlot)

	// Step 4: invoke matcher, validate its response.
	execSize, execPriceE6, err := te.Matcher.Match(lp, requestedSize, oraclePriceE6)
	if err != nil {
		return ErrMatcherRejected
	}
	if err := te.validateExecution(s, requestedSize, execSize, execPriceE6, oraclePriceE6); err != nil {
		return err
	}

	prevUserAbs := absI64(user.PositionSize)

	// Step 5: apply fill, recompute size-weighted average entry price on
	// both sides (teacher's math.ComputeAvgEntryPrice, generalized to e6
	// price scale and lamport position units).
	user.EntryPriceE6 = math.ComputeAvgEntryPrice(user.PositionSize, user.EntryPriceE6, execSize, execPriceE6)
	user.PositionSize += execSize
	lp.EntryPriceE6 = math.ComputeAvgEntryPrice(lp.PositionSize, lp.EntryPriceE6, -execSize, execPriceE6)
	lp.PositionSize -= execSize

	// Step 6: fee charged on oracle price, not exec price.
	fee := mulDiv(absI64(execSize), oraclePriceE6, PriceScale)
	fee = MulBps(fee, s.Params.TradingFeeBps)
	if fee > int64(user.Capital) {
		fee = int64(user.Capital)
	}
	user.Capital -= uint64(fee)
	s.Insurance.FeeRevenue += uint64(fee)

	// Step 7: re-check margin on both sides.
	userIncreasing := isRiskIncreasing(user.PositionSize-execSize, execSize)
	if err := CheckTradeMargin(user, oraclePriceE6, haircutE6, &s.Params, userIncreasing); err != nil {
		return err
	}
	if err := CheckTradeMargin(lp, oraclePriceE6, haircutE6, &s.Params, true); err != nil {
		return err
	}

	// Step 8: open interest update.
	newUserAbs := absI64(user.PositionSize)
	if newUserAbs > prevUserAbs {
		s.TotalOpenInterest += uint64(newUserAbs - prevUserAbs)
	} else {
		s.TotalOpenInterest = SatSubU64(s.TotalOpenInterest, uint64(prevUserAbs-newUserAbs))
	}

	s.LifetimeTrades++
	return nil
}

// validateExecution enforces the matcher contract plus the engine-side
// exec-price deviation bound — enforced here, not delegated to the
// matcher, so a misbehaving matcher can't bypass it.
func (te *TradeExecutor) validateExecution(s *EngineState, requestedSize, execSize, execPriceE6, oraclePriceE6 int64) error {
	if sign(execSize) != sign(requestedSize) {
		return ErrInvalidExecutionSize
	}
	if absI64(execSize) > absI64(requestedSize) {
		return ErrInvalidExecutionSize
	}
	if execPriceE6 <= 0 || execPriceE6 > MaxOraclePrice {
		return ErrInvalidExecutionPrice
	}
	if s.Params.MaxExecPriceDeviationBps > 0 {
		diff := absI64(execPriceE6 - oraclePriceE6)
		bound := MulBps(oraclePriceE6, s.Params.MaxExecPriceDeviationBps)
		if diff > bound {
			return ErrInvalidExecutionPrice
		}
	}
	return nil
}

func isRiskIncreasing(currentSize, delta int64) bool {
	if delta == 0 {
		return false
	}
	if currentSize == 0 {
		return true
	}
	return sign(currentSize) == sign(delta)
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// CheckCrankFresh enforces the freshness gate: any risk-increasing
// operation requires both the crank and the most recent full sweep to be
// recent.
func CheckCrankFresh(s *EngineState) error {
	if s.CurrentSlot-s.LastCrankSlot > s.Params.MaxCrankStalenessSlots {
		return ErrCrankStale
	}
	if s.CurrentSlot-s.LastFullSweepStartSlot > s.Params.MaxCrankStalenessSlots {
		return ErrSweepStale
	}
	return nil
}
