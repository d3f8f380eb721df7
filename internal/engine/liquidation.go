package engine

// computeCloseAmount finds the minimum position-size reduction that
// restores the target's equity to at least maintenance_req + buffer, via
// bisection on the candidate close size rather than a closed-form formula.
//
// The candidate evaluator (survives, below) computes post-close equity
// using the capital actually remaining AFTER the liquidation fee on that
// candidate close is deducted — so the search itself accounts for the
// capital the close drains, rather than solving the naive pre-fee formula
// and cascading into a full close when the fee on a partial close turns
// out to eat into the recovery it was trying to buy.
func computeCloseAmount(s *EngineState, a *Account, priceE6, haircutE6 int64) int64 {
	absPos := absI64(a.PositionSize)
	if absPos == 0 {
		return 0
	}

	lo := s.Params.MinLiquidationAbs
	if lo > absPos {
		lo = absPos
	}
	if lo < 1 {
		lo = 1
	}
	hi := absPos

	survives := func(c int64) bool {
		notionalClosed := Notional(c, priceE6)
		fee := MulBps(notionalClosed, s.Params.LiquidationFeeBps)
		if fee > s.Params.LiquidationFeeCap {
			fee = s.Params.LiquidationFeeCap
		}
		simCapital := int64(a.Capital) - fee
		if simCapital < 0 {
			simCapital = 0
		}

		remaining := absPos - c
		simPos := remaining
		if a.PositionSize < 0 {
			simPos = -remaining
		}
		sim := *a
		sim.Capital = uint64(simCapital)
		sim.PositionSize = simPos

		equity := EffectiveEquity(&sim, priceE6, haircutE6)
		req := MaintenanceRequirement(&sim, priceE6, &s.Params) +
			MulBps(Notional(sim.PositionSize, priceE6), s.Params.LiquidationBufferBps)
		return equity >= req
	}

	if !survives(hi) {
		return hi // full close is still the best we can do
	}
	if survives(lo) {
		return lo
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if survives(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// LiquidationResult reports the outcome of one ExecuteLiquidation call.
type LiquidationResult struct {
	ClosedSize    int64
	LiquidationFee uint64
	BadDebt       uint64
	InsuranceDrained uint64
}

// ExecuteLiquidation reduces target's position directly at oracle price
// (no matcher), pays the liquidator a fee, and handles any resulting bad
// debt via insurance drain / loss_accum / risk_reduction_only. Returns
// ErrNotLiquidatable, changing nothing, if target is not liquidatable.
// Caller must have already touched (settled funding/mark on) target.
func ExecuteLiquidation(s *EngineState, target, liquidator *Account, priceE6, haircutE6 int64) (LiquidationResult, error) {
	return executeLiquidation(s, target, priceE6, haircutE6, func(fee uint64) {
		liquidator.Capital += fee
	})
}

// ExecuteCrankLiquidation is the keeper-crank's own liquidation path: the
// crank sweep enqueues eligible accounts, and the crank's caller drains
// that queue and calls this for each one. The crank has no liquidator signer to credit
// — it runs permissionlessly off a ticker, not off a submitted
// instruction — so the liquidation fee is credited to
// insurance.fee_revenue instead, the same place trading fees land rather
// than a specific account's capital.
func ExecuteCrankLiquidation(s *EngineState, target *Account, priceE6, haircutE6 int64) (LiquidationResult, error) {
	return executeLiquidation(s, target, priceE6, haircutE6, func(fee uint64) {
		s.Insurance.FeeRevenue += fee
	})
}

func executeLiquidation(s *EngineState, target *Account, priceE6, haircutE6 int64, creditFee func(fee uint64)) (LiquidationResult, error) {
	if !IsLiquidatable(target, priceE6, haircutE6, &s.Params) {
		return LiquidationResult{}, ErrNotLiquidatable
	}

	closeSize := computeCloseAmount(s, target, priceE6, haircutE6)
	closeSize = minI64(closeSize, absI64(target.PositionSize))

	sideSign := int64(1)
	if target.PositionSize < 0 {
		sideSign = -1
	}
	delta := sideSign * closeSize // amount by which position moves toward zero

	// Realize PnL for the closed portion at oracle price (already
	// mark-settled, so entry_price == priceE6 and this nets to zero unless
	// the caller skipped the touch step; kept for correctness regardless).
	realizedDelta := mulDiv(delta, priceE6-target.EntryPriceE6, PriceScale)
	target.Pnl += realizedDelta
	target.PositionSize -= delta

	notionalClosed := Notional(closeSize, priceE6)
	fee := MulBps(notionalClosed, s.Params.LiquidationFeeBps)
	if fee > s.Params.LiquidationFeeCap {
		fee = s.Params.LiquidationFeeCap
	}
	if fee > int64(target.Capital) {
		fee = int64(target.Capital)
	}
	target.Capital -= uint64(fee)
	creditFee(uint64(fee))

	result := LiquidationResult{ClosedSize: closeSize, LiquidationFee: uint64(fee)}

	// Post-liquidation safety check: bad debt.
	effPnl := target.Pnl
	if effPnl > 0 {
		effPnl = MulE2Bps(effPnl, haircutE6)
	}
	if int64(target.Capital)+effPnl < 0 {
		shortfall := uint64(-(int64(target.Capital) + effPnl))
		target.Capital = 0
		target.Pnl = 0

		drained := shortfall
		if drained > s.Insurance.Balance {
			drained = s.Insurance.Balance
		}
		s.Insurance.Balance -= drained
		result.InsuranceDrained = drained

		uncovered := shortfall - drained
		if uncovered > 0 {
			s.LossAccum += uncovered
			s.RiskReductionOnly = true
			s.WarmupPaused = true
			result.BadDebt = uncovered
		}
	}

	if delta != 0 {
		s.TotalOpenInterest = SatSubU64(s.TotalOpenInterest, uint64(absI64(delta)))
	}
	s.LifetimeLiquidations++

	return result, nil
}
