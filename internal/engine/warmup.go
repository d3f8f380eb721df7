package engine

// WarmupBudget returns the market-wide budget available for converting
// positive realized PnL into withdrawable reserved_pnl this step. If the
// budget is <= 0, no positive-PnL warmup may occur.
func WarmupBudget(s *EngineState) int64 {
	spendable := int64(s.Insurance.Balance) - s.Params.RiskReductionThreshold
	if spendable < 0 {
		spendable = 0
	}
	return s.WarmedNegTotal + spendable - s.WarmedPosTotal
}

// warmupSlope computes the per-slot conversion rate for an account ahead
// of a conversion step. Floors at 0, so a zero or negative slope simply
// stalls the warmup rather than letting a vanishingly small PnL convert
// in a single slot.
func warmupSlope(s *EngineState, a *Account) int64 {
	elapsedPeriods := maxI64(1, s.Params.WarmupPeriodSlots)
	availGross := maxI64(0, a.Pnl-int64(a.ReservedPnl))
	slope := availGross / elapsedPeriods
	if slope < 0 {
		slope = 0
	}
	return slope
}

// ApplyWarmup advances the account's warmup conversion by one touch. It
// is a no-op while WarmupPaused.
func ApplyWarmup(s *EngineState, a *Account, nowSlot int64) {
	if s.WarmupPaused {
		return
	}

	a.WarmupSlopePerStep = warmupSlope(s, a)

	availGross := maxI64(0, a.Pnl-int64(a.ReservedPnl))
	if availGross == 0 {
		a.WarmupStartedAtSlot = nowSlot
		return
	}

	budget := WarmupBudget(s)
	if budget <= 0 {
		return
	}

	dt := nowSlot - a.WarmupStartedAtSlot
	if dt <= 0 {
		return
	}

	cap := a.WarmupSlopePerStep * dt
	moveAmt := minI64(cap, availGross)
	moveAmt = minI64(moveAmt, budget)
	if moveAmt <= 0 {
		return
	}

	a.ReservedPnl += uint64(moveAmt)
	a.Pnl -= moveAmt
	s.WarmedPosTotal += moveAmt
	a.WarmupStartedAtSlot = nowSlot
}

// HaircutRatioE6 returns the fraction (e6 fixed point) of aggregate
// positive PnL across the market that has actually been warmed, used by
// the margin engine's effective-equity formula. Identity (1e6) when
// there is no positive PnL to haircut.
func HaircutRatioE6(warmedPosTotal, pnlPosTotal int64) int64 {
	if pnlPosTotal <= 0 {
		return PriceScale
	}
	ratio := mulDiv(warmedPosTotal, PriceScale, pnlPosTotal)
	if ratio > PriceScale {
		ratio = PriceScale
	}
	return ratio
}
