package engine

// AccrueFunding advances the market's cumulative funding index by the
// elapsed slots since the last accrual. The instantaneous rate is derived
// from the LP's net position (the skew signal) and clamped by
// MaxBpsPerSlot/MaxPremiumBps.
//
// The effective elapsed window is capped at MaxCrankStalenessSlots: a
// crank call that arrives long after the previous one cannot apply a
// single giant rate*dt step, which would let a skewed LP inventory just
// before a stale crank manufacture an outsized funding transfer. This
// reuses the freshness-gate constant rather than introducing a second
// time-series parameter.
func AccrueFunding(s *EngineState, lpNetPosition int64, priceE6 int64, nowSlot int64) {
	dt := nowSlot - s.LastFundingSlot
	if dt <= 0 {
		return
	}
	if dt > s.Params.MaxCrankStalenessSlots {
		dt = s.Params.MaxCrankStalenessSlots
	}

	rateBps := fundingRateBps(s, lpNetPosition)
	// delta_F = price * rate * dt / 10_000
	delta := mulDiv(priceE6, rateBps*dt, BpsDenom)

	s.FundingIndexQpbE6 += delta
	s.LastFundingSlot = nowSlot
}

// fundingRateBps derives the instantaneous funding rate from LP skew,
// clamped by the market's configured bounds.
func fundingRateBps(s *EngineState, lpNetPosition int64) int64 {
	f := s.Config.Funding
	if f.InvScaleNotionalE6 == 0 {
		return 0
	}
	rate := mulDiv(lpNetPosition, f.KBps, f.InvScaleNotionalE6)
	maxPerSlot := f.MaxBpsPerSlot
	if rate > maxPerSlot {
		rate = maxPerSlot
	}
	if rate < -maxPerSlot {
		rate = -maxPerSlot
	}
	if rate > f.MaxPremiumBps {
		rate = f.MaxPremiumBps
	}
	if rate < -f.MaxPremiumBps {
		rate = -f.MaxPremiumBps
	}
	return rate
}

// SettleFunding applies the account's funding obligation since its last
// touch into pnl, and advances its snapshot.
func SettleFunding(s *EngineState, a *Account) {
	delta := s.FundingIndexQpbE6 - a.FundingIndexSnapshot
	obligation := mulDiv(delta, a.PositionSize, PriceScale)
	a.Pnl += obligation
	a.FundingIndexSnapshot = s.FundingIndexQpbE6
}

// SettleMarkToOracle realizes mark-to-market PnL since the account's last
// touch into pnl and resets the entry price to the current mark. Position
// size is unchanged.
func SettleMarkToOracle(a *Account, priceNowE6 int64) {
	delta := mulDiv(a.PositionSize, priceNowE6-a.EntryPriceE6, PriceScale)
	a.Pnl += delta
	a.EntryPriceE6 = priceNowE6
}
