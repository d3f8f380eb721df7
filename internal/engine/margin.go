package engine

// EffectiveEquity computes an account's current equity at priceE6.
// haircutE6 is the market-wide warmed-PnL haircut ratio, snapshotted once
// per crank sweep and passed in explicitly rather than recomputed
// mid-sweep.
func EffectiveEquity(a *Account, priceE6 int64, haircutE6 int64) int64 {
	mtmPnl := mulDiv(a.PositionSize, priceE6-a.EntryPriceE6, PriceScale)

	effPnl := a.Pnl
	if a.Pnl > 0 {
		effPnl = MulE2Bps(a.Pnl, haircutE6)
	}

	equity := int64(a.Capital) + int64(a.ReservedPnl) + effPnl + a.FeeCredits + mtmPnl
	return equity
}

// MaintenanceRequirement and InitialRequirement compute the margin floor
// for an account's current position at priceE6.
func MaintenanceRequirement(a *Account, priceE6 int64, params *RiskParams) int64 {
	return MulBps(Notional(a.PositionSize, priceE6), params.MaintenanceMarginBps)
}

func InitialRequirement(a *Account, priceE6 int64, params *RiskParams) int64 {
	return MulBps(Notional(a.PositionSize, priceE6), params.InitialMarginBps)
}

// CheckTradeMargin enforces the margin gating policy: a risk-increasing
// trade, a withdrawal, or a close-with-remaining-position requires
// equity >= initial_req; a risk-reducing trade only requires
// equity >= maintenance_req. It's easy to accidentally check MM instead
// of IM for a risk-increasing trade, so this function takes `increasing`
// explicitly rather than leaving each call site to work out which
// requirement applies.
func CheckTradeMargin(a *Account, priceE6 int64, haircutE6 int64, params *RiskParams, increasing bool) error {
	equity := EffectiveEquity(a, priceE6, haircutE6)
	if increasing {
		if equity < InitialRequirement(a, priceE6, params) {
			return ErrInsufficientMargin
		}
		return nil
	}
	if equity < MaintenanceRequirement(a, priceE6, params) {
		return ErrInsufficientMargin
	}
	return nil
}

// IsLiquidatable reports liquidation eligibility: equity < maintenance_req.
func IsLiquidatable(a *Account, priceE6 int64, haircutE6 int64, params *RiskParams) bool {
	if a.IsFlat() {
		return false
	}
	equity := EffectiveEquity(a, priceE6, haircutE6)
	return equity < MaintenanceRequirement(a, priceE6, params)
}
