package engine

// Deposit credits capital and the vault. Zero-amount is an error.
func Deposit(s *EngineState, a *Account, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	a.Capital += amount
	s.Vault += amount
	return nil
}

// Withdraw enforces crank freshness, recent full sweep, available-balance,
// and (if a position remains open) post-withdrawal IM.
func Withdraw(s *EngineState, a *Account, amount uint64, priceE6 int64, haircutE6 int64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if err := CheckCrankFresh(s); err != nil {
		return err
	}
	if s.CurrentSlot-s.LastFullSweepCompletedSlot > s.Params.MaxCrankStalenessSlots {
		return ErrSweepStale
	}

	pendingFees := int64(0)
	if a.FeeCredits < 0 {
		pendingFees = -a.FeeCredits
	}
	available := int64(a.Capital) + int64(a.ReservedPnl) - pendingFees
	if int64(amount) > available {
		return ErrInsufficientMargin
	}

	if !a.IsFlat() {
		postCapital := a.Capital
		postReserved := a.ReservedPnl
		drainFromCapital := amount
		if drainFromCapital > postCapital {
			drainFromCapital = postCapital
		}
		simulated := *a
		simulated.Capital = postCapital - drainFromCapital
		simulated.ReservedPnl = postReserved - (amount - drainFromCapital)
		if EffectiveEquity(&simulated, priceE6, haircutE6) < InitialRequirement(&simulated, priceE6, &s.Params) {
			return ErrInsufficientMargin
		}
	}

	// Decrement capital then reserved_pnl, in that order.
	fromCapital := amount
	if fromCapital > a.Capital {
		fromCapital = a.Capital
	}
	a.Capital -= fromCapital
	remainder := amount - fromCapital
	a.ReservedPnl -= remainder

	s.Vault -= amount
	return nil
}

// CloseAccount enforces the close preconditions, plus a stricter freshness
// check than a minimal implementation would need: closing also requires
// crank freshness and a recent full sweep, because a stale crank means
// pnl/fee_credits may not reflect reality and a close is irreversible.
func CloseAccount(s *EngineState, a *Account, idx int) (payout uint64, err error) {
	if !a.IsFlat() {
		return 0, ErrPositionNotFlat
	}
	if a.Pnl > 0 {
		return 0, ErrPnlNotSettled
	}
	if a.FeeCredits < 0 {
		return 0, ErrFeeDebtOutstanding
	}
	if err := CheckCrankFresh(s); err != nil {
		return 0, err
	}
	if s.CurrentSlot-s.LastFullSweepCompletedSlot > s.Params.MaxCrankStalenessSlots {
		return 0, ErrSweepStale
	}

	payout = a.Capital + a.ReservedPnl
	s.Vault -= payout
	s.Bitmap[idx] = false
	s.Accounts[idx] = Account{}
	return payout, nil
}

// GCSweepAccount reclaims a zombie account slot during the crank's GC step:
// capital = 0, position_size = 0, pnl <= 0.
func GCSweepAccount(s *EngineState, idx int) bool {
	a := &s.Accounts[idx]
	if a.Capital == 0 && a.IsFlat() && a.Pnl <= 0 {
		s.Bitmap[idx] = false
		s.Accounts[idx] = Account{}
		return true
	}
	return false
}
