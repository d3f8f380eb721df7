package engine

// ApplyGlobalHaircut socializes loss_accum across every account with
// positive pnl, proportionally. haircutAmount is min(loss_accum,
// pnl_pos_total) — it must equal loss_accum alone, NOT
// stranded+loss_accum, so that legitimate profit in excess of the
// socialized portion is preserved.
func ApplyGlobalHaircut(s *EngineState) {
	var pnlPosTotal int64
	for i := range s.Accounts {
		if !s.Bitmap[i] {
			continue
		}
		if p := s.Accounts[i].Pnl; p > 0 {
			pnlPosTotal += p
		}
	}
	if pnlPosTotal == 0 || s.LossAccum == 0 {
		return
	}

	haircutAmount := int64(s.LossAccum)
	if haircutAmount > pnlPosTotal {
		haircutAmount = pnlPosTotal
	}

	for i := range s.Accounts {
		if !s.Bitmap[i] {
			continue
		}
		a := &s.Accounts[i]
		if a.Pnl <= 0 {
			continue
		}
		cut := mulDiv(a.Pnl, haircutAmount, pnlPosTotal)
		a.Pnl -= cut
	}
}

// CheckAutoRecovery runs the automatic stranded-funds recovery, a crank
// step that fires when risk_reduction_only is set, loss_accum is
// outstanding, and open interest has fully unwound.
func CheckAutoRecovery(s *EngineState) bool {
	if !s.RiskReductionOnly || s.LossAccum == 0 || s.TotalOpenInterest != 0 {
		return false
	}

	for i := range s.Accounts {
		if !s.Bitmap[i] {
			continue
		}
		if a := &s.Accounts[i]; a.Pnl > 0 {
			a.Pnl = 0
		}
	}

	s.LossAccum = 0

	var totalCapital uint64
	for i := range s.Accounts {
		if s.Bitmap[i] {
			totalCapital += s.Accounts[i].Capital
		}
	}
	if s.Vault > totalCapital+s.Insurance.Balance {
		surplus := s.Vault - totalCapital - s.Insurance.Balance
		s.Insurance.Balance += surplus
	}

	s.RiskReductionOnly = false
	s.WarmupPaused = false
	return true
}

// TopUpInsurance is the admin escape hatch: it transfers external tokens
// into insurance.balance and, if that brings the balance above
// risk_reduction_threshold + loss_accum, also clears
// loss_accum and exits risk-reduction immediately — without requiring
// total_open_interest == 0, unlike the automatic path.
func TopUpInsurance(s *EngineState, amount uint64) {
	s.Insurance.Balance += amount
	s.Vault += amount

	threshold := uint64(s.Params.RiskReductionThreshold) + s.LossAccum
	if s.Insurance.Balance > threshold {
		s.LossAccum = 0
		s.RiskReductionOnly = false
		s.WarmupPaused = false
	}
}
