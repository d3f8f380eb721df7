package engine

// CrankContext supplies the external inputs a crank step may need:
// current oracle price and the LP's net position (the funding skew
// signal). Both are re-read fresh on every call — the crank never caches
// a stale copy across steps.
type CrankContext struct {
	PriceE6       int64
	LPNetPosition int64
	NowSlot       int64
}

// RunCrankStep advances the engine by exactly one of the 16 round-robin
// steps. It always updates CurrentSlot and LastCrankSlot, and never skips
// a step even if that step finds nothing to do.
//
// The haircut ratio used by every account touch in this sweep is
// snapshotted once, at step 0, rather than recomputed per-account
// mid-sweep — recomputing it mid-sweep would let accounts visited later
// in a sweep see a different (and unfair) haircut than accounts visited
// earlier in the same sweep.
func RunCrankStep(s *EngineState, ctx CrankContext) {
	s.CurrentSlot = ctx.NowSlot
	s.LastCrankSlot = ctx.NowSlot

	switch s.CrankStep {
	case 0:
		s.LastFullSweepStartSlot = ctx.NowSlot
		s.CrankHaircutSnapshotE6 = currentHaircutRatio(s)
	case 1:
		AccrueFunding(s, ctx.LPNetPosition, ctx.PriceE6, ctx.NowSlot)
	case 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13:
		sweepPartition(s, ctx, s.CrankStep-2, 12)
	case 14:
		runGCSweep(s)
	case 15:
		if s.RiskReductionOnly && s.LossAccum > 0 {
			ApplyGlobalHaircut(s)
		}
		CheckAutoRecovery(s)
		s.LastFullSweepCompletedSlot = ctx.NowSlot
	}

	s.CrankStep = (s.CrankStep + 1) % 16
}

func currentHaircutRatio(s *EngineState) int64 {
	var warmedPos, pnlPos int64
	warmedPos = s.WarmedPosTotal
	for i := range s.Accounts {
		if s.Bitmap[i] && s.Accounts[i].Pnl > 0 {
			pnlPos += s.Accounts[i].Pnl
		}
	}
	return HaircutRatioE6(warmedPos, pnlPos)
}

// sweepPartition visits the 1/partitions slice of the account array owned
// by this step: settle funding, settle mark, advance warmup, check for
// liquidation eligibility, and drain maintenance fees.
func sweepPartition(s *EngineState, ctx CrankContext, partitionIdx, partitions int) {
	n := len(s.Accounts)
	if n == 0 {
		return
	}
	start := n * partitionIdx / partitions
	end := n * (partitionIdx + 1) / partitions

	for i := start; i < end; i++ {
		if !s.Bitmap[i] {
			continue
		}
		a := &s.Accounts[i]

		SettleFunding(s, a)
		SettleMarkToOracle(a, ctx.PriceE6)
		ApplyWarmup(s, a, ctx.NowSlot)

		if a.LastFeeSlot == 0 {
			a.LastFeeSlot = ctx.NowSlot
		}
		elapsed := ctx.NowSlot - a.LastFeeSlot
		if elapsed > 0 {
			a.FeeCredits -= s.Params.MaintenanceFeePerSlot * elapsed
			a.LastFeeSlot = ctx.NowSlot
		}

		if IsLiquidatable(a, ctx.PriceE6, s.CrankHaircutSnapshotE6, &s.Params) {
			enqueueLiquidation(s, i)
		}
	}
}

// pendingLiquidations is a small FIFO of account indices flagged during
// the sweep. RunCrankStep itself only detects eligibility — it has no
// liquidator signer to pay a fee to — so the caller (internal/riskengine's
// CrankRunner) drains this queue right after the step via
// ExecuteCrankLiquidation, which routes the fee to insurance.fee_revenue
// instead of a liquidator's capital. An external signer can still call
// Liquidate directly ahead of the crank; that path checks IsLiquidatable
// itself and never touches this queue.
func enqueueLiquidation(s *EngineState, idx int) {
	for _, p := range s.pendingLiquidations {
		if p == idx {
			return
		}
	}
	s.pendingLiquidations = append(s.pendingLiquidations, idx)
}

// PendingLiquidations returns and clears the set of account indices the
// most recent sweep flagged as liquidatable.
func (s *EngineState) PendingLiquidations() []int {
	out := s.pendingLiquidations
	s.pendingLiquidations = nil
	return out
}

func runGCSweep(s *EngineState) {
	for i := range s.Accounts {
		if !s.Bitmap[i] {
			continue
		}
		GCSweepAccount(s, i)
	}
}
