package engine

import "github.com/google/uuid"

// AccountKind discriminates a USER account from the LP account. An account
// is an LP iff MatcherProgram is non-zero; Kind is carried alongside as a
// redundant, robustness-against-corruption check.
type AccountKind uint8

const (
	AccountKindUser AccountKind = iota
	AccountKindLP
)

// FeedKind distinguishes the two oracle feed flavors the adapter
// auto-detects by owner.
type FeedKind uint8

const (
	FeedKindA FeedKind = iota
	FeedKindB
)

// FundingParams groups the market's funding-rate controls.
type FundingParams struct {
	HorizonSlots        int64
	KBps                int64
	InvScaleNotionalE6  int64
	MaxPremiumBps       int64
	MaxBpsPerSlot       int64
}

// ThresholdParams groups the risk-reduction threshold controller's knobs.
type ThresholdParams struct {
	Floor        int64
	RiskBps      int64
	UpdateInterval int64
	Step         int64
	AlphaE6      int64
	Min          int64
	Max          int64
	MinStep      int64
}

// MarketConfig is the immutable-except-via-admin market description.
type MarketConfig struct {
	CollateralMint      uuid.UUID
	Vault               uuid.UUID
	OracleID            uuid.UUID
	OracleFeedKind      FeedKind
	MaxStalenessSlots   int64
	ConfFilterBps       int64
	Invert              bool
	UnitScale           int64
	Funding             FundingParams
	Threshold           ThresholdParams
	OraclePriceCapE2Bps int64
}

// RiskParams is the admin-mutable risk policy. IM >= MM is a
// cross-parameter invariant enforced by ValidateRiskParams, and this is
// the actual gating policy for trade/withdraw/liquidate, so its
// validation is load bearing, not advisory.
type RiskParams struct {
	WarmupPeriodSlots        int64
	MaintenanceMarginBps     int64
	InitialMarginBps         int64
	TradingFeeBps            int64
	MaxAccounts              int
	NewAccountFee            int64
	RiskReductionThreshold   int64
	MaintenanceFeePerSlot    int64
	MaxCrankStalenessSlots   int64
	LiquidationFeeBps        int64
	LiquidationFeeCap        int64
	LiquidationBufferBps     int64
	MinLiquidationAbs        int64
	MaxExecPriceDeviationBps int64
}

// ValidateRiskParams enforces the IM >= MM cross-parameter invariant and
// the other sanity bounds a conforming UpdateConfig instruction must
// check before committing.
func ValidateRiskParams(p *RiskParams) error {
	if p.MaintenanceMarginBps <= 0 {
		return ErrInvalidLeverage
	}
	if p.InitialMarginBps < p.MaintenanceMarginBps {
		return ErrInvalidLeverage
	}
	if p.InitialMarginBps >= BpsDenom {
		return ErrInvalidLeverage
	}
	if p.LiquidationBufferBps < 0 || p.LiquidationFeeBps < 0 {
		return ErrInvalidLeverage
	}
	if p.MaxCrankStalenessSlots <= 0 {
		return ErrInvalidLeverage
	}
	return nil
}

// InsuranceFund tracks the market-level loss-absorption pool.
type InsuranceFund struct {
	Balance    uint64
	FeeRevenue uint64
}

// EngineState is the full live state of one market. It is the in-memory
// working form of the slab: internal/slab marshals/unmarshals it to the
// bit-exact persisted layout at snapshot and replay boundaries.
type EngineState struct {
	Config MarketConfig
	Params RiskParams

	Vault                        uint64
	Insurance                    InsuranceFund
	CurrentSlot                  int64
	FundingIndexQpbE6            int64
	LastFundingSlot              int64
	LossAccum                    uint64
	RiskReductionOnly            bool
	WarmupPaused                 bool
	LastCrankSlot                int64
	LastFullSweepStartSlot       int64
	LastFullSweepCompletedSlot   int64
	TotalOpenInterest            uint64
	WarmedPosTotal               int64
	WarmedNegTotal               int64
	WarmupInsuranceReserved      int64
	CrankStep                    int
	CrankHaircutSnapshotE6       int64 // taken at step 0, held fixed for the whole sweep

	LiqCursor int
	GcCursor  int

	LastEffectivePriceE6 int64 // push-authority circuit breaker baseline
	OracleAuthority      uuid.UUID
	Admin                uuid.UUID

	LifetimeTrades       uint64
	LifetimeLiquidations uint64

	Accounts []Account
	Bitmap   []bool // true = slot occupied

	pendingLiquidations []int // flagged by the crank sweep, not persisted in the slab
}

// Account is a single user or LP record.
type Account struct {
	Kind                AccountKind
	Owner               uuid.UUID
	AccountID            uuid.UUID
	Capital             uint64
	Pnl                 int64
	ReservedPnl         uint64
	WarmupStartedAtSlot int64
	WarmupSlopePerStep  int64
	PositionSize        int64
	EntryPriceE6        int64
	FundingIndexSnapshot int64
	MatcherProgram      uuid.UUID
	MatcherContext      uuid.UUID
	FeeCredits          int64
	LastFeeSlot         int64
}

// IsLP reports whether the account is the LP counterparty, determined
// solely by MatcherProgram being non-zero — robust against corruption of
// a separate Kind tag.
func (a *Account) IsLP() bool {
	return a.MatcherProgram != uuid.Nil
}

// IsFlat reports whether the account currently carries no exposure.
func (a *Account) IsFlat() bool {
	return a.PositionSize == 0
}

func findFreeSlot(bitmap []bool) (int, bool) {
	for i, occupied := range bitmap {
		if !occupied {
			return i, true
		}
	}
	return 0, false
}
