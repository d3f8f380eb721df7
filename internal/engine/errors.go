package engine

import "errors"

// Validation
var (
	ErrZeroAmount          = errors.New("zero_amount")
	ErrInvalidLeverage     = errors.New("invalid_leverage")
	ErrUnauthorizedAccount = errors.New("unauthorized_account")
	ErrWrongAccountKind    = errors.New("wrong_account_kind")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrMarketFull          = errors.New("market_full")
)

// Oracle
var (
	ErrOracleStale             = errors.New("oracle_stale")
	ErrOracleDeviation         = errors.New("oracle_deviation")
	ErrOraclePriceCapExceeded  = errors.New("oracle_price_cap_exceeded")
	ErrOracleInvalidPrice      = errors.New("oracle_invalid_price")
)

// Margin
var (
	ErrInsufficientMargin = errors.New("insufficient_margin")
	ErrNotLiquidatable    = errors.New("not_liquidatable")
	ErrPositionTooLarge   = errors.New("position_too_large")
)

// Liveness
var (
	ErrCrankStale        = errors.New("crank_stale")
	ErrSweepStale        = errors.New("sweep_stale")
	ErrRiskReductionOnly = errors.New("risk_reduction_only")
	ErrWarmupPaused      = errors.New("warmup_paused")
	ErrPnlNotWarmedUp    = errors.New("pnl_not_warmed_up")
	ErrInsuranceInsufficient = errors.New("insurance_insufficient")
)

// Matcher
var (
	ErrMatcherRejected      = errors.New("matcher_rejected")
	ErrInvalidExecutionSize = errors.New("invalid_execution_size")
	ErrInvalidExecutionPrice = errors.New("invalid_execution_price")
)

// Accounting
var (
	ErrCheckedMath = errors.New("checked_math_overflow")
)

// CloseAccount-specific preconditions
var (
	ErrPositionNotFlat   = errors.New("position_not_flat")
	ErrPnlNotSettled     = errors.New("pnl_not_settled")
	ErrFeeDebtOutstanding = errors.New("fee_debt_outstanding")
)
