package engine

import "github.com/google/uuid"

// NewMarket constructs a fresh EngineState. LastEffectivePriceE6 is
// seeded from the feed's current price rather than left at zero, so the
// first PushOraclePrice call is bound by the circuit breaker like every
// other push instead of getting a free unclamped write.
func NewMarket(admin uuid.UUID, cfg MarketConfig, params RiskParams, maxAccounts int, feed Feed) (*EngineState, error) {
	if err := ValidateRiskParams(&params); err != nil {
		return nil, err
	}

	price, err := OraclePrice(&cfg, feed, feed.PublishSlot)
	if err != nil {
		return nil, err
	}

	return &EngineState{
		Config:               cfg,
		Params:               params,
		Admin:                admin,
		LastEffectivePriceE6: price,
		Accounts:             make([]Account, maxAccounts),
		Bitmap:               make([]bool, maxAccounts),
	}, nil
}

// InitUser creates a new USER account, charging NewAccountFee to the
// insurance fund's fee revenue.
func InitUser(s *EngineState, owner uuid.UUID, feePayment uint64) (idx int, err error) {
	return initAccount(s, owner, uuid.Nil, uuid.Nil, feePayment)
}

// InitLP creates the LP account, the sole counterparty to all user
// positions, identified by a non-zero MatcherProgram.
func InitLP(s *EngineState, owner, matcherProgram, matcherContext uuid.UUID, feePayment uint64) (idx int, err error) {
	if matcherProgram == uuid.Nil {
		return 0, ErrWrongAccountKind
	}
	return initAccount(s, owner, matcherProgram, matcherContext, feePayment)
}

func initAccount(s *EngineState, owner, matcherProgram, matcherContext uuid.UUID, feePayment uint64) (int, error) {
	if feePayment < uint64(s.Params.NewAccountFee) {
		return 0, ErrInsufficientMargin
	}
	idx, ok := findFreeSlot(s.Bitmap)
	if !ok {
		return 0, ErrMarketFull
	}

	kind := AccountKindUser
	if matcherProgram != uuid.Nil {
		kind = AccountKindLP
	}

	s.Accounts[idx] = Account{
		Kind:           kind,
		Owner:          owner,
		AccountID:      uuid.New(),
		MatcherProgram: matcherProgram,
		MatcherContext: matcherContext,
	}
	s.Bitmap[idx] = true

	s.Insurance.FeeRevenue += uint64(s.Params.NewAccountFee)
	s.Vault += feePayment
	leftover := feePayment - uint64(s.Params.NewAccountFee)
	if leftover > 0 {
		s.Accounts[idx].Capital += leftover
	}

	return idx, nil
}

// SetRiskThreshold updates the risk-reduction threshold. Admin-only —
// caller is responsible for verifying admin authority before calling
// this.
func SetRiskThreshold(s *EngineState, newThreshold int64) {
	s.Params.RiskReductionThreshold = newThreshold
}

// SetMaintenanceFee updates the per-slot maintenance fee.
func SetMaintenanceFee(s *EngineState, newFee int64) {
	s.Params.MaintenanceFeePerSlot = newFee
}

// SetOracleAuthority rotates the address permitted to call PushOraclePrice.
func SetOracleAuthority(s *EngineState, newAuthority uuid.UUID) {
	s.OracleAuthority = newAuthority
}

// UpdateConfig applies a batch of risk-parameter changes, re-validating the
// cross-parameter invariants before committing any of them — partial
// application would leave IM < MM reachable mid-update.
func UpdateConfig(s *EngineState, newParams RiskParams) error {
	if err := ValidateRiskParams(&newParams); err != nil {
		return err
	}
	s.Params = newParams
	return nil
}
