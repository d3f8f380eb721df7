package riskengine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/observability"
)

// Service is the account-facing surface over a Registry: every method
// resolves an account by AccountID inside the target market's slab,
// calls the matching internal/engine function, and lets Registry persist
// the result. This is the layer the admin-only instructions and the
// trade/deposit/withdraw/liquidate instructions are dispatched through
// once their inputs are validated.
type Service struct {
	registry *Registry
	metrics  *observability.Metrics
}

func NewService(registry *Registry, metrics *observability.Metrics) *Service {
	return &Service{registry: registry, metrics: metrics}
}

func findAccount(s *engine.EngineState, accountID uuid.UUID) (*engine.Account, int, error) {
	for i := range s.Accounts {
		if s.Bitmap[i] && s.Accounts[i].AccountID == accountID {
			return &s.Accounts[i], i, nil
		}
	}
	return nil, 0, engine.ErrAccountNotFound
}

// InitUser creates a new USER account.
func (svc *Service) InitUser(ctx context.Context, marketID string, owner uuid.UUID, feePayment uint64) (idx int, err error) {
	err = svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		var e error
		idx, e = engine.InitUser(s, owner, feePayment)
		return e
	})
	return idx, err
}

// InitLP creates the market's LP account.
func (svc *Service) InitLP(ctx context.Context, marketID string, owner, matcherProgram, matcherContext uuid.UUID, feePayment uint64) (idx int, err error) {
	err = svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		var e error
		idx, e = engine.InitLP(s, owner, matcherProgram, matcherContext, feePayment)
		return e
	})
	return idx, err
}

// Deposit credits an account's capital.
func (svc *Service) Deposit(ctx context.Context, marketID string, accountID uuid.UUID, amount uint64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		a, _, err := findAccount(s, accountID)
		if err != nil {
			return err
		}
		return engine.Deposit(s, a, amount)
	})
}

// Withdraw debits an account's withdrawable balance.
func (svc *Service) Withdraw(ctx context.Context, marketID string, accountID uuid.UUID, amount uint64, priceE6 int64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		a, _, err := findAccount(s, accountID)
		if err != nil {
			return err
		}
		return engine.Withdraw(s, a, amount, priceE6, s.CrankHaircutSnapshotE6)
	})
}

// CloseAccount closes a flat, settled account and returns its payout.
func (svc *Service) CloseAccount(ctx context.Context, marketID string, accountID uuid.UUID) (payout uint64, err error) {
	err = svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		_, idx, e := findAccount(s, accountID)
		if e != nil {
			return e
		}
		payout, e = engine.CloseAccount(s, &s.Accounts[idx], idx)
		return e
	})
	return payout, err
}

// Trade executes a fill between a user account and the market's LP
// account. The direct and CPI-routed variants differ only in which
// matcher is passed in.
func (svc *Service) Trade(ctx context.Context, marketID string, userID, lpID uuid.UUID, matcher engine.Matcher, requestedSize, oraclePriceE6 int64) error {
	if matcher == nil {
		matcher = engine.DirectMatcher{}
	}
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		user, _, err := findAccount(s, userID)
		if err != nil {
			return err
		}
		lp, _, err := findAccount(s, lpID)
		if err != nil {
			return err
		}
		executor := engine.TradeExecutor{Matcher: matcher}
		return executor.ExecuteTrade(s, user, lp, requestedSize, oraclePriceE6, s.CrankHaircutSnapshotE6)
	})
}

// Liquidate executes a liquidation against target, crediting liquidator
// with the liquidation fee.
func (svc *Service) Liquidate(ctx context.Context, marketID string, targetID, liquidatorID uuid.UUID, priceE6 int64) (result engine.LiquidationResult, err error) {
	err = svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		target, _, e := findAccount(s, targetID)
		if e != nil {
			return e
		}
		liquidator, _, e := findAccount(s, liquidatorID)
		if e != nil {
			return e
		}
		result, e = engine.ExecuteLiquidation(s, target, liquidator, priceE6, s.CrankHaircutSnapshotE6)
		if e == nil && svc.metrics != nil {
			svc.metrics.LiquidationsTotal.WithLabelValues(marketID).Inc()
		}
		return e
	})
	return result, err
}

// PushOracle pushes a new effective price for marketID through the
// circuit breaker, recording a rejection metric when the breaker trips
// so operators can see manipulation attempts or feed glitches without
// grepping logs.
func (svc *Service) PushOracle(ctx context.Context, marketID string, newPriceE6, nowSlot int64) error {
	err := svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		return engine.PushOraclePrice(s, newPriceE6, nowSlot)
	})
	if err != nil && svc.metrics != nil {
		svc.metrics.OraclePushRejected.WithLabelValues(marketID, err.Error()).Inc()
	}
	return err
}

// --- Admin-only instructions ---

// TopUpInsurance credits the insurance fund balance.
func (svc *Service) TopUpInsurance(ctx context.Context, marketID string, amount uint64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		engine.TopUpInsurance(s, amount)
		return nil
	})
}

// SetRiskThreshold updates the risk-reduction threshold.
func (svc *Service) SetRiskThreshold(ctx context.Context, marketID string, newThreshold int64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		engine.SetRiskThreshold(s, newThreshold)
		return nil
	})
}

// SetOracleAuthority rotates the oracle-push authority.
func (svc *Service) SetOracleAuthority(ctx context.Context, marketID string, newAuthority uuid.UUID) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		engine.SetOracleAuthority(s, newAuthority)
		return nil
	})
}

// UpdateConfig applies a validated batch of risk-parameter changes.
func (svc *Service) UpdateConfig(ctx context.Context, marketID string, newParams engine.RiskParams) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		return engine.UpdateConfig(s, newParams)
	})
}

// SetMaintenanceFee updates the per-slot maintenance fee.
func (svc *Service) SetMaintenanceFee(ctx context.Context, marketID string, newFee int64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		engine.SetMaintenanceFee(s, newFee)
		return nil
	})
}

// ErrCloseSlabDisabled is returned by CloseSlab. There is no safe
// semantics for deleting a market's entire state out from under open
// positions, so this implementation refuses the call outright rather
// than inventing one.
var ErrCloseSlabDisabled = errors.New("riskengine: close_slab is disabled in this deployment")

// CloseSlab is permanently disabled.
func (svc *Service) CloseSlab(ctx context.Context, marketID string) error {
	return ErrCloseSlabDisabled
}

// KeeperCrank advances marketID by exactly one crank step, for callers
// that want to drive the crank explicitly (e.g. a permissionless keeper
// submitting its own transaction) rather than relying on CrankRunner's
// background ticker.
func (svc *Service) KeeperCrank(ctx context.Context, marketID string, priceE6, nowSlot int64) error {
	return svc.registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
		engine.RunCrankStep(s, engine.CrankContext{
			PriceE6:       priceE6,
			LPNetPosition: lpNetPosition(s),
			NowSlot:       nowSlot,
		})
		return nil
	})
}

// Account returns a read-only copy of one account's slab row, for callers
// that need current capital/position/PnL without going through WithMarket
// themselves (the query API handler, mainly).
func (svc *Service) Account(marketID string, accountID uuid.UUID) (engine.Account, error) {
	s, err := svc.registry.Snapshot(marketID)
	if err != nil {
		return engine.Account{}, err
	}
	a, _, err := findAccount(s, accountID)
	if err != nil {
		return engine.Account{}, err
	}
	return *a, nil
}

// MarketIDs lists every market currently loaded in the registry.
func (svc *Service) MarketIDs() []string {
	return svc.registry.MarketIDs()
}

// Registry exposes the underlying Registry for callers that need to
// Dispatch a decoded instruction directly rather than going through one
// of Service's typed methods (the HTTP instruction-submission handler).
func (svc *Service) Registry() *Registry {
	return svc.registry
}
