package riskengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/ingestion"
)

// PermissionlessCallerIdx is the sentinel caller_idx value for
// KeeperCrank meaning "no specific account authorized this call".
const PermissionlessCallerIdx = 65535

// accountAt resolves a wire instruction's account index (the user_idx/
// lp_idx/target_idx/idx args) against a market's occupied slab slots.
// This is the index-keyed counterpart to Service's findAccount, which
// resolves by AccountID instead — the wire format addresses accounts by
// their fixed slab position, not by UUID.
func accountAt(s *engine.EngineState, idx uint16) (*engine.Account, error) {
	i := int(idx)
	if i < 0 || i >= len(s.Accounts) || !s.Bitmap[i] {
		return nil, engine.ErrAccountNotFound
	}
	return &s.Accounts[i], nil
}

// Dispatch applies a decoded wire instruction (internal/ingestion's
// DecodeInstruction output) to marketID. This is the consumer-side
// counterpart to Service for callers that only have account indices, not
// account IDs — the instr.* NATS subjects feed through here, one decoded
// Instruction per message.
//
// signer is the transaction signer's account ID — on-chain, InitUser's
// and InitLP's new account owner and Liquidate's liquidator are never
// carried in the wire args themselves (the arg lists only name
// amounts/indices/config), they come from whoever signed the
// transaction, which the NATS envelope (not the decoded instruction
// bytes) is expected to authenticate before calling Dispatch.
func Dispatch(ctx context.Context, registry *Registry, marketID string, instr ingestion.Instruction, signer uuid.UUID, matcher engine.Matcher, oraclePriceE6, nowSlot int64) error {
	switch v := instr.(type) {
	case ingestion.InitMarketInstr:
		return registry.CreateMarket(ctx, marketID, v.Admin, v.Config, v.Params, v.Params.MaxAccounts, engine.Feed{})

	case ingestion.InitLPInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			_, err := engine.InitLP(s, signer, v.MatcherProgram, v.MatcherContext, v.FeePayment)
			return err
		})

	case ingestion.InitUserInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			_, err := engine.InitUser(s, signer, v.FeePayment)
			return err
		})

	case ingestion.DepositInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			a, err := accountAt(s, v.UserIdx)
			if err != nil {
				return err
			}
			return engine.Deposit(s, a, v.Amount)
		})

	case ingestion.WithdrawInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			a, err := accountAt(s, v.UserIdx)
			if err != nil {
				return err
			}
			return engine.Withdraw(s, a, v.Amount, oraclePriceE6, s.CrankHaircutSnapshotE6)
		})

	case ingestion.TradeInstr:
		if matcher == nil {
			matcher = engine.DirectMatcher{}
		}
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			user, err := accountAt(s, v.UserIdx)
			if err != nil {
				return err
			}
			lp, err := accountAt(s, v.LPIdx)
			if err != nil {
				return err
			}
			executor := engine.TradeExecutor{Matcher: matcher}
			return executor.ExecuteTrade(s, user, lp, v.Size, oraclePriceE6, s.CrankHaircutSnapshotE6)
		})

	case ingestion.KeeperCrankInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			engine.RunCrankStep(s, engine.CrankContext{
				PriceE6:       oraclePriceE6,
				LPNetPosition: lpNetPosition(s),
				NowSlot:       nowSlot,
			})
			return nil
		})

	case ingestion.LiquidateInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			target, err := accountAt(s, v.TargetIdx)
			if err != nil {
				return err
			}
			liquidator, _, err := findAccount(s, signer)
			if err != nil {
				return err
			}
			_, err = engine.ExecuteLiquidation(s, target, liquidator, oraclePriceE6, s.CrankHaircutSnapshotE6)
			return err
		})

	case ingestion.TopUpInsuranceInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			engine.TopUpInsurance(s, v.Amount)
			return nil
		})

	case ingestion.CloseAccountInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			a, err := accountAt(s, v.Idx)
			if err != nil {
				return err
			}
			_, err = engine.CloseAccount(s, a, int(v.Idx))
			return err
		})

	case ingestion.SetRiskThresholdInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			engine.SetRiskThreshold(s, v.NewThreshold)
			return nil
		})

	case ingestion.PushOraclePriceInstr:
		// v.Timestamp is the wire instruction's own slot argument — it
		// takes precedence over Dispatch's ambient nowSlot, which is
		// derived from the keeper's wall clock rather than the push
		// itself.
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			return engine.PushOraclePrice(s, v.PriceE6, v.Timestamp)
		})

	case ingestion.SetOracleAuthorityInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			engine.SetOracleAuthority(s, v.NewAuthority)
			return nil
		})

	case ingestion.UpdateConfigInstr:
		// Funding/threshold params live on MarketConfig, not RiskParams,
		// so engine.UpdateConfig's IM>=MM cross-parameter check doesn't
		// apply here — there's no invariant across funding/threshold
		// fields to validate before committing them.
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			s.Config.Funding = v.Funding
			s.Config.Threshold = v.Threshold
			return nil
		})

	case ingestion.SetMaintenanceFeeInstr:
		return registry.WithMarket(ctx, marketID, func(s *engine.EngineState) error {
			engine.SetMaintenanceFee(s, v.NewFee)
			return nil
		})

	case ingestion.CloseSlabInstr:
		return ErrCloseSlabDisabled

	default:
		return fmt.Errorf("riskengine: no dispatch for instruction tag %d", instr.Tag())
	}
}
