package riskengine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/observability"
	"github.com/th3noryx/riskengine/internal/testutil"
)

func TestServiceDepositTradePushOracle(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewSlabStore(db)
	registry := NewRegistry(store)
	metrics := observability.NewMetrics()
	svc := NewService(registry, metrics)

	ctx := context.Background()
	cfg, params, feed := testConfig()
	admin := uuid.New()
	if err := registry.CreateMarket(ctx, "SOL-PERP", admin, cfg, params, 4, feed); err != nil {
		t.Fatalf("create market: %v", err)
	}

	matcherProgram := uuid.New()
	lpOwner := uuid.New()
	lpIdx, err := svc.InitLP(ctx, "SOL-PERP", lpOwner, matcherProgram, uuid.New(), uint64(params.NewAccountFee)+1_000_000_000)
	if err != nil {
		t.Fatalf("init lp: %v", err)
	}

	userOwner := uuid.New()
	userIdx, err := svc.InitUser(ctx, "SOL-PERP", userOwner, uint64(params.NewAccountFee))
	if err != nil {
		t.Fatalf("init user: %v", err)
	}

	var lpID, userID uuid.UUID
	snap, err := registry.Snapshot("SOL-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	lpID = snap.Accounts[lpIdx].AccountID
	userID = snap.Accounts[userIdx].AccountID

	if err := svc.Deposit(ctx, "SOL-PERP", userID, 10_000_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := svc.PushOracle(ctx, "SOL-PERP", 1_000_000, 1); err != nil {
		t.Fatalf("push oracle: %v", err)
	}

	// Advance the crank through a full sweep so CheckCrankFresh passes.
	for i := 0; i < 16; i++ {
		if err := svc.KeeperCrank(ctx, "SOL-PERP", 1_000_000, int64(i+1)); err != nil {
			t.Fatalf("keeper crank: %v", err)
		}
	}

	if err := svc.Trade(ctx, "SOL-PERP", userID, lpID, engine.DirectMatcher{}, 1_000_000_000, 1_000_000); err != nil {
		t.Fatalf("trade: %v", err)
	}

	snap, err = registry.Snapshot("SOL-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Accounts[userIdx].PositionSize != 1_000_000_000 {
		t.Fatalf("user position = %d, want 1_000_000_000", snap.Accounts[userIdx].PositionSize)
	}
	if snap.Accounts[lpIdx].PositionSize != -1_000_000_000 {
		t.Fatalf("lp position = %d, want -1_000_000_000", snap.Accounts[lpIdx].PositionSize)
	}

	if err := svc.SetMaintenanceFee(ctx, "SOL-PERP", 5); err != nil {
		t.Fatalf("set maintenance fee: %v", err)
	}
	if err := svc.TopUpInsurance(ctx, "SOL-PERP", 1_000_000); err != nil {
		t.Fatalf("top up insurance: %v", err)
	}

	snap, err = registry.Snapshot("SOL-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Params.MaintenanceFeePerSlot != 5 {
		t.Fatalf("maintenance fee = %d, want 5", snap.Params.MaintenanceFeePerSlot)
	}
	if snap.Insurance.Balance != 1_000_000 {
		t.Fatalf("insurance balance = %d, want 1_000_000", snap.Insurance.Balance)
	}
}

func TestServiceCloseSlabDisabled(t *testing.T) {
	svc := NewService(NewRegistry(NewSlabStore(nil)), nil)
	if err := svc.CloseSlab(context.Background(), "anything"); err != ErrCloseSlabDisabled {
		t.Fatalf("expected ErrCloseSlabDisabled, got %v", err)
	}
}
