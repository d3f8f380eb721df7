package riskengine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/ingestion"
	"github.com/th3noryx/riskengine/internal/testutil"
)

func TestDispatchDepositAndTradeByIndex(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewSlabStore(db)
	registry := NewRegistry(store)
	ctx := context.Background()
	cfg, params, feed := testConfig()
	admin := uuid.New()
	if err := registry.CreateMarket(ctx, "DOGE-PERP", admin, cfg, params, 4, feed); err != nil {
		t.Fatalf("create market: %v", err)
	}

	lpOwner := uuid.New()
	matcherProgram := uuid.New()
	if err := Dispatch(ctx, registry, "DOGE-PERP",
		ingestion.InitLPInstr{MatcherProgram: matcherProgram, MatcherContext: uuid.New(), FeePayment: uint64(params.NewAccountFee)},
		lpOwner, nil, 1_000_000, 1); err != nil {
		t.Fatalf("dispatch init lp: %v", err)
	}

	userOwner := uuid.New()
	if err := Dispatch(ctx, registry, "DOGE-PERP",
		ingestion.InitUserInstr{FeePayment: uint64(params.NewAccountFee)},
		userOwner, nil, 1_000_000, 1); err != nil {
		t.Fatalf("dispatch init user: %v", err)
	}

	snap, err := registry.Snapshot("DOGE-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var lpIdx, userIdx uint16
	for i, occupied := range snap.Bitmap {
		if !occupied {
			continue
		}
		if snap.Accounts[i].IsLP() {
			lpIdx = uint16(i)
		} else {
			userIdx = uint16(i)
		}
	}

	if err := Dispatch(ctx, registry, "DOGE-PERP",
		ingestion.DepositInstr{UserIdx: userIdx, Amount: 10_000_000_000},
		userOwner, nil, 1_000_000, 1); err != nil {
		t.Fatalf("dispatch deposit: %v", err)
	}

	for i := 0; i < 16; i++ {
		if err := Dispatch(ctx, registry, "DOGE-PERP",
			ingestion.KeeperCrankInstr{CallerIdx: PermissionlessCallerIdx},
			uuid.Nil, nil, 1_000_000, int64(i+1)); err != nil {
			t.Fatalf("dispatch crank step %d: %v", i, err)
		}
	}

	if err := Dispatch(ctx, registry, "DOGE-PERP",
		ingestion.TradeInstr{UserIdx: userIdx, LPIdx: lpIdx, Size: 1_000_000_000},
		userOwner, engine.DirectMatcher{}, 1_000_000, 17); err != nil {
		t.Fatalf("dispatch trade: %v", err)
	}

	snap, err = registry.Snapshot("DOGE-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Accounts[userIdx].PositionSize != 1_000_000_000 {
		t.Fatalf("user position = %d, want 1_000_000_000", snap.Accounts[userIdx].PositionSize)
	}
}

func TestDispatchUnknownInstructionTag(t *testing.T) {
	store := NewSlabStore(nil)
	registry := NewRegistry(store)
	err := Dispatch(context.Background(), registry, "no-such-market", unknownInstr{}, uuid.Nil, nil, 0, 0)
	if err == nil {
		t.Fatal("expected an error for an instruction Dispatch doesn't recognize")
	}
}

type unknownInstr struct{}

func (unknownInstr) Tag() ingestion.Tag { return ingestion.Tag(250) }

func TestDispatchCloseSlabDisabled(t *testing.T) {
	store := NewSlabStore(nil)
	registry := NewRegistry(store)
	err := Dispatch(context.Background(), registry, "no-such-market", ingestion.CloseSlabInstr{}, uuid.Nil, nil, 0, 0)
	if err != ErrCloseSlabDisabled {
		t.Fatalf("expected ErrCloseSlabDisabled, got %v", err)
	}
}
