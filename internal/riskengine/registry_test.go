package riskengine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
	"github.com/th3noryx/riskengine/internal/testutil"
)

func testConfig() (engine.MarketConfig, engine.RiskParams, engine.Feed) {
	cfg := engine.MarketConfig{
		OraclePriceCapE2Bps: 10_000,
	}
	params := engine.RiskParams{
		WarmupPeriodSlots:      100,
		MaintenanceMarginBps:   500,
		InitialMarginBps:       1000,
		TradingFeeBps:          10,
		MaxAccounts:            4,
		NewAccountFee:          1_000,
		MaxCrankStalenessSlots: 1_000,
		LiquidationFeeBps:      50,
		LiquidationFeeCap:      1_000_000,
		LiquidationBufferBps:   25,
		MinLiquidationAbs:      1,
	}
	feed := engine.Feed{PriceE6: 1_000_000, Exponent: -6, PublishSlot: 0, Conf: 0}
	return cfg, params, feed
}

func TestRegistryCreateAndPersistMarket(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewSlabStore(db)
	registry := NewRegistry(store)

	ctx := context.Background()
	cfg, params, feed := testConfig()
	admin := uuid.New()

	if err := registry.CreateMarket(ctx, "BTC-PERP", admin, cfg, params, 4, feed); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := registry.CreateMarket(ctx, "BTC-PERP", admin, cfg, params, 4, feed); err != ErrMarketExists {
		t.Fatalf("expected ErrMarketExists on duplicate create, got %v", err)
	}

	owner := uuid.New()
	if err := registry.WithMarket(ctx, "BTC-PERP", func(s *engine.EngineState) error {
		_, err := engine.InitUser(s, owner, uint64(params.NewAccountFee))
		return err
	}); err != nil {
		t.Fatalf("init user: %v", err)
	}

	// Reload from a fresh registry backed by the same store — the slab
	// persisted by WithMarket must reflect the new account.
	reloaded := NewRegistry(store)
	n, err := reloaded.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded %d markets, want 1", n)
	}

	snap, err := reloaded.Snapshot("BTC-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	found := false
	for i, occupied := range snap.Bitmap {
		if occupied && snap.Accounts[i].Owner == owner {
			found = true
		}
	}
	if !found {
		t.Fatalf("reloaded market does not contain the account created before persist")
	}
}

func TestRegistryWithMarketUnknownMarket(t *testing.T) {
	store := NewSlabStore(nil)
	registry := NewRegistry(store)

	err := registry.WithMarket(context.Background(), "does-not-exist", func(*engine.EngineState) error {
		t.Fatal("fn should not run for an unregistered market")
		return nil
	})
	if err != ErrMarketNotFound {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestRegistrySnapshotIsIndependentCopy(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := NewSlabStore(db)
	registry := NewRegistry(store)

	ctx := context.Background()
	cfg, params, feed := testConfig()
	if err := registry.CreateMarket(ctx, "ETH-PERP", uuid.New(), cfg, params, 2, feed); err != nil {
		t.Fatalf("create market: %v", err)
	}

	snap, err := registry.Snapshot("ETH-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.CurrentSlot = 999_999

	live, err := registry.Snapshot("ETH-PERP")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if live.CurrentSlot == 999_999 {
		t.Fatalf("mutating a snapshot mutated the live state")
	}
}
