package slab

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
)

func sampleState() *engine.EngineState {
	s := &engine.EngineState{
		Config: engine.MarketConfig{
			CollateralMint:      uuid.New(),
			Vault:                uuid.New(),
			OracleID:             uuid.New(),
			OracleFeedKind:       engine.FeedKindB,
			Invert:               true,
			MaxStalenessSlots:    50,
			ConfFilterBps:        100,
			UnitScale:            1,
			OraclePriceCapE2Bps:  10_000,
		},
		Params: engine.RiskParams{
			WarmupPeriodSlots:      100,
			MaintenanceMarginBps:   500,
			InitialMarginBps:       1000,
			TradingFeeBps:          10,
			MaxAccounts:            3,
			NewAccountFee:          1_000,
			RiskReductionThreshold: 5_000,
			MaintenanceFeePerSlot:  1,
			MaxCrankStalenessSlots: 1000,
			LiquidationFeeBps:      50,
			LiquidationFeeCap:      1_000_000,
			LiquidationBufferBps:   25,
			MinLiquidationAbs:      1,
		},
		Vault:                      9_000,
		Insurance:                  engine.InsuranceFund{Balance: 7_000, FeeRevenue: 300},
		CurrentSlot:                42,
		FundingIndexQpbE6:          -123,
		LastFundingSlot:            40,
		LossAccum:                  10,
		RiskReductionOnly:          true,
		WarmupPaused:               false,
		LastCrankSlot:              41,
		LastFullSweepStartSlot:     41,
		LastFullSweepCompletedSlot: 38,
		TotalOpenInterest:          500,
		WarmedPosTotal:             200,
		WarmedNegTotal:             0,
		WarmupInsuranceReserved:    100,
		CrankStep:                 3,
		CrankHaircutSnapshotE6:    900_000,
		LiqCursor:                  1,
		GcCursor:                   2,
		LastEffectivePriceE6:       1_050_000,
		OracleAuthority:            uuid.New(),
		Admin:                      uuid.New(),
		LifetimeTrades:             7,
		LifetimeLiquidations:       1,
		Accounts: []engine.Account{
			{
				Kind:                 engine.AccountKindUser,
				Owner:                uuid.New(),
				AccountID:            uuid.New(),
				Capital:              1_000_000,
				Pnl:                  -500,
				ReservedPnl:          200,
				WarmupStartedAtSlot:  10,
				WarmupSlopePerStep:   5,
				PositionSize:         -750,
				EntryPriceE6:         1_200_000,
				FundingIndexSnapshot: -10,
				FeeCredits:           -50,
				LastFeeSlot:          40,
			},
			{
				Kind:           engine.AccountKindLP,
				Owner:          uuid.New(),
				AccountID:      uuid.New(),
				Capital:        100_000_000,
				MatcherProgram: uuid.New(),
				MatcherContext: uuid.New(),
				PositionSize:   750,
				EntryPriceE6:   1_200_000,
			},
			{}, // empty unoccupied slot
		},
		Bitmap: []bool{true, true, false},
	}
	return s
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	want := sampleState()
	buf, err := Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(buf) != Size(len(want.Accounts)) {
		t.Fatalf("buffer size %d, want %d", len(buf), Size(len(want.Accounts)))
	}

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(want.Config, got.Config) {
		t.Fatalf("config mismatch:\nwant %+v\ngot  %+v", want.Config, got.Config)
	}
	if !reflect.DeepEqual(want.Params, got.Params) {
		t.Fatalf("params mismatch:\nwant %+v\ngot  %+v", want.Params, got.Params)
	}
	if !reflect.DeepEqual(want.Bitmap, got.Bitmap) {
		t.Fatalf("bitmap mismatch: want %v got %v", want.Bitmap, got.Bitmap)
	}
	if !reflect.DeepEqual(want.Accounts, got.Accounts) {
		t.Fatalf("accounts mismatch:\nwant %+v\ngot  %+v", want.Accounts, got.Accounts)
	}
	if want.Admin != got.Admin || want.OracleAuthority != got.OracleAuthority {
		t.Fatalf("header identifiers mismatch")
	}

	scalarChecks := []struct {
		name      string
		want, got int64
	}{
		{"Vault", int64(want.Vault), int64(got.Vault)},
		{"Insurance.Balance", int64(want.Insurance.Balance), int64(got.Insurance.Balance)},
		{"Insurance.FeeRevenue", int64(want.Insurance.FeeRevenue), int64(got.Insurance.FeeRevenue)},
		{"CurrentSlot", want.CurrentSlot, got.CurrentSlot},
		{"FundingIndexQpbE6", want.FundingIndexQpbE6, got.FundingIndexQpbE6},
		{"LastFundingSlot", want.LastFundingSlot, got.LastFundingSlot},
		{"LossAccum", int64(want.LossAccum), int64(got.LossAccum)},
		{"LastCrankSlot", want.LastCrankSlot, got.LastCrankSlot},
		{"LastFullSweepStartSlot", want.LastFullSweepStartSlot, got.LastFullSweepStartSlot},
		{"LastFullSweepCompletedSlot", want.LastFullSweepCompletedSlot, got.LastFullSweepCompletedSlot},
		{"TotalOpenInterest", int64(want.TotalOpenInterest), int64(got.TotalOpenInterest)},
		{"WarmedPosTotal", want.WarmedPosTotal, got.WarmedPosTotal},
		{"WarmedNegTotal", want.WarmedNegTotal, got.WarmedNegTotal},
		{"WarmupInsuranceReserved", want.WarmupInsuranceReserved, got.WarmupInsuranceReserved},
		{"CrankStep", int64(want.CrankStep), int64(got.CrankStep)},
		{"CrankHaircutSnapshotE6", want.CrankHaircutSnapshotE6, got.CrankHaircutSnapshotE6},
		{"LiqCursor", int64(want.LiqCursor), int64(got.LiqCursor)},
		{"GcCursor", int64(want.GcCursor), int64(got.GcCursor)},
		{"LastEffectivePriceE6", want.LastEffectivePriceE6, got.LastEffectivePriceE6},
		{"LifetimeTrades", int64(want.LifetimeTrades), int64(got.LifetimeTrades)},
		{"LifetimeLiquidations", int64(want.LifetimeLiquidations), int64(got.LifetimeLiquidations)},
	}
	for _, c := range scalarChecks {
		if c.want != c.got {
			t.Errorf("%s: want %d, got %d", c.name, c.want, c.got)
		}
	}
	if want.RiskReductionOnly != got.RiskReductionOnly || want.WarmupPaused != got.WarmupPaused {
		t.Fatalf("risk_reduction_only/warmup_paused mismatch")
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	buf, err := Marshal(sampleState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	buf[0] ^= 0xFF
	if _, err := Unmarshal(buf); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestUnmarshalRejectsBadVersion(t *testing.T) {
	buf, err := Marshal(sampleState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	buf[8] = 0xFF
	if _, err := Unmarshal(buf); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func TestUnmarshalRejectsTooShort(t *testing.T) {
	buf, err := Marshal(sampleState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(buf[:BitmapOffset-1]); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort for a buffer cut before the bitmap, got %v", err)
	}
	if _, err := Unmarshal(buf[:HeaderSize]); err != ErrTooShort {
		t.Fatalf("expected ErrTooShort for a header-only buffer, got %v", err)
	}
}

func TestSizeAccountsForAccountCount(t *testing.T) {
	if got := Size(0); got != AccountsOffset {
		t.Fatalf("Size(0) = %d, want %d", got, AccountsOffset)
	}
	if got := Size(5); got != AccountsOffset+5*AccountSize {
		t.Fatalf("Size(5) = %d, want %d", got, AccountsOffset+5*AccountSize)
	}
}
