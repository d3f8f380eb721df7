package riskengine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
)

func TestLpNetPositionFindsLP(t *testing.T) {
	s := &engine.EngineState{
		Accounts: []engine.Account{
			{Kind: engine.AccountKindUser, PositionSize: 500},
			{Kind: engine.AccountKindLP, MatcherProgram: uuid.New(), PositionSize: -500},
		},
		Bitmap: []bool{true, true},
	}

	if got := lpNetPosition(s); got != -500 {
		t.Fatalf("lpNetPosition = %d, want -500", got)
	}
}

func TestLpNetPositionNoLP(t *testing.T) {
	s := &engine.EngineState{
		Accounts: []engine.Account{{Kind: engine.AccountKindUser, PositionSize: 500}},
		Bitmap:   []bool{true},
	}

	if got := lpNetPosition(s); got != 0 {
		t.Fatalf("lpNetPosition = %d, want 0", got)
	}
}

func TestCrankStepNameCoversEveryStep(t *testing.T) {
	for step := 0; step < 16; step++ {
		if name := crankStepName(step); name == "unknown" {
			t.Errorf("step %d has no name", step)
		}
	}
	if name := crankStepName(16); name != "unknown" {
		t.Errorf("step 16 (out of range) = %q, want \"unknown\"", name)
	}
}

func TestFixedPriceSource(t *testing.T) {
	src := FixedPriceSource(1_500_000)
	price, err := src.PriceE6("any-market")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 1_500_000 {
		t.Fatalf("price = %d, want 1_500_000", price)
	}
}

func TestSlotClockAdvancesMonotonically(t *testing.T) {
	clock := NewSlotClock(1)
	first := clock.Now()
	second := clock.Now()
	if second < first {
		t.Fatalf("slot clock went backwards: %d then %d", first, second)
	}
}
