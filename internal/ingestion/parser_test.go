package ingestion_test

import (
	"github.com/th3noryx/riskengine/internal/event"
	"github.com/th3noryx/riskengine/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDepositInitiated(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDT",
		"amount":       int64(1_000_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositInitiated")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	di, ok := evt.(*event.DepositInitiated)
	if !ok {
		t.Fatalf("expected *event.DepositInitiated, got %T", evt)
	}

	if di.Asset != "USDT" {
		t.Errorf("asset: got %s, want USDT", di.Asset)
	}
	if di.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", di.Amount)
	}
}

func TestParseDepositConfirmed(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDT",
		"amount":       int64(2_000_000),
		"sequence":     int64(2),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dc, ok := evt.(*event.DepositConfirmed)
	if !ok {
		t.Fatalf("expected *event.DepositConfirmed, got %T", evt)
	}

	if dc.Amount != 2_000_000 {
		t.Errorf("amount: got %d, want 2_000_000", dc.Amount)
	}
	if dc.EventType() != event.EventTypeDepositConfirmed {
		t.Errorf("event type: got %v, want DepositConfirmed", dc.EventType())
	}
}

func TestParseWithdrawalRequested(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "550e8400-e29b-41d4-a716-446655440000",
		"user_id":       "660e8400-e29b-41d4-a716-446655440001",
		"asset":         "USDT",
		"amount":        int64(500_000),
		"sequence":      int64(3),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawalRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wr, ok := evt.(*event.WithdrawalRequested)
	if !ok {
		t.Fatalf("expected *event.WithdrawalRequested, got %T", evt)
	}
	if wr.Amount != 500_000 {
		t.Errorf("amount: got %d, want 500_000", wr.Amount)
	}
}

func TestParseWithdrawalRejected_CarriesReason(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "550e8400-e29b-41d4-a716-446655440000",
		"user_id":       "660e8400-e29b-41d4-a716-446655440001",
		"asset":         "USDT",
		"amount":        int64(500_000),
		"sequence":      int64(4),
		"timestamp_us":  int64(1700000000000000),
		"reason":        "insufficient_funds",
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WithdrawalRejected")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wr, ok := evt.(*event.WithdrawalRejected)
	if !ok {
		t.Fatalf("expected *event.WithdrawalRejected, got %T", evt)
	}
	if wr.Reason != "insufficient_funds" {
		t.Errorf("reason: got %s, want insufficient_funds", wr.Reason)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "not-a-uuid",
		"user_id":      "also-not-a-uuid",
		"asset":        "USDT",
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
