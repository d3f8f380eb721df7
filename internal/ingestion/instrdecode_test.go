package ingestion

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

func appendU16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return append(buf, b...)
}

func appendU64(buf []byte, v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return append(buf, b...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func TestDecodeDeposit(t *testing.T) {
	payload := []byte{byte(TagDeposit)}
	payload = appendU16(payload, 7)
	payload = appendU64(payload, 1_000_000)

	instr, err := DecodeInstruction(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, ok := instr.(DepositInstr)
	if !ok {
		t.Fatalf("expected DepositInstr, got %T", instr)
	}
	if d.UserIdx != 7 || d.Amount != 1_000_000 {
		t.Fatalf("got %+v", d)
	}
	if d.Tag() != TagDeposit {
		t.Fatalf("tag = %d, want %d", d.Tag(), TagDeposit)
	}
}

func TestDecodeTradeDistinguishesNoCPIFromCPI(t *testing.T) {
	build := func(tag Tag) []byte {
		payload := []byte{byte(tag)}
		payload = appendU16(payload, 1)
		payload = appendU16(payload, 2)
		payload = appendI64(payload, -500_000)
		return payload
	}

	noCPI, err := DecodeInstruction(build(TagTradeNoCPI))
	if err != nil {
		t.Fatalf("decode no-cpi: %v", err)
	}
	cpi, err := DecodeInstruction(build(TagTradeCPI))
	if err != nil {
		t.Fatalf("decode cpi: %v", err)
	}

	if noCPI.Tag() != TagTradeNoCPI {
		t.Fatalf("no-cpi tag = %d, want %d", noCPI.Tag(), TagTradeNoCPI)
	}
	if cpi.Tag() != TagTradeCPI {
		t.Fatalf("cpi tag = %d, want %d", cpi.Tag(), TagTradeCPI)
	}

	nt := noCPI.(TradeInstr)
	if nt.UserIdx != 1 || nt.LPIdx != 2 || nt.Size != -500_000 {
		t.Fatalf("got %+v", nt)
	}
}

func TestDecodeKeeperCrankPermissionless(t *testing.T) {
	payload := []byte{byte(TagKeeperCrank)}
	payload = appendU16(payload, 65535)
	payload = append(payload, 1) // allow_panic = true

	instr, err := DecodeInstruction(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	kc, ok := instr.(KeeperCrankInstr)
	if !ok {
		t.Fatalf("expected KeeperCrankInstr, got %T", instr)
	}
	if kc.CallerIdx != 65535 || !kc.AllowPanic {
		t.Fatalf("got %+v", kc)
	}
}

func TestDecodeSetOracleAuthority(t *testing.T) {
	newAuthority := uuid.New()
	payload := []byte{byte(TagSetOracleAuthority)}
	payload = append(payload, newAuthority[:]...)

	instr, err := DecodeInstruction(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	soa, ok := instr.(SetOracleAuthorityInstr)
	if !ok {
		t.Fatalf("expected SetOracleAuthorityInstr, got %T", instr)
	}
	if soa.NewAuthority != newAuthority {
		t.Fatalf("authority mismatch: got %s, want %s", soa.NewAuthority, newAuthority)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := DecodeInstruction([]byte{255})
	if err == nil {
		t.Fatal("expected an error for an unknown tag")
	}
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	// Deposit needs 2+8 bytes of args; give it only 3.
	payload := []byte{byte(TagDeposit), 0x01, 0x02, 0x03}
	if _, err := DecodeInstruction(payload); err == nil {
		t.Fatal("expected a truncation error")
	}
}

func TestDecodeEmptyPayloadErrors(t *testing.T) {
	if _, err := DecodeInstruction(nil); err == nil {
		t.Fatal("expected an error for an empty payload")
	}
}

func TestDecodeInitMarketRoundTripsConfigFields(t *testing.T) {
	admin := uuid.New()
	oracleID := uuid.New()
	collateralMint := uuid.New()
	vault := uuid.New()

	payload := []byte{byte(TagInitMarket)}
	payload = append(payload, admin[:]...)
	payload = append(payload, oracleID[:]...)

	// MarketConfig
	payload = append(payload, collateralMint[:]...)
	payload = append(payload, vault[:]...)
	payload = appendU16(payload, 1) // OracleFeedKind = FeedKindB
	payload = appendI64(payload, 1000)
	payload = appendI64(payload, 50)
	payload = append(payload, 1) // Invert = true
	payload = appendI64(payload, 1_000_000)
	for i := 0; i < 5; i++ { // FundingParams: 5 int64 fields
		payload = appendI64(payload, int64(i))
	}
	for i := 0; i < 8; i++ { // ThresholdParams: 8 int64 fields
		payload = appendI64(payload, int64(i*10))
	}
	payload = appendI64(payload, 10_000) // OraclePriceCapE2Bps

	// RiskParams: 13 int64 fields + 1 int64-encoded MaxAccounts
	for i := 0; i < 14; i++ {
		payload = appendI64(payload, int64(100+i))
	}

	instr, err := DecodeInstruction(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	im, ok := instr.(InitMarketInstr)
	if !ok {
		t.Fatalf("expected InitMarketInstr, got %T", instr)
	}
	if im.Admin != admin {
		t.Errorf("admin mismatch")
	}
	if im.Config.OracleID != oracleID {
		t.Errorf("config.OracleID should be set from the separate oracle_id arg")
	}
	if im.Config.CollateralMint != collateralMint || im.Config.Vault != vault {
		t.Errorf("collateral/vault mismatch")
	}
	if !im.Config.Invert {
		t.Errorf("invert mismatch")
	}
	if im.Config.OraclePriceCapE2Bps != 10_000 {
		t.Errorf("oracle price cap mismatch: got %d", im.Config.OraclePriceCapE2Bps)
	}
	if im.Params.MaxAccounts != 104 {
		t.Errorf("max accounts mismatch: got %d", im.Params.MaxAccounts)
	}
}
