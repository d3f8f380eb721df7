package slab

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/th3noryx/riskengine/internal/engine"
)

var (
	ErrBadMagic   = errors.New("slab: bad magic")
	ErrBadVersion = errors.New("slab: unsupported version")
	ErrTooShort   = errors.New("slab: buffer too short")
)

// Marshal encodes the full engine state into the bit-exact slab layout.
// Fields not named by a fixed offset constant are packed
// sequentially, 8-byte aligned, into the engine-state section ahead of the
// bitmap offset; the section is zero-padded out to BitmapOffsetInEngine so
// the bitmap and account array land at their mandated fixed offsets
// regardless of how many engine-state fields precede them.
func Marshal(s *engine.EngineState) ([]byte, error) {
	size := Size(len(s.Accounts))
	buf := make([]byte, size)

	writeHeader(buf, s)
	writeConfig(buf[ConfigOffset:ConfigOffset+ConfigSize], s)
	writeEngineScalars(buf[EngineOffset:BitmapOffset], s)
	writeBitmap(buf[BitmapOffset:AccountsOffset], s.Bitmap)

	for i := range s.Accounts {
		off := AccountsOffset + i*AccountSize
		writeAccount(buf[off:off+AccountSize], &s.Accounts[i])
	}

	return buf, nil
}

// Unmarshal validates the magic/version header and decodes buf back into
// an EngineState. The magic and version are checked on every load — a
// mismatch means the on-disk slab predates a layout change and must not
// be interpreted as the current shape.
func Unmarshal(buf []byte) (*engine.EngineState, error) {
	if len(buf) < HeaderSize+ConfigSize {
		return nil, ErrTooShort
	}
	if binary.LittleEndian.Uint64(buf[0:8]) != Magic {
		return nil, ErrBadMagic
	}
	if binary.LittleEndian.Uint32(buf[8:12]) != Version {
		return nil, ErrBadVersion
	}
	if len(buf) < BitmapOffset {
		return nil, ErrTooShort
	}

	s := &engine.EngineState{}
	readHeader(buf, s)
	readConfig(buf[ConfigOffset:ConfigOffset+ConfigSize], s)
	readEngineScalars(buf[EngineOffset:BitmapOffset], s)

	if len(buf) < AccountsOffset {
		return nil, ErrTooShort
	}
	bitmapLen := len(buf[BitmapOffset:AccountsOffset])
	n := (len(buf) - AccountsOffset) / AccountSize
	if n > bitmapLen {
		n = bitmapLen
	}
	s.Bitmap = readBitmap(buf[BitmapOffset:AccountsOffset], n)
	s.Accounts = make([]engine.Account, n)
	for i := 0; i < n; i++ {
		off := AccountsOffset + i*AccountSize
		if off+AccountSize > len(buf) {
			return nil, ErrTooShort
		}
		readAccount(buf[off:off+AccountSize], &s.Accounts[i])
	}

	return s, nil
}

func writeHeader(buf []byte, s *engine.EngineState) {
	binary.LittleEndian.PutUint64(buf[0:8], Magic)
	binary.LittleEndian.PutUint32(buf[8:12], Version)
	copy(buf[16:32], s.Admin[:])
	copy(buf[32:48], s.OracleAuthority[:])
	// buf[48:72] reserved (nonce / threshold-slot), left zero.
}

func readHeader(buf []byte, s *engine.EngineState) {
	copy(s.Admin[:], buf[16:32])
	copy(s.OracleAuthority[:], buf[32:48])
}

func writeConfig(buf []byte, s *engine.EngineState) {
	cfg := &s.Config
	copy(buf[0:16], cfg.CollateralMint[:])
	copy(buf[16:32], cfg.Vault[:])
	copy(buf[32:48], cfg.OracleID[:])
	buf[48] = byte(cfg.OracleFeedKind)
	putBool(buf[49:50], cfg.Invert)
	binary.LittleEndian.PutUint64(buf[56:64], uint64(cfg.MaxStalenessSlots))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(cfg.ConfFilterBps))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(cfg.UnitScale))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(cfg.Funding.HorizonSlots))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(cfg.Funding.KBps))
	binary.LittleEndian.PutUint64(buf[96:104], uint64(cfg.Funding.InvScaleNotionalE6))
	binary.LittleEndian.PutUint64(buf[104:112], uint64(cfg.Funding.MaxPremiumBps))
	binary.LittleEndian.PutUint64(buf[112:120], uint64(cfg.Funding.MaxBpsPerSlot))
	binary.LittleEndian.PutUint64(buf[120:128], uint64(cfg.Threshold.Floor))
	binary.LittleEndian.PutUint64(buf[128:136], uint64(cfg.Threshold.RiskBps))
	binary.LittleEndian.PutUint64(buf[136:144], uint64(cfg.Threshold.UpdateInterval))
	binary.LittleEndian.PutUint64(buf[144:152], uint64(cfg.Threshold.Step))
	binary.LittleEndian.PutUint64(buf[152:160], uint64(cfg.Threshold.AlphaE6))
	binary.LittleEndian.PutUint64(buf[160:168], uint64(cfg.Threshold.Min))
	binary.LittleEndian.PutUint64(buf[168:176], uint64(cfg.Threshold.Max))
	binary.LittleEndian.PutUint64(buf[176:184], uint64(cfg.Threshold.MinStep))
	binary.LittleEndian.PutUint64(buf[184:192], uint64(cfg.OraclePriceCapE2Bps))
}

func readConfig(buf []byte, s *engine.EngineState) {
	cfg := &s.Config
	copy(cfg.CollateralMint[:], buf[0:16])
	copy(cfg.Vault[:], buf[16:32])
	copy(cfg.OracleID[:], buf[32:48])
	cfg.OracleFeedKind = engine.FeedKind(buf[48])
	cfg.Invert = getBool(buf[49:50])
	cfg.MaxStalenessSlots = int64(binary.LittleEndian.Uint64(buf[56:64]))
	cfg.ConfFilterBps = int64(binary.LittleEndian.Uint64(buf[64:72]))
	cfg.UnitScale = int64(binary.LittleEndian.Uint64(buf[72:80]))
	cfg.Funding.HorizonSlots = int64(binary.LittleEndian.Uint64(buf[80:88]))
	cfg.Funding.KBps = int64(binary.LittleEndian.Uint64(buf[88:96]))
	cfg.Funding.InvScaleNotionalE6 = int64(binary.LittleEndian.Uint64(buf[96:104]))
	cfg.Funding.MaxPremiumBps = int64(binary.LittleEndian.Uint64(buf[104:112]))
	cfg.Funding.MaxBpsPerSlot = int64(binary.LittleEndian.Uint64(buf[112:120]))
	cfg.Threshold.Floor = int64(binary.LittleEndian.Uint64(buf[120:128]))
	cfg.Threshold.RiskBps = int64(binary.LittleEndian.Uint64(buf[128:136]))
	cfg.Threshold.UpdateInterval = int64(binary.LittleEndian.Uint64(buf[136:144]))
	cfg.Threshold.Step = int64(binary.LittleEndian.Uint64(buf[144:152]))
	cfg.Threshold.AlphaE6 = int64(binary.LittleEndian.Uint64(buf[152:160]))
	cfg.Threshold.Min = int64(binary.LittleEndian.Uint64(buf[160:168]))
	cfg.Threshold.Max = int64(binary.LittleEndian.Uint64(buf[168:176]))
	cfg.Threshold.MinStep = int64(binary.LittleEndian.Uint64(buf[176:184]))
	cfg.OraclePriceCapE2Bps = int64(binary.LittleEndian.Uint64(buf[184:192]))
}

// writeEngineScalars packs the engine state + risk params scalar fields
// sequentially at the front of the engine section; the remainder up to
// BitmapOffsetInEngine is reserved (ADL scratch / pending socialization
// buckets / cursor padding) and left zeroed.
func writeEngineScalars(buf []byte, s *engine.EngineState) {
	if len(buf) < 300 {
		panic(fmt.Sprintf("slab: engine section too small: %d", len(buf)))
	}
	p := s.Params
	off := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[off:off+8], v); off += 8 }
	putI64 := func(v int64) { putU64(uint64(v)) }

	putI64(p.WarmupPeriodSlots)
	putI64(p.MaintenanceMarginBps)
	putI64(p.InitialMarginBps)
	putI64(p.TradingFeeBps)
	putI64(int64(p.MaxAccounts))
	putI64(p.NewAccountFee)
	putI64(p.RiskReductionThreshold)
	putI64(p.MaintenanceFeePerSlot)
	putI64(p.MaxCrankStalenessSlots)
	putI64(p.LiquidationFeeBps)
	putI64(p.LiquidationFeeCap)
	putI64(p.LiquidationBufferBps)
	putI64(p.MinLiquidationAbs)
	putI64(p.MaxExecPriceDeviationBps)

	putU64(s.Vault)
	putU64(s.Insurance.Balance)
	putU64(s.Insurance.FeeRevenue)
	putI64(s.CurrentSlot)
	putI64(s.FundingIndexQpbE6)
	putI64(s.LastFundingSlot)
	putU64(s.LossAccum)
	putBool(buf[off:off+1], s.RiskReductionOnly)
	off++
	putBool(buf[off:off+1], s.WarmupPaused)
	off++
	off += 6 // alignment pad to the next 8-byte boundary
	putI64(s.LastCrankSlot)
	putI64(s.LastFullSweepStartSlot)
	putI64(s.LastFullSweepCompletedSlot)
	putU64(s.TotalOpenInterest)
	putI64(s.WarmedPosTotal)
	putI64(s.WarmedNegTotal)
	putI64(s.WarmupInsuranceReserved)
	putI64(s.CrankHaircutSnapshotE6)
	putU64(uint64(s.CrankStep))
	putU64(uint64(s.LiqCursor))
	putU64(uint64(s.GcCursor))
	putI64(s.LastEffectivePriceE6)
	putU64(s.LifetimeTrades)
	putU64(s.LifetimeLiquidations)
}

func readEngineScalars(buf []byte, s *engine.EngineState) {
	p := &s.Params
	off := 0
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[off : off+8]); off += 8; return v }
	getI64 := func() int64 { return int64(getU64()) }

	p.WarmupPeriodSlots = getI64()
	p.MaintenanceMarginBps = getI64()
	p.InitialMarginBps = getI64()
	p.TradingFeeBps = getI64()
	p.MaxAccounts = int(getI64())
	p.NewAccountFee = getI64()
	p.RiskReductionThreshold = getI64()
	p.MaintenanceFeePerSlot = getI64()
	p.MaxCrankStalenessSlots = getI64()
	p.LiquidationFeeBps = getI64()
	p.LiquidationFeeCap = getI64()
	p.LiquidationBufferBps = getI64()
	p.MinLiquidationAbs = getI64()
	p.MaxExecPriceDeviationBps = getI64()

	s.Vault = getU64()
	s.Insurance.Balance = getU64()
	s.Insurance.FeeRevenue = getU64()
	s.CurrentSlot = getI64()
	s.FundingIndexQpbE6 = getI64()
	s.LastFundingSlot = getI64()
	s.LossAccum = getU64()
	s.RiskReductionOnly = getBool(buf[off : off+1])
	off++
	s.WarmupPaused = getBool(buf[off : off+1])
	off++
	off += 6
	s.LastCrankSlot = getI64()
	s.LastFullSweepStartSlot = getI64()
	s.LastFullSweepCompletedSlot = getI64()
	s.TotalOpenInterest = getU64()
	s.WarmedPosTotal = getI64()
	s.WarmedNegTotal = getI64()
	s.WarmupInsuranceReserved = getI64()
	s.CrankHaircutSnapshotE6 = getI64()
	s.CrankStep = int(getU64())
	s.LiqCursor = int(getU64())
	s.GcCursor = int(getU64())
	s.LastEffectivePriceE6 = getI64()
	s.LifetimeTrades = getU64()
	s.LifetimeLiquidations = getU64()
}

func writeBitmap(buf []byte, bitmap []bool) {
	for i, occupied := range bitmap {
		if i >= len(buf) {
			break
		}
		if occupied {
			buf[i] = 1
		}
	}
}

func readBitmap(buf []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = buf[i] != 0
	}
	return out
}

func writeAccount(buf []byte, a *engine.Account) {
	buf[0] = byte(a.Kind)
	copy(buf[8:24], a.Owner[:])
	copy(buf[24:40], a.AccountID[:])
	binary.LittleEndian.PutUint64(buf[40:48], a.Capital)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(a.Pnl))
	binary.LittleEndian.PutUint64(buf[56:64], a.ReservedPnl)
	binary.LittleEndian.PutUint64(buf[64:72], uint64(a.WarmupStartedAtSlot))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(a.WarmupSlopePerStep))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(a.PositionSize))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(a.EntryPriceE6))
	binary.LittleEndian.PutUint64(buf[96:104], uint64(a.FundingIndexSnapshot))
	copy(buf[104:120], a.MatcherProgram[:])
	copy(buf[120:136], a.MatcherContext[:])
	binary.LittleEndian.PutUint64(buf[136:144], uint64(a.FeeCredits))
	binary.LittleEndian.PutUint64(buf[144:152], uint64(a.LastFeeSlot))
	// buf[152:248] reserved for future fields.
}

func readAccount(buf []byte, a *engine.Account) {
	a.Kind = engine.AccountKind(buf[0])
	copy(a.Owner[:], buf[8:24])
	copy(a.AccountID[:], buf[24:40])
	a.Capital = binary.LittleEndian.Uint64(buf[40:48])
	a.Pnl = int64(binary.LittleEndian.Uint64(buf[48:56]))
	a.ReservedPnl = binary.LittleEndian.Uint64(buf[56:64])
	a.WarmupStartedAtSlot = int64(binary.LittleEndian.Uint64(buf[64:72]))
	a.WarmupSlopePerStep = int64(binary.LittleEndian.Uint64(buf[72:80]))
	a.PositionSize = int64(binary.LittleEndian.Uint64(buf[80:88]))
	a.EntryPriceE6 = int64(binary.LittleEndian.Uint64(buf[88:96]))
	a.FundingIndexSnapshot = int64(binary.LittleEndian.Uint64(buf[96:104]))
	copy(a.MatcherProgram[:], buf[104:120])
	copy(a.MatcherContext[:], buf[120:136])
	a.FeeCredits = int64(binary.LittleEndian.Uint64(buf[136:144]))
	a.LastFeeSlot = int64(binary.LittleEndian.Uint64(buf[144:152]))
}

func putBool(buf []byte, v bool) {
	if v {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
}

func getBool(buf []byte) bool {
	return buf[0] != 0
}
