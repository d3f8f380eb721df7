package ingestion

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/engine"
)

// Tag is the instruction discriminator byte.
type Tag byte

const (
	TagInitMarket        Tag = 0
	TagInitLP             Tag = 1
	TagInitUser           Tag = 2
	TagDeposit            Tag = 3
	TagWithdraw           Tag = 4
	TagTradeNoCPI         Tag = 5
	TagTradeCPI           Tag = 6
	TagKeeperCrank        Tag = 7
	TagLiquidate          Tag = 8
	TagTopUpInsurance     Tag = 9
	TagCloseAccount       Tag = 10
	TagSetRiskThreshold   Tag = 11
	TagPushOraclePrice    Tag = 12
	TagSetOracleAuthority Tag = 13
	TagUpdateConfig       Tag = 14
	TagSetMaintenanceFee  Tag = 15
	TagCloseSlab          Tag = 16
)

var ErrUnknownTag = errors.New("ingestion: unknown instruction tag")

// Instruction is any of the decoded instruction argument structs. Every
// implementation's Tag() matches the discriminator byte it was decoded
// from — callers dispatch on a type switch, not on a separately carried
// tag field, so the two can never disagree.
type Instruction interface {
	Tag() Tag
}

type InitMarketInstr struct {
	Admin    uuid.UUID
	OracleID uuid.UUID
	Config   engine.MarketConfig
	Params   engine.RiskParams
}

func (InitMarketInstr) Tag() Tag { return TagInitMarket }

type InitLPInstr struct {
	MatcherProgram uuid.UUID
	MatcherContext uuid.UUID
	FeePayment     uint64
}

func (InitLPInstr) Tag() Tag { return TagInitLP }

type InitUserInstr struct {
	FeePayment uint64
}

func (InitUserInstr) Tag() Tag { return TagInitUser }

type DepositInstr struct {
	UserIdx uint16
	Amount  uint64
}

func (DepositInstr) Tag() Tag { return TagDeposit }

type WithdrawInstr struct {
	UserIdx uint16
	Amount  uint64
}

func (WithdrawInstr) Tag() Tag { return TagWithdraw }

// TradeInstr covers both TradeNoCPI and TradeCPI — the tag that produced
// it (carried in tag, not in a field) is what selects the direct matcher
// vs. a CPI matcher at dispatch time.
type TradeInstr struct {
	tag     Tag
	UserIdx uint16
	LPIdx   uint16
	Size    int64
}

func (t TradeInstr) Tag() Tag { return t.tag }

type KeeperCrankInstr struct {
	CallerIdx  uint16 // 65535 = permissionless
	AllowPanic bool
}

func (KeeperCrankInstr) Tag() Tag { return TagKeeperCrank }

type LiquidateInstr struct {
	TargetIdx uint16
}

func (LiquidateInstr) Tag() Tag { return TagLiquidate }

type TopUpInsuranceInstr struct {
	Amount uint64
}

func (TopUpInsuranceInstr) Tag() Tag { return TagTopUpInsurance }

type CloseAccountInstr struct {
	Idx uint16
}

func (CloseAccountInstr) Tag() Tag { return TagCloseAccount }

type SetRiskThresholdInstr struct {
	NewThreshold int64
}

func (SetRiskThresholdInstr) Tag() Tag { return TagSetRiskThreshold }

type PushOraclePriceInstr struct {
	PriceE6   int64
	Timestamp int64
}

func (PushOraclePriceInstr) Tag() Tag { return TagPushOraclePrice }

type SetOracleAuthorityInstr struct {
	NewAuthority uuid.UUID
}

func (SetOracleAuthorityInstr) Tag() Tag { return TagSetOracleAuthority }

type UpdateConfigInstr struct {
	Funding   engine.FundingParams
	Threshold engine.ThresholdParams
}

func (UpdateConfigInstr) Tag() Tag { return TagUpdateConfig }

type SetMaintenanceFeeInstr struct {
	NewFee int64
}

func (SetMaintenanceFeeInstr) Tag() Tag { return TagSetMaintenanceFee }

type CloseSlabInstr struct{}

func (CloseSlabInstr) Tag() Tag { return TagCloseSlab }

// cursor is a minimal bounds-checked little-endian reader over a byte
// slice, the same discriminator-byte-plus-LE-args encoding the core's
// own appendInt64LE hand-rolls for canonical hashing, just run in reverse.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) need(n int) error {
	if c.off+n > len(c.buf) {
		return fmt.Errorf("ingestion: instruction truncated at offset %d, need %d more bytes", c.off, n)
	}
	return nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off : c.off+2])
	c.off += 2
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off : c.off+8])
	c.off += 8
	return v, nil
}

func (c *cursor) i64() (int64, error) {
	v, err := c.u64()
	return int64(v), err
}

func (c *cursor) b() (bool, error) {
	if err := c.need(1); err != nil {
		return false, err
	}
	v := c.buf[c.off] != 0
	c.off++
	return v, nil
}

func (c *cursor) uuid() (uuid.UUID, error) {
	if err := c.need(16); err != nil {
		return uuid.UUID{}, err
	}
	var out uuid.UUID
	copy(out[:], c.buf[c.off:c.off+16])
	c.off += 16
	return out, nil
}

func (c *cursor) fundingParams() (engine.FundingParams, error) {
	var p engine.FundingParams
	var err error
	if p.HorizonSlots, err = c.i64(); err != nil {
		return p, err
	}
	if p.KBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.InvScaleNotionalE6, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaxPremiumBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaxBpsPerSlot, err = c.i64(); err != nil {
		return p, err
	}
	return p, nil
}

func (c *cursor) thresholdParams() (engine.ThresholdParams, error) {
	var p engine.ThresholdParams
	var err error
	if p.Floor, err = c.i64(); err != nil {
		return p, err
	}
	if p.RiskBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.UpdateInterval, err = c.i64(); err != nil {
		return p, err
	}
	if p.Step, err = c.i64(); err != nil {
		return p, err
	}
	if p.AlphaE6, err = c.i64(); err != nil {
		return p, err
	}
	if p.Min, err = c.i64(); err != nil {
		return p, err
	}
	if p.Max, err = c.i64(); err != nil {
		return p, err
	}
	if p.MinStep, err = c.i64(); err != nil {
		return p, err
	}
	return p, nil
}

func (c *cursor) marketConfig() (engine.MarketConfig, error) {
	var cfg engine.MarketConfig
	var err error
	if cfg.CollateralMint, err = c.uuid(); err != nil {
		return cfg, err
	}
	if cfg.Vault, err = c.uuid(); err != nil {
		return cfg, err
	}
	feedKind, err := c.u16()
	if err != nil {
		return cfg, err
	}
	cfg.OracleFeedKind = engine.FeedKind(feedKind)
	if cfg.MaxStalenessSlots, err = c.i64(); err != nil {
		return cfg, err
	}
	if cfg.ConfFilterBps, err = c.i64(); err != nil {
		return cfg, err
	}
	invert, err := c.b()
	if err != nil {
		return cfg, err
	}
	cfg.Invert = invert
	if cfg.UnitScale, err = c.i64(); err != nil {
		return cfg, err
	}
	if cfg.Funding, err = c.fundingParams(); err != nil {
		return cfg, err
	}
	if cfg.Threshold, err = c.thresholdParams(); err != nil {
		return cfg, err
	}
	if cfg.OraclePriceCapE2Bps, err = c.i64(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *cursor) riskParams() (engine.RiskParams, error) {
	var p engine.RiskParams
	var err error
	if p.WarmupPeriodSlots, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaintenanceMarginBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.InitialMarginBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.TradingFeeBps, err = c.i64(); err != nil {
		return p, err
	}
	maxAccounts, err := c.i64()
	if err != nil {
		return p, err
	}
	p.MaxAccounts = int(maxAccounts)
	if p.NewAccountFee, err = c.i64(); err != nil {
		return p, err
	}
	if p.RiskReductionThreshold, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaintenanceFeePerSlot, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaxCrankStalenessSlots, err = c.i64(); err != nil {
		return p, err
	}
	if p.LiquidationFeeBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.LiquidationFeeCap, err = c.i64(); err != nil {
		return p, err
	}
	if p.LiquidationBufferBps, err = c.i64(); err != nil {
		return p, err
	}
	if p.MinLiquidationAbs, err = c.i64(); err != nil {
		return p, err
	}
	if p.MaxExecPriceDeviationBps, err = c.i64(); err != nil {
		return p, err
	}
	return p, nil
}

// DecodeInstruction parses the discriminator byte plus little-endian
// arguments off a NATS message payload into a typed Instruction. This
// is the wire boundary's one entry point — cmd/riskengine's instruction
// dispatch loop (fed raw instr.* payloads by nats_subscriber.go) and the
// HTTP instruction handler in internal/server both decode through this
// before anything touches internal/riskengine.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("ingestion: empty instruction payload")
	}
	c := &cursor{buf: data, off: 1}
	tag := Tag(data[0])

	switch tag {
	case TagInitMarket:
		admin, err := c.uuid()
		if err != nil {
			return nil, err
		}
		oracleID, err := c.uuid()
		if err != nil {
			return nil, err
		}
		cfg, err := c.marketConfig()
		if err != nil {
			return nil, err
		}
		cfg.OracleID = oracleID
		params, err := c.riskParams()
		if err != nil {
			return nil, err
		}
		return InitMarketInstr{Admin: admin, OracleID: oracleID, Config: cfg, Params: params}, nil

	case TagInitLP:
		matcherProgram, err := c.uuid()
		if err != nil {
			return nil, err
		}
		matcherContext, err := c.uuid()
		if err != nil {
			return nil, err
		}
		fee, err := c.u64()
		if err != nil {
			return nil, err
		}
		return InitLPInstr{MatcherProgram: matcherProgram, MatcherContext: matcherContext, FeePayment: fee}, nil

	case TagInitUser:
		fee, err := c.u64()
		if err != nil {
			return nil, err
		}
		return InitUserInstr{FeePayment: fee}, nil

	case TagDeposit:
		idx, err := c.u16()
		if err != nil {
			return nil, err
		}
		amount, err := c.u64()
		if err != nil {
			return nil, err
		}
		return DepositInstr{UserIdx: idx, Amount: amount}, nil

	case TagWithdraw:
		idx, err := c.u16()
		if err != nil {
			return nil, err
		}
		amount, err := c.u64()
		if err != nil {
			return nil, err
		}
		return WithdrawInstr{UserIdx: idx, Amount: amount}, nil

	case TagTradeNoCPI, TagTradeCPI:
		userIdx, err := c.u16()
		if err != nil {
			return nil, err
		}
		lpIdx, err := c.u16()
		if err != nil {
			return nil, err
		}
		size, err := c.i64()
		if err != nil {
			return nil, err
		}
		return TradeInstr{tag: tag, UserIdx: userIdx, LPIdx: lpIdx, Size: size}, nil

	case TagKeeperCrank:
		callerIdx, err := c.u16()
		if err != nil {
			return nil, err
		}
		allowPanic, err := c.b()
		if err != nil {
			return nil, err
		}
		return KeeperCrankInstr{CallerIdx: callerIdx, AllowPanic: allowPanic}, nil

	case TagLiquidate:
		idx, err := c.u16()
		if err != nil {
			return nil, err
		}
		return LiquidateInstr{TargetIdx: idx}, nil

	case TagTopUpInsurance:
		amount, err := c.u64()
		if err != nil {
			return nil, err
		}
		return TopUpInsuranceInstr{Amount: amount}, nil

	case TagCloseAccount:
		idx, err := c.u16()
		if err != nil {
			return nil, err
		}
		return CloseAccountInstr{Idx: idx}, nil

	case TagSetRiskThreshold:
		threshold, err := c.i64()
		if err != nil {
			return nil, err
		}
		return SetRiskThresholdInstr{NewThreshold: threshold}, nil

	case TagPushOraclePrice:
		price, err := c.i64()
		if err != nil {
			return nil, err
		}
		ts, err := c.i64()
		if err != nil {
			return nil, err
		}
		return PushOraclePriceInstr{PriceE6: price, Timestamp: ts}, nil

	case TagSetOracleAuthority:
		authority, err := c.uuid()
		if err != nil {
			return nil, err
		}
		return SetOracleAuthorityInstr{NewAuthority: authority}, nil

	case TagUpdateConfig:
		funding, err := c.fundingParams()
		if err != nil {
			return nil, err
		}
		threshold, err := c.thresholdParams()
		if err != nil {
			return nil, err
		}
		return UpdateConfigInstr{Funding: funding, Threshold: threshold}, nil

	case TagSetMaintenanceFee:
		fee, err := c.i64()
		if err != nil {
			return nil, err
		}
		return SetMaintenanceFeeInstr{NewFee: fee}, nil

	case TagCloseSlab:
		return CloseSlabInstr{}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}
