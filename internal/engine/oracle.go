package engine

// Feed is the external price feed read by the oracle adapter.
// Two flavors exist in the wild and are auto-detected by the owner of the
// feed account; both are normalized to this shape before the adapter logic
// runs, the same detect-then-normalize shape internal/ingestion/parser.go
// uses for envelope decoding.
type Feed struct {
	PriceE6     int64
	Exponent    int32
	PublishSlot int64
	Conf        int64
}

// OraclePrice reads the current price from feed, applying staleness,
// confidence, inversion, and unit-scale rules.
func OraclePrice(cfg *MarketConfig, feed Feed, nowSlot int64) (int64, error) {
	if feed.PriceE6 <= 0 {
		return 0, ErrOracleInvalidPrice
	}
	if nowSlot-feed.PublishSlot > cfg.MaxStalenessSlots {
		return 0, ErrOracleStale
	}
	if feed.Conf*BpsDenom/feed.PriceE6 > cfg.ConfFilterBps {
		return 0, ErrOracleDeviation
	}

	price := feed.PriceE6
	if cfg.Invert {
		const numerator = int64(1_000_000_000_000)
		price = numerator / price
	}
	if cfg.UnitScale != 0 {
		price = mulDiv(price, cfg.UnitScale, 1)
	}
	return price, nil
}

// PushOraclePrice implements the authority-push path with the per-update
// circuit breaker. The first push after market init is unclamped only in
// the sense that NewMarket seeds LastEffectivePriceE6 from the feed
// rather than leaving it at zero. Every push thereafter is clamped.
func PushOraclePrice(s *EngineState, newPriceE6 int64, nowSlot int64) error {
	if newPriceE6 <= 0 || newPriceE6 > MaxOraclePrice {
		return ErrOracleInvalidPrice
	}

	if s.LastEffectivePriceE6 != 0 {
		diff := absI64(newPriceE6 - s.LastEffectivePriceE6)
		// |new - last| / last <= cap_e2bps / E2BpsDenom, cross-multiplied
		// to avoid a division.
		lhs := mulDiv(diff, E2BpsDenom, 1)
		rhs := mulDiv(s.LastEffectivePriceE6, s.Config.OraclePriceCapE2Bps, 1)
		if lhs > rhs {
			return ErrOraclePriceCapExceeded
		}
	}

	s.LastEffectivePriceE6 = newPriceE6
	s.CurrentSlot = nowSlot
	return nil
}
