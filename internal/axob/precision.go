package axob

import "go.uber.org/zap"

// Numeric Normalizer: converts exchange-native price/qty precision to
// the engine's uniform internal precision, and renders internal values
// back out to exchange precision for snapshot emission (§4.9).
//
// Exchange precisions: SZ price carries 4 decimals, qty 2 decimals; SH
// price carries 3 decimals, qty 3 decimals. Internal precision is 2
// decimals for stock, 3 decimals for fund/convertible-bond (KZZ).

// internalPriceDecimals returns the internal decimal scale for an
// instrument type, per §4.9's "stock 2dp, fund/KZZ 3dp" rule.
func internalPriceDecimals(it InstrumentType) int {
	switch it {
	case InstrumentFund, InstrumentBond:
		return 3
	default:
		return 2
	}
}

func pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}

// ToInternalPrice converts an exchange-precision price to internal
// precision, returning whether the conversion was lossy (the exchange
// quantum did not divide evenly into the internal one — §7 precision
// mismatch, logged but accepted by the caller).
func ToInternalPrice(log *zap.Logger, source SecurityIDSource, it InstrumentType, exchangePrice int64) (int64, bool) {
	exchangeDecimals := 4
	if source == SourceSSE {
		exchangeDecimals = 3
	}
	internalDecimals := internalPriceDecimals(it)
	if internalDecimals >= exchangeDecimals {
		return exchangePrice * pow10(internalDecimals-exchangeDecimals), false
	}
	divisor := pow10(exchangeDecimals - internalDecimals)
	lossy := exchangePrice%divisor != 0
	if lossy && log != nil {
		log.Warn("price precision mismatch, truncating",
			zap.Int64("exchange_price", exchangePrice),
			zap.Int("exchange_decimals", exchangeDecimals),
			zap.Int("internal_decimals", internalDecimals),
		)
	}
	return exchangePrice / divisor, lossy
}

// FromInternalPrice converts an internal-precision price back to the
// precision a snapshot must be emitted in (§4.9 "Price precision out").
func FromInternalPrice(source SecurityIDSource, it InstrumentType, internalPrice int64) int64 {
	internalDecimals := internalPriceDecimals(it)
	outDecimals := 6
	if source == SourceSSE {
		outDecimals = 3
	}
	if outDecimals >= internalDecimals {
		return internalPrice * pow10(outDecimals-internalDecimals)
	}
	return internalPrice / pow10(internalDecimals-outDecimals)
}

// PrevClosePxToOut renders PrevClosePx at 4 decimals on SZ (the wire's
// native 4dp even though the snapshot body is 6dp) and 3 on SH.
func PrevClosePxToOut(source SecurityIDSource, internalPrevClose int64, it InstrumentType) int64 {
	internalDecimals := internalPriceDecimals(it)
	outDecimals := 4
	if source == SourceSSE {
		outDecimals = 3
	}
	if outDecimals >= internalDecimals {
		return internalPrevClose * pow10(outDecimals-internalDecimals)
	}
	return internalPrevClose / pow10(internalDecimals-outDecimals)
}

// ClipPrice enforces the 25-bit price budget, flagging the caller that
// the value was clipped (§7 bitwidth overflow).
func ClipPrice(log *zap.Logger, p int64) (int64, bool) {
	if p > MaxPrice {
		if log != nil {
			log.Error("price bitwidth overflow, clipping", zap.Int64("price", p), zap.Int64("max", MaxPrice))
		}
		return MaxPrice, true
	}
	if p < 0 {
		if log != nil {
			log.Error("negative price clipped to zero", zap.Int64("price", p))
		}
		return 0, true
	}
	return p, false
}

// ClipQty enforces the 30-bit order qty budget.
func ClipQty(log *zap.Logger, q int64) (int64, bool) {
	if q > MaxQty {
		if log != nil {
			log.Error("qty bitwidth overflow, clipping", zap.Int64("qty", q), zap.Int64("max", MaxQty))
		}
		return MaxQty, true
	}
	return q, false
}

// ClipLevelQty enforces the 38-bit level accumulator budget.
func ClipLevelQty(log *zap.Logger, q int64) (int64, bool) {
	if q > MaxLevelQty {
		if log != nil {
			log.Error("level qty bitwidth overflow, clipping", zap.Int64("qty", q), zap.Int64("max", MaxLevelQty))
		}
		return MaxLevelQty, true
	}
	return q, false
}

// RoundWeighted implements the integer weighted-average rounding rule
// from Design Note §9: round(v/s) = (2v/s + 1) / 2, computed purely in
// integers as ((v<<1)/s + 1) >> 1.
func RoundWeighted(value, size int64) int64 {
	if size == 0 {
		return 0
	}
	return (((value << 1) / size) + 1) >> 1
}

// TradeValueMultiplierShift returns the internal-precision-aware
// multiplier applied to Price*Qty when accumulating TotalValueTrade,
// per §4.4's "value uses precision rules" table. The shift is expressed
// as a scale divisor since accumulation always happens at a precision
// matching internal price-decimals + qty-decimals (qty is always
// integer-unit at internal precision in this engine, so no conversion
// is required beyond the price scale itself); kept as a named seam so
// the four precision combinations in §4.4 stay documented at the call
// site in engine.go rather than inlined as magic numbers.
func TradeValueMultiplierShift(source SecurityIDSource, it InstrumentType) int64 {
	// Internal price already carries internalPriceDecimals(it) digits;
	// value = price * qty at that same scale, so no extra multiplier is
	// needed once both operands are internal-precision integers. This
	// function exists to document that §4.4's 2x2/2x3/3x2/3x3 decimal
	// table collapses to a no-op once values have been normalized by
	// ToInternalPrice, and to give a single seam if a future precision
	// variant needs one.
	return 1
}

// --- §4.9 Timestamp utilities ---

// CurrentIncTick derives the 28-bit internal tick from a raw
// TransactTime, per source: SZ timestamps are nanoseconds-of-day and
// are reduced to HHMMSSms/10 (10ms granularity); SH timestamps already
// arrive as HHMMSSms and are used as-is (1ms granularity).
func CurrentIncTick(source SecurityIDSource, transactTime int64) int64 {
	var tick int64
	if source == SourceSZSE {
		tick = (transactTime / 1_000_000) / 10
	} else {
		tick = transactTime
	}
	if tick > MaxIncTick {
		tick = MaxIncTick
	}
	return tick
}

// SnapshotTimestampOut renders the internal tick into the timestamp a
// snapshot is emitted with, per §4.9's three-way split.
func SnapshotTimestampOut(source SecurityIDSource, it InstrumentType, yymmdd uint32, tick int64) int64 {
	if source == SourceSZSE {
		return int64(yymmdd)*1_000_000_000 + tick*10
	}
	switch it {
	case InstrumentBond:
		return tick
	default:
		return tick / 100
	}
}
