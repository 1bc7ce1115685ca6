package axob

import (
	"go.uber.org/zap"
)

// AddOrderMsg is the inbound add-order record (§6).
type AddOrderMsg struct {
	SeqNum       uint32
	Side         Side
	Type         OrderType
	Price        int64 // exchange precision
	Qty          int64
	TransactTime int64
	Phase        TradingPhaseMarket
}

// ExecutionMsg is the inbound execution record (§6).
type ExecutionMsg struct {
	BidSeqNum    uint32
	OfferSeqNum  uint32
	LastPx       int64 // exchange precision
	LastQty      int64
	ExecType     ExecType
	TransactTime int64
	Phase        TradingPhaseMarket
}

// CancelMsg is the inbound cancel record (SH order record with
// OrdType='D', or derived from an SZ ExecType='4' execution).
type CancelMsg struct {
	SeqNum       uint32
	TransactTime int64
	Phase        TradingPhaseMarket
}

// Engine is the per-instrument matching/reconstruction state machine
// (AXOB, §2 item 6). It owns every structure listed in §3 exclusively;
// the Multiplexer holds one Engine per subscribed SecurityID.
type Engine struct {
	Constants  Constants
	Aggregates Aggregates
	Cage       CageState
	Phase      TradingPhaseMarket

	Bids *LevelIndex
	Asks *LevelIndex

	Orders  *OrderIndex
	Illegal *IllegalIndex
	Holding HoldingSlot

	lastSeenSeq uint32
	haveSeen    bool

	OnSnapshot func(Snapshot)

	// ShowPotential, when set, fills zero-volume call-auction snapshots
	// from the live resting book instead of zero-filling them (§4.8b).
	ShowPotential bool

	Log *zap.Logger
}

// NewEngine constructs an idle engine for one instrument.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Bids:    NewLevelIndex(SideBid),
		Asks:    NewLevelIndex(SideAsk),
		Orders:  NewOrderIndex(),
		Illegal: NewIllegalIndex(),
		Log:     log,
	}
}

func (e *Engine) levelIndex(side Side) *LevelIndex {
	if side == SideBid {
		return e.Bids
	}
	return e.Asks
}

func (e *Engine) assertInvariants() {
	if bp, _, ok := e.Bids.Best(); ok {
		if ap, _, ok2 := e.Asks.Best(); ok2 {
			crossed := bp >= ap
			tradingNow := e.Phase == PhaseAMTrading || e.Phase == PhasePMTrading
			if crossed && tradingNow {
				panicInvariant(e.Constants.SecurityID, "crossed book during continuous trade: bid=%d ask=%d", bp, ap)
			}
		}
	}
	if e.Bids.hasBest {
		if qty, ok := e.Bids.Get(e.Bids.bestPrice); !ok || qty != e.Bids.bestQty {
			panicInvariant(e.Constants.SecurityID, "bid cached-best mismatch at %d", e.Bids.bestPrice)
		}
	}
	if e.Asks.hasBest {
		if qty, ok := e.Asks.Get(e.Asks.bestPrice); !ok || qty != e.Asks.bestQty {
			panicInvariant(e.Constants.SecurityID, "ask cached-best mismatch at %d", e.Asks.bestPrice)
		}
	}
	for p, q := range e.Bids.m {
		if q < 0 {
			panicInvariant(e.Constants.SecurityID, "negative bid level qty at %d", p)
		}
	}
	for p, q := range e.Asks.m {
		if q < 0 {
			panicInvariant(e.Constants.SecurityID, "negative ask level qty at %d", p)
		}
	}
}

// adoptPhaseHint applies a message's own TPM, per §4.1: once the
// engine is in VolatilityBreaking, per-message hints never change it.
func (e *Engine) adoptPhaseHint(hint TradingPhaseMarket) {
	if e.Phase == PhaseVolatilityBreaking {
		return
	}
	e.Phase = hint
}

// flushHolding inserts the held order into the book (if any) and emits
// a snapshot stamped with the holding order's own timestamp, per
// §4.2's "flush holding slot when a new order arrives" rule.
func (e *Engine) flushHolding() {
	if e.Holding.Empty() {
		return
	}
	o := e.Holding.Peek()
	e.insertOrderLevel(o.Side, o.Price, o.Qty, false)
	e.Orders.Put(o)
	e.Holding.Clear()
	e.emitTradingSnapshot(o.Timestamp)
}

// OnOrder is the top-level add-order entry point (§4.2).
func (e *Engine) OnOrder(msg AddOrderMsg) {
	if e.Constants.SecurityIDSource == SourceSZSE {
		if e.haveSeen && msg.SeqNum <= e.lastSeenSeq {
			e.Log.Warn("duplicate or out-of-order seq dropped",
				zap.Uint32("seq", msg.SeqNum), zap.Uint32("last_seen", e.lastSeenSeq))
			return
		}
		e.lastSeenSeq = msg.SeqNum
		e.haveSeen = true
	}

	e.flushHolding()
	e.adoptPhaseHint(msg.Phase)

	price, _ := ToInternalPrice(e.Log, e.Constants.SecurityIDSource, e.Constants.InstrumentType, msg.Price)
	price, priceClipped := ClipPrice(e.Log, price)
	if priceClipped && msg.Side == SideAsk && price == MaxPrice {
		e.Aggregates.AskWeightPxUncertain = true
	}
	qty, _ := ClipQty(e.Log, msg.Qty)

	o := &Order{
		SeqNum:    msg.SeqNum,
		Side:      msg.Side,
		Type:      msg.Type,
		Price:     price,
		Qty:       qty,
		Timestamp: msg.TransactTime,
	}

	switch msg.Type {
	case OrderTypeMarket:
		e.onMarketOrder(o)
	case OrderTypeSideOptimal:
		e.onSideOptimalOrder(o)
	default:
		e.onLimitOrder(o)
	}
}

// onMarketOrder implements §4.2's MARKET acceptance rule: only valid
// once a best price exists on either side; placed in the holding slot
// awaiting its matching execution.
func (e *Engine) onMarketOrder(o *Order) {
	_, _, hasBid := e.Bids.Best()
	_, _, hasAsk := e.Asks.Best()
	if !hasBid && !hasAsk {
		e.Log.Error("market order with no opposing book, ignored", zap.Uint32("seq", o.SeqNum))
		return
	}
	e.Holding.Set(o)
}

// onSideOptimalOrder converts a side-optimal order to a limit at the
// current same-side best, clamping to the far limit if no same-side
// price exists (§4.2).
func (e *Engine) onSideOptimalOrder(o *Order) {
	side := e.levelIndex(o.Side)
	if p, _, ok := side.Best(); ok {
		o.Price = p
	} else if o.Side == SideBid {
		o.Price = e.Constants.DnLimitPx
		o.Unknown = true
	} else {
		o.Price = e.Constants.UpLimitPx
		o.Unknown = true
	}
	e.onLimitOrder(o)
}

// onLimitOrder is §4.3's phase-branched routing.
func (e *Engine) onLimitOrder(o *Order) {
	switch e.Phase {
	case PhaseOpenCall, PhaseCloseCall:
		e.onLimitOrderCallAuction(o)
	default:
		e.onLimitOrderContinuous(o)
	}
}

func (e *Engine) onLimitOrderCallAuction(o *Order) {
	if e.IsChiNext() && !e.Constants.HasPriceLimit {
		if e.Phase == PhaseOpenCall {
			if o.Side == SideBid && o.Price > e.Constants.PrevClosePx*CYBEnvelopeMax {
				e.Illegal.Put(o)
				e.Log.Warn("order discarded by open-call envelope", zap.Uint32("seq", o.SeqNum))
				return
			}
		} else {
			lower := CYBCageLower(e.Aggregates.LastPx)
			upper := CYBCageUpper(e.Aggregates.LastPx)
			if o.Price < lower || o.Price > upper {
				e.Illegal.Put(o)
				e.Log.Warn("order discarded by close-call envelope", zap.Uint32("seq", o.SeqNum))
				return
			}
		}
	}
	e.insertOrderLevel(o.Side, o.Price, o.Qty, false)
	e.Orders.Put(o)
	e.Cage.BidWaitingForCage = false
	e.Cage.AskWaitingForCage = false
	e.emitTradingSnapshot(o.Timestamp)
}

func (e *Engine) onLimitOrderContinuous(o *Order) {
	if e.IsChiNext() {
		outside := false
		if o.Side == SideBid && o.Price > CYBCageUpper(e.Cage.BidRefPx) {
			if !e.Cage.HasBidOutide || o.Price > e.Cage.BidOutside.Price {
				if e.Cage.HasBidOutide {
					// The previous hidden extremum is superseded; its qty
					// stays pending behind the new, better-hidden level is
					// not modeled here (feed-rate-bounded edge case) — keep
					// the better price as the one extremum per §4.3.
				}
				e.Cage.BidOutside = PriceLevel{Price: o.Price, Qty: o.Qty}
				e.Cage.HasBidOutide = true
			} else {
				e.Cage.BidOutside.Qty += o.Qty
			}
			outside = true
		} else if o.Side == SideAsk && o.Price < CYBCageLower(e.Cage.AskRefPx) {
			if !e.Cage.HasAskOutide || o.Price < e.Cage.AskOutside.Price {
				e.Cage.AskOutside = PriceLevel{Price: o.Price, Qty: o.Qty}
				e.Cage.HasAskOutide = true
			} else {
				e.Cage.AskOutside.Qty += o.Qty
			}
			outside = true
		}
		if outside {
			e.Orders.Put(o)
			e.emitTradingSnapshot(o.Timestamp)
			return
		}
	}

	if e.Phase == PhaseVolatilityBreaking {
		e.insertOrderLevel(o.Side, o.Price, o.Qty, false)
		e.Orders.Put(o)
		e.emitTradingSnapshot(o.Timestamp)
		return
	}

	crosses := false
	if o.Side == SideBid {
		if bp, _, ok := e.Asks.Best(); ok && o.Price >= bp {
			crosses = true
		}
	} else {
		if bp, _, ok := e.Bids.Best(); ok && o.Price <= bp {
			crosses = true
		}
	}
	if crosses {
		e.Holding.Set(o)
		e.Cage.BidWaitingForCage = false
		e.Cage.AskWaitingForCage = false
		return
	}

	prevBest, _, hadBest := e.levelIndex(o.Side).Best()
	e.insertOrderLevel(o.Side, o.Price, o.Qty, false)
	e.Orders.Put(o)

	improved := !hadBest
	if hadBest {
		if o.Side == SideBid {
			improved = o.Price > prevBest
		} else {
			improved = o.Price < prevBest
		}
	}
	if improved {
		e.refreshCageRefs()
		if e.IsChiNext() {
			// A new best on one side moves the *other* side's reference
			// price (refreshAskRef keys off the best bid and vice versa),
			// so it is the opposite side's outside-cage candidate that may
			// now have moved inside the band.
			if o.Side == SideBid {
				e.Cage.AskWaitingForCage = true
			} else {
				e.Cage.BidWaitingForCage = true
			}
		}
	}
	if e.IsChiNext() {
		e.enterCage()
	}
	e.emitTradingSnapshot(o.Timestamp)
}

// insertOrderLevel adds qty at price on side, updating open-call
// weight-excluded accumulators appropriately. outOfCage=true (the
// cage-open flush) skips the open-call diversion into the …Ex
// accumulators, so the qty always counts toward the main weight
// aggregates; it mirrors axob.py's insertOrder(outOfCage=...) parameter.
func (e *Engine) insertOrderLevel(side Side, price, qty int64, outOfCage bool) {
	e.levelIndex(side).Add(price, qty)
	if side == SideAsk && e.Phase == PhaseOpenCall && e.IsChiNext() && !outOfCage {
		e.Aggregates.AskWeightSizeEx += qty
		e.Aggregates.AskWeightValueEx += price * qty
		return
	}
	if side == SideBid {
		e.Aggregates.BidWeightSize += qty
		e.Aggregates.BidWeightValue += price * qty
	} else {
		e.Aggregates.AskWeightSize += qty
		e.Aggregates.AskWeightValue += price * qty
	}
}

// dequeueLevel implements §4.7: point-decrement, best-cache update,
// outside-cage-qty update, and (if the level empties) a reseat scan
// performed *before* the level is removed from the map.
func (e *Engine) dequeueLevel(side Side, price, qty int64) {
	li := e.levelIndex(side)

	isOutside := (side == SideBid && e.Cage.HasBidOutide && e.Cage.BidOutside.Price == price) ||
		(side == SideAsk && e.Cage.HasAskOutide && e.Cage.AskOutside.Price == price)

	if isOutside {
		if side == SideBid {
			e.Cage.BidOutside.Qty -= qty
			if e.Cage.BidOutside.Qty <= 0 {
				if np, nq, ok := e.Bids.NextBeyond(price, true); ok {
					e.Cage.BidOutside = PriceLevel{Price: np, Qty: nq}
				} else {
					e.Cage.HasBidOutide = false
				}
			}
		} else {
			e.Cage.AskOutside.Qty -= qty
			if e.Cage.AskOutside.Qty <= 0 {
				if np, nq, ok := e.Asks.NextBeyond(price, true); ok {
					e.Cage.AskOutside = PriceLevel{Price: np, Qty: nq}
				} else {
					e.Cage.HasAskOutide = false
				}
			}
		}
		return
	}

	remaining, found := li.Dequeue(price, qty)
	if !found {
		return
	}

	if side == SideBid {
		e.Aggregates.BidWeightSize -= qty
		e.Aggregates.BidWeightValue -= price * qty
	} else {
		e.Aggregates.AskWeightSize -= qty
		e.Aggregates.AskWeightValue -= price * qty
	}

	if remaining > 0 {
		return
	}

	wasBest := li.bestPrice == price && li.hasBest
	var np, nq int64
	var ok bool
	if wasBest {
		np, nq, ok = li.NextBeyond(price, false)
	}
	li.Remove(price)
	if wasBest {
		if ok {
			li.SetBest(np, nq)
		} else {
			li.ClearBest()
		}
	}

	e.refreshCageRefs()
	if e.IsChiNext() && (e.Phase == PhaseAMTrading || e.Phase == PhasePMTrading) {
		if side == SideBid {
			e.Cage.AskWaitingForCage = true
		} else {
			e.Cage.BidWaitingForCage = true
		}
	}
}

// OnExecution is §4.4's execution-handling entry point.
func (e *Engine) OnExecution(msg ExecutionMsg) {
	e.adoptPhaseHint(msg.Phase)

	if e.Constants.SecurityIDSource == SourceSZSE && msg.ExecType == ExecSZCancel {
		e.OnCancel(CancelMsg{SeqNum: msg.BidSeqNum, TransactTime: msg.TransactTime, Phase: msg.Phase})
		if msg.OfferSeqNum != 0 {
			e.OnCancel(CancelMsg{SeqNum: msg.OfferSeqNum, TransactTime: msg.TransactTime, Phase: msg.Phase})
		}
		return
	}

	lastPx, _ := ToInternalPrice(e.Log, e.Constants.SecurityIDSource, e.Constants.InstrumentType, msg.LastPx)
	lastPx, _ = ClipPrice(e.Log, lastPx)
	lastQty, _ := ClipQty(e.Log, msg.LastQty)

	e.onTrade(msg, lastPx, lastQty)
}

func (e *Engine) onTrade(msg ExecutionMsg, lastPx, lastQty int64) {
	e.Aggregates.NumTrades++
	e.Aggregates.TotalVolumeTrade += lastQty
	e.Aggregates.TotalValueTrade += lastPx * lastQty * TradeValueMultiplierShift(e.Constants.SecurityIDSource, e.Constants.InstrumentType)

	if e.Aggregates.NumTrades == 1 {
		e.Aggregates.OpenPx = lastPx
		e.Aggregates.HighPx = lastPx
		e.Aggregates.LowPx = lastPx
	} else {
		if lastPx > e.Aggregates.HighPx {
			e.Aggregates.HighPx = lastPx
		}
		if lastPx < e.Aggregates.LowPx {
			e.Aggregates.LowPx = lastPx
		}
	}
	e.Aggregates.LastPx = lastPx

	if !e.Holding.Empty() {
		h := e.Holding.Peek()
		if h.SeqNum != msg.BidSeqNum && h.SeqNum != msg.OfferSeqNum && e.IsChiNext() {
			e.flushHolding()
		}
	}

	if !e.Holding.Empty() {
		e.settleHoldingAgainstTrade(msg, lastPx, lastQty)
		if e.IsChiNext() {
			e.enterCage()
		}
		e.emitTradingSnapshot(msg.TransactTime)
		return
	}

	if e.Cage.BidWaitingForCage || e.Cage.AskWaitingForCage {
		e.dequeueByRecordedPrice(msg.BidSeqNum, lastQty)
		e.dequeueByRecordedPrice(msg.OfferSeqNum, lastQty)
		e.enterCage()
		e.emitTradingSnapshot(msg.TransactTime)
		return
	}

	e.dequeueByRecordedPrice(msg.BidSeqNum, lastQty)
	e.dequeueByRecordedPrice(msg.OfferSeqNum, lastQty)

	if e.Phase == PhaseVolatilityBreaking {
		_, _, hasBid := e.Bids.Best()
		_, _, hasAsk := e.Asks.Best()
		bp, _, _ := e.Bids.Best()
		ap, _, _ := e.Asks.Best()
		uncrossed := !(hasBid && hasAsk) || bp < ap
		if uncrossed {
			e.adoptPhaseHintForce(msg.Phase)
			e.emitTradingSnapshot(msg.TransactTime)
		}
		return
	}

	e.emitTradingSnapshot(msg.TransactTime)
}

// adoptPhaseHintForce bypasses the VolatilityBreaking freeze, used only
// by the exactly one caller allowed to exit that state (§4.1).
func (e *Engine) adoptPhaseHintForce(hint TradingPhaseMarket) {
	e.Phase = hint
}

func (e *Engine) dequeueByRecordedPrice(seq uint32, qty int64) {
	if seq == 0 {
		return
	}
	o, ok := e.Orders.Get(seq)
	if !ok {
		e.Log.Error("execution references unknown order", zap.Uint32("seq", seq))
		return
	}
	e.dequeueLevel(o.Side, o.Price, qty)
	o.Qty -= qty
	if o.Qty <= 0 {
		e.Orders.Remove(seq)
	}
}

// settleHoldingAgainstTrade implements §4.4 step 4: the opposite side
// of the holding order is dequeued from the book at the counterparty's
// recorded price, and the holding order's own remaining qty is
// decremented.
func (e *Engine) settleHoldingAgainstTrade(msg ExecutionMsg, lastPx, lastQty int64) {
	h := e.Holding.Peek()

	var counterpartySeq uint32
	if h.Side == SideBid {
		counterpartySeq = msg.OfferSeqNum
	} else {
		counterpartySeq = msg.BidSeqNum
	}
	e.dequeueByRecordedPrice(counterpartySeq, lastQty)

	h.Qty -= lastQty
	if h.Qty <= 0 {
		e.Holding.Clear()
		return
	}

	if h.Type == OrderTypeMarket {
		h.Price = lastPx
		h.Traded = true
		return
	}

	opposite := e.levelIndex(h.Side.Opposite())
	_, _, hasOpposite := opposite.Best()
	stillCrosses := false
	if hasOpposite {
		bp, _, _ := opposite.Best()
		if h.Side == SideBid {
			stillCrosses = h.Price >= bp
		} else {
			stillCrosses = h.Price <= bp
		}
	}
	if !hasOpposite || !stillCrosses {
		e.insertOrderLevel(h.Side, h.Price, h.Qty, false)
		e.Orders.Put(h)
		e.Holding.Clear()
	}
}

// OnCancel is §4.5's cancel-handling entry point.
func (e *Engine) OnCancel(msg CancelMsg) {
	e.adoptPhaseHint(msg.Phase)

	if !e.Holding.Empty() {
		e.flushHolding()
	}

	if o, ok := e.Orders.Get(msg.SeqNum); ok {
		e.Orders.Remove(msg.SeqNum)
		e.dequeueLevel(o.Side, o.Price, o.Qty)
		if e.IsChiNext() {
			e.enterCage()
		}
		e.emitTradingSnapshot(msg.TransactTime)
		return
	}
	if _, ok := e.Illegal.Get(msg.SeqNum); ok {
		e.Illegal.Remove(msg.SeqNum)
		return
	}
	e.Log.Error("cancel references unknown order", zap.Uint32("seq", msg.SeqNum))
}

// emitTradingSnapshot synthesizes and publishes a snapshot stamped
// with ts, via the engine's OnSnapshot callback (wired by the
// Multiplexer into the Snapshot Matcher).
func (e *Engine) emitTradingSnapshot(ts int64) {
	if e.OnSnapshot == nil {
		e.assertInvariants()
		return
	}
	var snap Snapshot
	switch e.Phase {
	case PhaseOpenCall, PhaseCloseCall:
		snap = e.genCallSnap(ts)
	default:
		snap = e.genTradingSnap(ts)
	}
	e.assertInvariants()
	e.OnSnapshot(snap)
}
