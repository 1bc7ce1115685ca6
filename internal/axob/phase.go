package axob

import "go.uber.org/zap"

// HandleSignal applies an external AX_SIGNAL from the Multiplexer
// (§4.1), used at boundaries the feed alone cannot signal (no trades
// at open, a midday pause with no ticks).
func (e *Engine) HandleSignal(sig AXSignal, ts int64) {
	switch sig {
	case SignalOpenCallEnd:
		e.onOpenCallEnd(ts)
	case SignalAMTradingBgn:
		e.onAMTradingBgn(ts)
	case SignalAMTradingEnd:
		e.onTradingHalfEnd(ts)
	case SignalPMTradingEnd:
		e.onPMTradingEnd(ts)
	case SignalAllEnd:
		e.onAllEnd(ts)
	case SignalOpenCallBgn, SignalPMTradingBgn:
		// No state transition defined for these in §4.1; they exist
		// only so the Multiplexer's signal enum stays exhaustive.
	}
}

func (e *Engine) onOpenCallEnd(ts int64) {
	if e.Phase != PhaseOpenCall {
		return
	}
	bp, _, hasBid := e.Bids.Best()
	ap, _, hasAsk := e.Asks.Best()
	if hasBid && hasAsk && bp < ap {
		e.Phase = PhasePreTradingBreaking
		e.emitTradingSnapshot(ts)
	}
}

func (e *Engine) onAMTradingBgn(ts int64) {
	if e.Phase != PhasePreTradingBreaking {
		return
	}
	e.Aggregates.AskWeightSize += e.Aggregates.AskWeightSizeEx
	e.Aggregates.AskWeightValue += e.Aggregates.AskWeightValueEx
	e.Aggregates.AskWeightSizeEx = 0
	e.Aggregates.AskWeightValueEx = 0
	e.Phase = PhaseAMTrading
	e.emitTradingSnapshot(ts)
}

// onTradingHalfEnd handles AMTRADING_END / the shared half of
// PMTRADING_END (§4.1): flush a holding market order into the book; if
// the holding slot was already empty, just emit a snapshot.
func (e *Engine) onTradingHalfEnd(ts int64) {
	h := e.Holding.Peek()
	if h != nil && h.Type == OrderTypeMarket {
		e.flushHolding()
		return
	}
	e.emitTradingSnapshot(ts)
}

func (e *Engine) onPMTradingEnd(ts int64) {
	e.onTradingHalfEnd(ts)
	if e.Constants.SecurityIDSource == SourceSZSE {
		e.Phase = PhaseCloseCall
		e.openCage()
		e.emitTradingSnapshot(ts)
	}
}

func (e *Engine) onAllEnd(ts int64) {
	if e.Constants.SecurityIDSource != SourceSZSE {
		// SH close price always comes from the exchange snapshot.
		return
	}
	bp, _, hasBid := e.Bids.Best()
	ap, _, hasAsk := e.Asks.Best()
	canMatch := hasBid && hasAsk && bp >= ap
	if !canMatch {
		e.Phase = PhaseEnding
		if e.Log != nil {
			e.Log.Info("books cannot match at all-end, waiting for exchange close price")
		}
		return
	}
	e.Phase = PhaseEnding
	e.emitTradingSnapshot(ts)
}

// CaptureConstants records the day-start constants from the first
// exchange snapshot (§3 "captured at day start"). Safe to call more
// than once; only the first call has effect.
func (e *Engine) CaptureConstants(c Constants) {
	if e.Constants.Captured {
		return
	}
	e.Constants = c
	e.Constants.Captured = true
	if e.Log != nil {
		e.Log = e.Log.With(zap.Uint32("security_id", c.SecurityID))
	}
}

// OnExchangeSnapshot ingests an incoming exchange snapshot: captures
// day-start constants on first sight, and — for SZ in the Ending phase
// when the books could not match at all-end — takes the close price
// straight from the exchange (§4.1 ALL_END, §4.9).
func (e *Engine) OnExchangeSnapshot(m Snapshot) {
	if !e.Constants.Captured {
		e.CaptureConstants(Constants{
			SecurityID:       m.SecurityID,
			SecurityIDSource: m.SecurityIDSource,
			InstrumentType:   e.Constants.InstrumentType,
			ChannelNo:        m.ChannelNo,
			PrevClosePx:      m.PrevClosePx,
			UpLimitPx:        m.UpLimitPx,
			DnLimitPx:        m.DnLimitPx,
			HasPriceLimit:    m.UpLimitPx != 0 || m.DnLimitPx != 0,
		})
	}
	if e.Constants.SecurityIDSource == SourceSZSE && e.Phase == PhaseEnding && e.Aggregates.LastPx == 0 {
		e.Aggregates.LastPx = m.LastPx
	}
}
