package axob

import "go.uber.org/zap"

// CageState is the ChiNext price-cage bookkeeping (§3, §4.6). The cage
// restricts continuous-trading prices to [0.98*ref, 1.02*ref]; a
// single hidden "outside-cage extremum" per side tracks the best
// resting price just beyond that band, admitted only when the
// reference price moves enough to bring it inside.
type CageState struct {
	BidRefPx, AskRefPx int64

	BidOutside   PriceLevel
	HasBidOutide bool
	AskOutside   PriceLevel
	HasAskOutide bool

	BidWaitingForCage bool
	AskWaitingForCage bool
}

// CYBCageUpper computes floor(p*1.02) at internal precision.
func CYBCageUpper(p int64) int64 {
	return (p * 102) / 100
}

// CYBCageLower computes ceil(p*0.98) at internal precision.
func CYBCageLower(p int64) int64 {
	return (p*98 + 99) / 100
}

// IsChiNext reports whether cage logic applies to this instrument.
func (e *Engine) IsChiNext() bool {
	return e.Constants.InstrumentType == InstrumentChiNext
}

// refreshAskRef recomputes ask_ref_px per the reference-price rule in
// §4.6: best bid if one exists, else best ask, else LastPx (once
// trades have occurred), else PrevClosePx.
func (e *Engine) refreshAskRef() {
	if p, _, ok := e.Bids.Best(); ok {
		e.Cage.AskRefPx = p
		return
	}
	if p, _, ok := e.Asks.Best(); ok {
		e.Cage.AskRefPx = p
		return
	}
	if e.Aggregates.NumTrades > 0 {
		e.Cage.AskRefPx = e.Aggregates.LastPx
		return
	}
	e.Cage.AskRefPx = e.Constants.PrevClosePx
}

// refreshBidRef is symmetric to refreshAskRef.
func (e *Engine) refreshBidRef() {
	if p, _, ok := e.Asks.Best(); ok {
		e.Cage.BidRefPx = p
		return
	}
	if p, _, ok := e.Bids.Best(); ok {
		e.Cage.BidRefPx = p
		return
	}
	if e.Aggregates.NumTrades > 0 {
		e.Cage.BidRefPx = e.Aggregates.LastPx
		return
	}
	e.Cage.BidRefPx = e.Constants.PrevClosePx
}

// refreshCageRefs recomputes both reference prices; called whenever a
// level empties or the best on a side changes (§4.7).
func (e *Engine) refreshCageRefs() {
	e.refreshBidRef()
	e.refreshAskRef()
}

// openCage discards both outside-cage extrema into the book outright,
// used at PMTradingEnd (SZ) when the continuous-trading cage no longer
// applies for the rest of the day (§4.1 AMTRADING_END/PMTRADING_END
// signal handling).
func (e *Engine) openCage() {
	if e.Cage.HasBidOutide {
		e.insertOrderLevel(SideBid, e.Cage.BidOutside.Price, e.Cage.BidOutside.Qty, true)
		e.Cage.HasBidOutide = false
	}
	if e.Cage.HasAskOutide {
		e.insertOrderLevel(SideAsk, e.Cage.AskOutside.Price, e.Cage.AskOutside.Qty, true)
		e.Cage.HasAskOutide = false
	}
	e.Cage.BidWaitingForCage = false
	e.Cage.AskWaitingForCage = false
}

// enterCage is the fixed-point cage-admission loop (§4.6). It
// unconditionally re-checks each side's outside-cage extremum against
// the current band every call, admitting it once the reference price
// has moved it inside — the *WaitingForCage flags are not read here as
// an entry gate, matching the reference implementation (onTrade reads
// them to decide whether to run this loop after an execution). The
// loop repeats until a pass admits
// nothing, stopping early only when admitting the next candidate would
// cross the opposite side outside of VolatilityBreaking (an execution
// must resolve that crossing first).
func (e *Engine) enterCage() {
	if !e.IsChiNext() {
		return
	}
	for {
		progressed := false

		if e.Cage.HasBidOutide {
			if e.Cage.BidOutside.Price <= CYBCageUpper(e.Cage.BidRefPx) {
				bestAsk, _, hasAsk := e.Asks.Best()
				wouldCross := hasAsk && e.Cage.BidOutside.Price >= bestAsk
				if wouldCross && e.Phase != PhaseVolatilityBreaking {
					// Wait for an execution to resolve the cross.
				} else {
					price, qty := e.Cage.BidOutside.Price, e.Cage.BidOutside.Qty
					e.Bids.m[price] = qty
					e.Bids.SetBest(price, qty)
					e.Aggregates.BidWeightSize += qty
					e.Aggregates.BidWeightValue += price * qty
					e.Cage.AskRefPx = price
					if !hasAsk {
						e.Cage.BidRefPx = price
					}
					oldPrice := e.Cage.BidOutside.Price
					if np, nq, ok := e.Bids.NextBeyond(oldPrice, true); ok {
						e.Cage.BidOutside = PriceLevel{Price: np, Qty: nq}
						e.Cage.HasBidOutide = true
					} else {
						e.Cage.HasBidOutide = false
					}
					e.Cage.AskWaitingForCage = true
					progressed = true
				}
			}
		}

		if e.Cage.HasAskOutide {
			if e.Cage.AskOutside.Price >= CYBCageLower(e.Cage.AskRefPx) {
				bestBid, _, hasBid := e.Bids.Best()
				wouldCross := hasBid && e.Cage.AskOutside.Price <= bestBid
				if wouldCross && e.Phase != PhaseVolatilityBreaking {
					// wait
				} else {
					price, qty := e.Cage.AskOutside.Price, e.Cage.AskOutside.Qty
					e.Asks.m[price] = qty
					e.Asks.SetBest(price, qty)
					e.Aggregates.AskWeightSize += qty
					e.Aggregates.AskWeightValue += price * qty
					e.Cage.BidRefPx = price
					if !hasBid {
						e.Cage.AskRefPx = price
					}
					oldPrice := e.Cage.AskOutside.Price
					if np, nq, ok := e.Asks.NextBeyond(oldPrice, true); ok {
						e.Cage.AskOutside = PriceLevel{Price: np, Qty: nq}
						e.Cage.HasAskOutide = true
					} else {
						e.Cage.HasAskOutide = false
					}
					e.Cage.BidWaitingForCage = true
					progressed = true
				}
			}
		}

		if !progressed {
			if e.Log != nil {
				e.Log.Debug("enterCage converged",
					zap.Bool("bid_waiting", e.Cage.BidWaitingForCage),
					zap.Bool("ask_waiting", e.Cage.AskWaitingForCage),
				)
			}
			return
		}
	}
}
