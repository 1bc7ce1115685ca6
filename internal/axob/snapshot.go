package axob

// genTradingSnap synthesizes the continuous-trading snapshot (§4.8a):
// top-10 levels per side (skipping the outside-cage extremum), copied
// aggregates, exchange-precision prices, and the weighted averages.
func (e *Engine) genTradingSnap(ts int64) Snapshot {
	s := e.baseSnapshot(ts)

	if e.Phase == PhaseVolatilityBreaking {
		return s
	}

	s.BidLevels = e.Bids.Snapshot10(e.Cage.BidOutside.Price, e.Cage.HasBidOutide)
	s.AskLevels = e.Asks.Snapshot10(e.Cage.AskOutside.Price, e.Cage.HasAskOutide)

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

	s.BidWeightPx = RoundWeighted(e.Aggregates.BidWeightValue, e.Aggregates.BidWeightSize)
	s.AskWeightPx = RoundWeighted(e.Aggregates.AskWeightValue, e.Aggregates.AskWeightSize)
	s.BidWeightPx = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, s.BidWeightPx)
	if e.Aggregates.AskWeightPxUncertain {
		s.AskWeightPx = MaxPrice
		s.AskWeightPxUncertain = true
	} else {
		s.AskWeightPx = FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, s.AskWeightPx)
	}

	return s
}

// baseSnapshot fills the fields common to both trading and call-auction
// snapshots: fixed params, aggregates, timestamp, and phase code.
func (e *Engine) baseSnapshot(ts int64) Snapshot {
	tick := CurrentIncTick(e.Constants.SecurityIDSource, ts)
	return Snapshot{
		SecurityID:       e.Constants.SecurityID,
		SecurityIDSource: e.Constants.SecurityIDSource,
		TransactTime:     SnapshotTimestampOut(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Constants.YYMMDD, tick),
		Phase:            e.Phase,
		PrevClosePx:      PrevClosePxToOut(e.Constants.SecurityIDSource, e.Constants.PrevClosePx, e.Constants.InstrumentType),
		UpLimitPx:        FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Constants.UpLimitPx),
		DnLimitPx:        FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Constants.DnLimitPx),
		ChannelNo:        e.Constants.ChannelNo,
		NumTrades:        e.Aggregates.NumTrades,
		TotalVolumeTrade: e.Aggregates.TotalVolumeTrade,
		TotalValueTrade:  e.Aggregates.TotalValueTrade,
		LastPx:           FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Aggregates.LastPx),
		OpenPx:           FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Aggregates.OpenPx),
		HighPx:           FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Aggregates.HighPx),
		LowPx:            FromInternalPrice(e.Constants.SecurityIDSource, e.Constants.InstrumentType, e.Aggregates.LowPx),
	}
}
