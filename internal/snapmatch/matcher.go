// Package snapmatch implements the Snapshot Matcher (§4.11): it
// reconciles the engine's reconstructed snapshots against the
// exchange's published ones, bucketed by trade count, and flags
// mismatches that persist when the day ends.
package snapmatch

import (
	"go.uber.org/zap"

	"github.com/yanguangshaonian/axob/internal/axob"
)

// Matcher holds the two pending-snapshot buckets for one instrument,
// keyed by NumTrades (§4.11).
type Matcher struct {
	rebuilt map[uint32][]axob.Snapshot
	market  map[uint32][]axob.Snapshot

	last     axob.Snapshot
	hasLast  bool

	source axob.SecurityIDSource

	Log *zap.Logger
}

// New constructs an empty matcher for an instrument on the given
// exchange (the timestamp-consistency rule is source-specific).
func New(log *zap.Logger, source axob.SecurityIDSource) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{
		rebuilt: make(map[uint32][]axob.Snapshot),
		market:  make(map[uint32][]axob.Snapshot),
		source:  source,
		Log:     log,
	}
}

// equal compares two snapshots per §4.11: every field except
// TransactTime, and AskWeightPx when either flags it uncertain.
func equal(a, b axob.Snapshot) bool {
	ignoreAskWeight := a.AskWeightPxUncertain || b.AskWeightPxUncertain
	aw, bw := a.AskWeightPx, b.AskWeightPx
	if ignoreAskWeight {
		aw, bw = 0, 0
	}
	return a.SecurityID == b.SecurityID &&
		a.SecurityIDSource == b.SecurityIDSource &&
		a.Phase == b.Phase &&
		a.PrevClosePx == b.PrevClosePx &&
		a.UpLimitPx == b.UpLimitPx &&
		a.DnLimitPx == b.DnLimitPx &&
		a.ChannelNo == b.ChannelNo &&
		a.NumTrades == b.NumTrades &&
		a.TotalVolumeTrade == b.TotalVolumeTrade &&
		a.TotalValueTrade == b.TotalValueTrade &&
		a.LastPx == b.LastPx &&
		a.OpenPx == b.OpenPx &&
		a.HighPx == b.HighPx &&
		a.LowPx == b.LowPx &&
		a.BidWeightPx == b.BidWeightPx &&
		aw == bw &&
		a.BidLevels == b.BidLevels &&
		a.AskLevels == b.AskLevels
}

// timestampConsistent implements §4.11's timestamp-consistency rule:
// ignored entirely in Breaking/Ending/PreTradingBreaking; otherwise SZ
// allows the rebuilt snapshot to lag the market one by at most 1s
// (rebuilt_ts/1000 <= market_ts/1000 + 1), the "reconstructed snapshot
// may lead... by <= 1s" allowance from §5.
func timestampConsistent(phase axob.TradingPhaseMarket, source axob.SecurityIDSource, rebuiltTS, marketTS int64) bool {
	switch phase {
	case axob.PhaseBreaking, axob.PhaseEnding, axob.PhasePreTradingBreaking:
		return true
	}
	if source != axob.SourceSZSE {
		return true
	}
	return rebuiltTS/1000 <= marketTS/1000+1
}

func pruneBelow(buckets map[uint32][]axob.Snapshot, below uint32) {
	for k := range buckets {
		if k < below {
			delete(buckets, k)
		}
	}
}

// OnRebuilt is called whenever the engine produces a reconstructed
// snapshot s (§4.11 steps 1-3).
func (m *Matcher) OnRebuilt(s axob.Snapshot) {
	if m.hasLast && equal(m.last, s) && timestampConsistent(s.Phase, m.source, s.TransactTime, m.last.TransactTime) {
		pruneBelow(m.rebuilt, s.NumTrades)
		m.last = s
		return
	}

	if bucket, ok := m.market[s.NumTrades]; ok {
		for i, candidate := range bucket {
			if equal(candidate, s) && timestampConsistent(s.Phase, m.source, s.TransactTime, candidate.TransactTime) {
				bucket = append(bucket[:i], bucket[i+1:]...)
				if len(bucket) == 0 {
					delete(m.market, s.NumTrades)
				} else {
					m.market[s.NumTrades] = bucket
				}
				pruneBelow(m.rebuilt, s.NumTrades)
				m.last, m.hasLast = s, true
				return
			}
		}
	}

	m.rebuilt[s.NumTrades] = append(m.rebuilt[s.NumTrades], s)
	m.last, m.hasLast = s, true
}

// OnMarket is called when an exchange snapshot m arrives; it performs
// the dual match against the rebuilt bucket, queuing m in market_snaps
// when nothing matches.
func (mm *Matcher) OnMarket(m axob.Snapshot) {
	if bucket, ok := mm.rebuilt[m.NumTrades]; ok {
		for i, candidate := range bucket {
			if equal(candidate, m) && timestampConsistent(m.Phase, mm.source, candidate.TransactTime, m.TransactTime) {
				bucket = append(bucket[:i], bucket[i+1:]...)
				if len(bucket) == 0 {
					delete(mm.rebuilt, m.NumTrades)
				} else {
					mm.rebuilt[m.NumTrades] = bucket
				}
				pruneBelow(mm.market, m.NumTrades)
				return
			}
		}
	}
	mm.market[m.NumTrades] = append(mm.market[m.NumTrades], m)
	mm.Log.Warn("unmatched exchange snapshot queued", zap.Uint32("num_trades", m.NumTrades))
}

// AreYouOK implements §4.10's health check: healthy iff no unmatched
// exchange snapshots remain queued.
func (m *Matcher) AreYouOK() bool {
	for _, bucket := range m.market {
		if len(bucket) > 0 {
			return false
		}
	}
	return true
}

// UnmatchedMarketCount reports the total number of exchange snapshots
// still awaiting a match, for metrics (§2 additions item 16).
func (m *Matcher) UnmatchedMarketCount() int {
	n := 0
	for _, bucket := range m.market {
		n += len(bucket)
	}
	return n
}

// State is the gob-serializable projection of both pending buckets.
// It is separate from axob.EngineState; Engine.Save does not include
// it.
type State struct {
	Rebuilt map[uint32][]axob.Snapshot
	Market  map[uint32][]axob.Snapshot
	Last    axob.Snapshot
	HasLast bool
}

func (m *Matcher) Snapshot() State {
	return State{Rebuilt: m.rebuilt, Market: m.market, Last: m.last, HasLast: m.hasLast}
}

func (m *Matcher) Restore(s State) {
	m.rebuilt = s.Rebuilt
	m.market = s.Market
	m.last = s.Last
	m.hasLast = s.HasLast
	if m.rebuilt == nil {
		m.rebuilt = make(map[uint32][]axob.Snapshot)
	}
	if m.market == nil {
		m.market = make(map[uint32][]axob.Snapshot)
	}
}
