package axob

import (
	"bytes"
	"encoding/gob"
	"sort"
)

// EngineState is the gob-serializable projection of Engine (§6
// "Persisted state"): constants, OrderIndex, both level maps, cached
// extrema, cage state, aggregates, phase, and the holding slot. The
// two snapshot-matcher queues are owned by internal/snapmatch and are
// not part of EngineState — Engine has no knowledge of the matcher.
// snapmatch.Matcher has its own Snapshot/Restore; nothing in this
// module saves the two together.
//
// Levels and orders are carried as price/seq-sorted slices rather than
// maps: Go's map iteration order is randomized per range, and gob
// encodes a map in that iteration order, so round-tripping through a
// map would not satisfy §6's "save -> load -> save must produce
// byte-identical serialized output." Sorting first gives a canonical
// encoding for any state with identical content.
type EngineState struct {
	Constants  Constants
	Aggregates Aggregates
	Cage       CageState
	Phase      TradingPhaseMarket

	BidLevels  []PriceLevel
	BidBest    int64
	BidBestQty int64
	BidHasBest bool

	AskLevels  []PriceLevel
	AskBest    int64
	AskBestQty int64
	AskHasBest bool

	Orders  []Order
	Illegal []Order

	Holding     *Order
	LastSeenSeq uint32
	HaveSeen    bool
}

func sortedLevels(m map[int64]int64) []PriceLevel {
	out := make([]PriceLevel, 0, len(m))
	for p, q := range m {
		out = append(out, PriceLevel{Price: p, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

func levelsToMap(levels []PriceLevel) map[int64]int64 {
	m := make(map[int64]int64, len(levels))
	for _, l := range levels {
		m[l.Price] = l.Qty
	}
	return m
}

func sortedOrders(m map[uint32]*Order) []Order {
	out := make([]Order, 0, len(m))
	for _, o := range m {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	return out
}

func ordersToMap(orders []Order) map[uint32]*Order {
	m := make(map[uint32]*Order, len(orders))
	for i := range orders {
		cp := orders[i]
		m[cp.SeqNum] = &cp
	}
	return m
}

// Snapshot produces the serializable state of a live Engine.
func (e *Engine) Snapshot() EngineState {
	return EngineState{
		Constants:   e.Constants,
		Aggregates:  e.Aggregates,
		Cage:        e.Cage,
		Phase:       e.Phase,
		BidLevels:   sortedLevels(e.Bids.m),
		BidBest:     e.Bids.bestPrice,
		BidBestQty:  e.Bids.bestQty,
		BidHasBest:  e.Bids.hasBest,
		AskLevels:   sortedLevels(e.Asks.m),
		AskBest:     e.Asks.bestPrice,
		AskBestQty:  e.Asks.bestQty,
		AskHasBest:  e.Asks.hasBest,
		Orders:      sortedOrders(e.Orders.m),
		Illegal:     sortedOrders(e.Illegal.m),
		Holding:     e.Holding.Peek(),
		LastSeenSeq: e.lastSeenSeq,
		HaveSeen:    e.haveSeen,
	}
}

// Restore replaces the engine's state with a previously-saved
// EngineState, preserving the engine's logger and OnSnapshot callback.
func (e *Engine) Restore(s EngineState) {
	e.Constants = s.Constants
	e.Aggregates = s.Aggregates
	e.Cage = s.Cage
	e.Phase = s.Phase

	e.Bids = &LevelIndex{side: SideBid, m: levelsToMap(s.BidLevels), bestPrice: s.BidBest, bestQty: s.BidBestQty, hasBest: s.BidHasBest}
	e.Asks = &LevelIndex{side: SideAsk, m: levelsToMap(s.AskLevels), bestPrice: s.AskBest, bestQty: s.AskBestQty, hasBest: s.AskHasBest}

	e.Orders = &OrderIndex{m: ordersToMap(s.Orders)}
	e.Illegal = &IllegalIndex{m: ordersToMap(s.Illegal)}

	e.Holding = HoldingSlot{}
	if s.Holding != nil {
		e.Holding.Set(s.Holding)
	}
	e.lastSeenSeq = s.LastSeenSeq
	e.haveSeen = s.HaveSeen
}

// Save gob-encodes the engine's persistable state.
func (e *Engine) Save() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e.Snapshot()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load decodes a gob-encoded EngineState and restores it into e.
func (e *Engine) Load(data []byte) error {
	var s EngineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	e.Restore(s)
	return nil
}
