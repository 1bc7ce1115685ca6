package axob

// LevelIndex is the per-side price->quantity store (§3 LevelIndex).
// Ordered traversal is needed only at cage/dequeue boundaries, which
// are bounded by feed rate (Design Note §9), so a plain map with a
// cached best price/qty and an O(n) scan on the rare reseat path beats
// maintaining a balanced tree Go's stdlib doesn't provide.
type LevelIndex struct {
	side      Side
	m         map[int64]int64
	bestPrice int64
	bestQty   int64
	hasBest   bool
}

// NewLevelIndex constructs an empty level store for one side.
func NewLevelIndex(side Side) *LevelIndex {
	return &LevelIndex{side: side, m: make(map[int64]int64)}
}

// betterThan reports whether candidate is a better top-of-book price
// than incumbent for this side (higher for bid, lower for ask).
func (l *LevelIndex) betterThan(candidate, incumbent int64) bool {
	if l.side == SideBid {
		return candidate > incumbent
	}
	return candidate < incumbent
}

// Get returns the resting qty at price, if any.
func (l *LevelIndex) Get(price int64) (int64, bool) {
	qty, ok := l.m[price]
	return qty, ok
}

// Len reports the number of distinct resting price levels.
func (l *LevelIndex) Len() int { return len(l.m) }

// Best returns the cached top-of-book price/qty.
func (l *LevelIndex) Best() (price, qty int64, ok bool) {
	return l.bestPrice, l.bestQty, l.hasBest
}

// Add inserts qty at price (creating the level if absent) and updates
// the cached best if this price is now the top of book.
func (l *LevelIndex) Add(price, qty int64) {
	l.m[price] += qty
	newQty := l.m[price]
	if !l.hasBest || l.betterThan(price, l.bestPrice) {
		l.bestPrice, l.bestQty, l.hasBest = price, newQty, true
	} else if price == l.bestPrice {
		l.bestQty = newQty
	}
}

// Dequeue subtracts qty from the level at price (§4.7). It returns the
// level's remaining qty and whether the level was found. The caller is
// responsible for reseating the cached best / outside-cage extremum
// via NextBeyond *before* calling Remove, per §4.7's ordering rule
// (scan before map removal, so the dequeuing price is not itself a
// candidate).
func (l *LevelIndex) Dequeue(price, qty int64) (remaining int64, found bool) {
	cur, ok := l.m[price]
	if !ok {
		return 0, false
	}
	cur -= qty
	if cur < 0 {
		cur = 0
	}
	l.m[price] = cur
	if price == l.bestPrice && l.hasBest {
		l.bestQty = cur
	}
	return cur, true
}

// Remove deletes the level at price entirely. If it was the cached
// best, the cache is cleared; the caller must reseat it (see Dequeue).
func (l *LevelIndex) Remove(price int64) {
	delete(l.m, price)
	if l.hasBest && l.bestPrice == price {
		l.hasBest = false
		l.bestPrice, l.bestQty = 0, 0
	}
}

// SetBest forcibly installs a (price, qty) pair as the cached best,
// used when the engine reseats the cache from a scan result.
func (l *LevelIndex) SetBest(price, qty int64) {
	l.bestPrice, l.bestQty, l.hasBest = price, qty, true
}

// ClearBest clears the cached best with no resting levels remaining.
func (l *LevelIndex) ClearBest() {
	l.hasBest = false
	l.bestPrice, l.bestQty = 0, 0
}

// NextBeyond scans the level map for the best price strictly beyond
// boundary in this side's direction, skipping any price in
// excludePrices. Used to reseat the cached best after a level empties,
// and to find the next outside-cage candidate (§4.6, §4.7).
//
// The two reseat cases need opposite scan directions on the same side,
// matching the reference implementation's sorted-tree traversal
// (ascending vs reverse=True at different call sites):
//
//   - outside=false (main-best reseat, after the top of book empties):
//     for bid, the highest price below boundary; for ask, the lowest
//     price above boundary — walking back toward the book from the
//     level that just emptied.
//   - outside=true (outside-cage extremum reseat, after the tracked
//     hidden candidate admits or empties): for bid, the lowest price
//     above boundary; for ask, the highest price below boundary — the
//     level closest to the cage boundary among those still beyond it,
//     since that is the next candidate the reference price's next move
//     could admit.
func (l *LevelIndex) NextBeyond(boundary int64, outside bool, excludePrices ...int64) (price, qty int64, ok bool) {
	excluded := func(p int64) bool {
		for _, e := range excludePrices {
			if p == e {
				return true
			}
		}
		return false
	}
	wantHigh := l.side == SideBid
	if outside {
		wantHigh = !wantHigh
	}
	found := false
	var bestP int64
	for p := range l.m {
		if excluded(p) {
			continue
		}
		if wantHigh {
			if p >= boundary {
				continue
			}
			if !found || p > bestP {
				bestP, found = p, true
			}
		} else {
			if p <= boundary {
				continue
			}
			if !found || p < bestP {
				bestP, found = p, true
			}
		}
	}
	if !found {
		return 0, 0, false
	}
	return bestP, l.m[bestP], true
}

// Sum returns the total (size, value) aggregated across all levels
// with positive qty that satisfy keep(price); a nil keep selects every
// level.
func (l *LevelIndex) Sum(keep func(price int64) bool) (size, value int64) {
	for p, q := range l.m {
		if q <= 0 {
			continue
		}
		if keep != nil && !keep(p) {
			continue
		}
		size += q
		value += p * q
	}
	return size, value
}

// Snapshot10 returns up to 10 levels starting at the best and walking
// outward (descending for bid, ascending for ask), skipping
// skipPrice (the outside-cage extremum, if any), for §4.8a synthesis.
func (l *LevelIndex) Snapshot10(skipPrice int64, hasSkip bool) [10]PriceLevel {
	var out [10]PriceLevel
	type kv struct{ p, q int64 }
	pairs := make([]kv, 0, len(l.m))
	for p, q := range l.m {
		if q <= 0 {
			continue
		}
		if hasSkip && p == skipPrice {
			continue
		}
		pairs = append(pairs, kv{p, q})
	}
	// Simple selection of top-10 by side order; level counts at a
	// single price-feed rate stay small enough that a full sort here
	// is not a hot-path concern.
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			swap := false
			if l.side == SideBid {
				swap = pairs[j].p > pairs[i].p
			} else {
				swap = pairs[j].p < pairs[i].p
			}
			if swap {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	for i := 0; i < len(pairs) && i < 10; i++ {
		out[i] = PriceLevel{Price: pairs[i].p, Qty: pairs[i].q}
	}
	return out
}
