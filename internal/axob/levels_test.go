package axob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelIndexAddTracksBest(t *testing.T) {
	bids := NewLevelIndex(SideBid)
	bids.Add(10000, 100)
	bids.Add(10010, 50)
	bids.Add(9990, 10)

	bp, bq, ok := bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10010, bp)
	assert.EqualValues(t, 50, bq)

	asks := NewLevelIndex(SideAsk)
	asks.Add(10020, 100)
	asks.Add(10005, 50)

	ap, aq, ok := asks.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10005, ap)
	assert.EqualValues(t, 50, aq)
}

func TestLevelIndexDequeueThenReseat(t *testing.T) {
	bids := NewLevelIndex(SideBid)
	bids.Add(10010, 50)
	bids.Add(10000, 100)

	remaining, found := bids.Dequeue(10010, 50)
	require.True(t, found)
	assert.EqualValues(t, 0, remaining)

	// Per §4.7: reseat via NextBeyond before Remove.
	price, qty, ok := bids.NextBeyond(10010, false)
	require.True(t, ok)
	assert.EqualValues(t, 10000, price)
	assert.EqualValues(t, 100, qty)

	bids.Remove(10010)
	bids.SetBest(price, qty)

	bp, bq, ok := bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10000, bp)
	assert.EqualValues(t, 100, bq)
}

func TestLevelIndexNextBeyondExcludes(t *testing.T) {
	asks := NewLevelIndex(SideAsk)
	asks.Add(10000, 10)
	asks.Add(10010, 20)
	asks.Add(10020, 30)

	price, qty, ok := asks.NextBeyond(9999, false, 10000)
	require.True(t, ok)
	assert.EqualValues(t, 10010, price)
	assert.EqualValues(t, 20, qty)
}

func TestLevelIndexNextBeyondOutsideDirectionIsReversed(t *testing.T) {
	bids := NewLevelIndex(SideBid)
	bids.Add(10100, 5)
	bids.Add(10300, 7)
	bids.Add(10500, 9)

	// Main-best reseat direction: highest price below boundary.
	price, qty, ok := bids.NextBeyond(10500, false)
	require.True(t, ok)
	assert.EqualValues(t, 10300, price)
	assert.EqualValues(t, 7, qty)

	// Outside-cage reseat direction: lowest price above boundary — the
	// level closest to the cage boundary among those still beyond it,
	// the opposite convention from the main-best reseat above.
	price, qty, ok = bids.NextBeyond(10050, true)
	require.True(t, ok)
	assert.EqualValues(t, 10100, price)
	assert.EqualValues(t, 5, qty)

	asks := NewLevelIndex(SideAsk)
	asks.Add(9900, 5)
	asks.Add(9700, 7)
	asks.Add(9500, 9)

	price, qty, ok = asks.NextBeyond(9500, false)
	require.True(t, ok)
	assert.EqualValues(t, 9700, price)
	assert.EqualValues(t, 7, qty)

	price, qty, ok = asks.NextBeyond(9950, true)
	require.True(t, ok)
	assert.EqualValues(t, 9900, price)
	assert.EqualValues(t, 5, qty)
}

func TestLevelIndexRemoveClearsCachedBest(t *testing.T) {
	bids := NewLevelIndex(SideBid)
	bids.Add(10000, 10)
	bids.Remove(10000)

	_, _, ok := bids.Best()
	assert.False(t, ok)
}

func TestLevelIndexSnapshot10SkipsOutsideCage(t *testing.T) {
	bids := NewLevelIndex(SideBid)
	bids.Add(10030, 5) // outside-cage extremum, hidden
	bids.Add(10010, 50)
	bids.Add(10000, 100)

	levels := bids.Snapshot10(10030, true)
	assert.EqualValues(t, 10010, levels[0].Price)
	assert.EqualValues(t, 50, levels[0].Qty)
	assert.EqualValues(t, 10000, levels[1].Price)
	assert.EqualValues(t, 100, levels[1].Qty)
	assert.EqualValues(t, 0, levels[2].Qty)
}

func TestLevelIndexSum(t *testing.T) {
	asks := NewLevelIndex(SideAsk)
	asks.Add(10000, 10)
	asks.Add(10010, 20)

	size, value := asks.Sum(nil)
	assert.EqualValues(t, 30, size)
	assert.EqualValues(t, 10000*10+10010*20, value)

	size, value = asks.Sum(func(p int64) bool { return p == 10010 })
	assert.EqualValues(t, 20, size)
	assert.EqualValues(t, 10010*20, value)
}
