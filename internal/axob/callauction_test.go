package axob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Scenario 2 — Open call with cross.
func TestGenCallSnapCrossing(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{
		SecurityID: 1, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentStock,
		PrevClosePx: 10005, Captured: true,
	}
	e.Phase = PhaseOpenCall
	e.Bids.Add(10010, 300)
	e.Asks.Add(10000, 200)

	snap := e.genCallSnap(1)

	// SZ stock: internal 2dp -> snapshot 6dp, so 10005 internal renders
	// as 100050000 (§4.9).
	assert.EqualValues(t, 100050000, snap.AskLevels[0].Price)
	assert.EqualValues(t, 200, snap.AskLevels[0].Qty)
	assert.EqualValues(t, 100050000, snap.BidLevels[0].Price)
	assert.EqualValues(t, 200, snap.BidLevels[0].Qty)
	assert.EqualValues(t, 0, snap.BidLevels[1].Price)
	assert.EqualValues(t, 100, snap.BidLevels[1].Qty)
	assert.EqualValues(t, 0, snap.AskLevels[1].Qty)
}

func TestGenCallSnapNoCrossZeroFills(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{SecurityID: 1, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentStock, Captured: true}
	e.Phase = PhaseOpenCall
	e.Bids.Add(10000, 100)
	e.Asks.Add(10010, 200)

	snap := e.genCallSnap(1)

	for _, lvl := range snap.BidLevels {
		assert.EqualValues(t, 0, lvl.Qty)
	}
	for _, lvl := range snap.AskLevels {
		assert.EqualValues(t, 0, lvl.Qty)
	}
}
