package axob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCYBCageBounds(t *testing.T) {
	assert.EqualValues(t, 10200, CYBCageUpper(10000))
	assert.EqualValues(t, 9800, CYBCageLower(10000))
}

// Scenario 5 — ChiNext cage admission.
func TestEnterCageAdmitsOutsideBidExtremum(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{SecurityID: 300001, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentChiNext, Captured: true}
	e.Phase = PhaseAMTrading

	e.Cage.BidRefPx = 10000
	require.EqualValues(t, 10200, CYBCageUpper(e.Cage.BidRefPx))

	e.Cage.BidOutside = PriceLevel{Price: 10300, Qty: 50}
	e.Cage.HasBidOutide = true
	e.Cage.BidWaitingForCage = false // not yet waiting: ref price hasn't moved

	// A trade moves the reference price enough that the extremum falls
	// inside the band (upper = 10312).
	e.Cage.BidRefPx = 10110
	e.Cage.BidWaitingForCage = true

	e.enterCage()

	assert.False(t, e.Cage.HasBidOutide, "the admitted level is no longer the outside extremum")
	bp, bq, ok := e.Bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10300, bp)
	assert.EqualValues(t, 50, bq)
	assert.EqualValues(t, 50, e.Aggregates.BidWeightSize)
	assert.EqualValues(t, 10300, e.Cage.AskRefPx)
}

// Scenario 5 — a plain order arrival, not a manually-set waiting flag,
// must wake the opposite side's cage-admission check on its own.
func TestEnterCageWakesOnOrderArrival(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{SecurityID: 300001, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentChiNext, Captured: true}
	e.Phase = PhaseAMTrading

	e.Cage.BidRefPx = 10000
	e.Cage.BidOutside = PriceLevel{Price: 10300, Qty: 50}
	e.Cage.HasBidOutide = true
	e.Cage.BidWaitingForCage = false

	// A new ask arrival at internal price 10400 becomes the best ask and
	// moves bid_cage_ref_px to 10400 (§4.6), bringing the outside bid
	// extremum (10300) inside the band (CYBCageUpper(10400) = 10608)
	// without crossing that ask, with nobody manually flipping
	// BidWaitingForCage first.
	e.OnOrder(AddOrderMsg{SeqNum: 1, Side: SideAsk, Type: OrderTypeLimit, Price: 1040000, Qty: 20, TransactTime: 1, Phase: PhaseAMTrading})

	assert.True(t, e.Cage.BidWaitingForCage, "opposite side waiting flag must be set on a plain price improvement")
	assert.False(t, e.Cage.HasBidOutide, "the outside bid extremum must have been admitted")
	bp, bq, ok := e.Bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10300, bp)
	assert.EqualValues(t, 50, bq)
}

func TestEnterCageStopsOnCross(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{SecurityID: 300001, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentChiNext, Captured: true}
	e.Phase = PhaseAMTrading

	e.Asks.Add(10250, 20) // resting ask below the candidate extremum

	e.Cage.BidRefPx = 10110
	e.Cage.BidOutside = PriceLevel{Price: 10300, Qty: 50}
	e.Cage.HasBidOutide = true
	e.Cage.BidWaitingForCage = true

	e.enterCage()

	assert.True(t, e.Cage.HasBidOutide, "admission must wait for an execution to resolve the cross")
	_, _, hasBid := e.Bids.Best()
	assert.False(t, hasBid)
}
