package axob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{
		SecurityID:       1,
		SecurityIDSource: SourceSZSE,
		InstrumentType:   InstrumentStock,
		PrevClosePx:      10000,
		HasPriceLimit:    true,
		Captured:         true,
	}
	e.Phase = PhaseOpenCall
	return e
}

func assertInvariantsHold(t *testing.T, e *Engine) {
	t.Helper()
	require.NotPanics(t, func() { e.assertInvariants() })
}

// Scenario 1 — Open call with no cross.
func TestOpenCallNoCross(t *testing.T) {
	e := newTestEngine(t)

	var snaps []Snapshot
	e.OnSnapshot = func(s Snapshot) { snaps = append(snaps, s) }

	// Prices on the wire are SZ 4dp; internal stock prices are 2dp.
	e.OnOrder(AddOrderMsg{SeqNum: 1, Side: SideBid, Type: OrderTypeLimit, Price: 1000000, Qty: 100, TransactTime: 1, Phase: PhaseOpenCall})
	e.OnOrder(AddOrderMsg{SeqNum: 2, Side: SideAsk, Type: OrderTypeLimit, Price: 1001000, Qty: 200, TransactTime: 2, Phase: PhaseOpenCall})
	assertInvariantsHold(t, e)

	e.HandleSignal(SignalOpenCallEnd, 3)

	assert.Equal(t, PhasePreTradingBreaking, e.Phase)
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.EqualValues(t, 0, last.NumTrades)
	assert.EqualValues(t, 0, last.LastPx)

	bp, bq, ok := e.Bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10000, bp)
	assert.EqualValues(t, 100, bq)

	ap, aq, ok := e.Asks.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10010, ap)
	assert.EqualValues(t, 200, aq)
}

// Scenario 3 — Market order flush at next exec: no snapshot is emitted
// between the market order's acceptance and its settling execution.
func TestMarketOrderFlushAtExec(t *testing.T) {
	e := newTestEngine(t)
	e.Phase = PhaseAMTrading

	e.insertOrderLevel(SideAsk, 10100, 50, false)
	e.Orders.Put(&Order{SeqNum: 10, Side: SideAsk, Price: 10100, Qty: 50})

	var snaps []Snapshot
	e.OnSnapshot = func(s Snapshot) { snaps = append(snaps, s) }

	e.OnOrder(AddOrderMsg{SeqNum: 20, Side: SideBid, Type: OrderTypeMarket, TransactTime: 5, Phase: PhaseAMTrading})
	assert.False(t, e.Holding.Empty())
	assert.Empty(t, snaps, "no snapshot between market order and its execution")

	e.OnExecution(ExecutionMsg{
		BidSeqNum: 20, OfferSeqNum: 10, LastPx: 1010000, LastQty: 30,
		ExecType: ExecTrade, TransactTime: 6, Phase: PhaseAMTrading,
	})

	assert.True(t, e.Holding.Empty())
	assert.EqualValues(t, 10100, e.Aggregates.LastPx)
	qty, ok := e.Asks.Get(10100)
	require.True(t, ok)
	assert.EqualValues(t, 20, qty)
	assert.NotEmpty(t, snaps)
}

// Scenario 4 — Cancel of a holding order: the primary mode always
// inserts the holding order first, then the cancel removes it.
func TestCancelOfHoldingOrder(t *testing.T) {
	e := newTestEngine(t)
	e.Phase = PhaseAMTrading
	e.insertOrderLevel(SideAsk, 10100, 50, false)
	e.Orders.Put(&Order{SeqNum: 1, Side: SideAsk, Price: 10100, Qty: 50})

	e.OnOrder(AddOrderMsg{SeqNum: 40, Side: SideBid, Type: OrderTypeMarket, TransactTime: 1, Phase: PhaseAMTrading})
	require.False(t, e.Holding.Empty())

	e.OnCancel(CancelMsg{SeqNum: 40, TransactTime: 2, Phase: PhaseAMTrading})

	assert.True(t, e.Holding.Empty())
	_, ok := e.Orders.Get(40)
	assert.False(t, ok, "the market order must leave no trace")
}

// Scenario 6 — SZ reorder drop.
func TestSZReorderDrop(t *testing.T) {
	e := newTestEngine(t)
	e.Phase = PhaseAMTrading

	e.OnOrder(AddOrderMsg{SeqNum: 100, Side: SideBid, Type: OrderTypeLimit, Price: 10000, Qty: 10, TransactTime: 1, Phase: PhaseAMTrading})
	require.Equal(t, 1, e.Orders.Len())

	e.OnOrder(AddOrderMsg{SeqNum: 99, Side: SideBid, Type: OrderTypeLimit, Price: 10050, Qty: 10, TransactTime: 2, Phase: PhaseAMTrading})

	assert.Equal(t, 1, e.Orders.Len(), "the out-of-order message must be dropped with no state change")
	_, ok := e.Orders.Get(99)
	assert.False(t, ok)
}

func TestUniversalInvariantCrossedBookPanics(t *testing.T) {
	e := newTestEngine(t)
	e.Phase = PhaseAMTrading
	e.Bids.Add(10010, 10)
	e.Asks.Add(10000, 10)

	assert.Panics(t, func() { e.assertInvariants() })
}
