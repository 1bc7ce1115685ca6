package axob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Constants = Constants{SecurityID: 42, SecurityIDSource: SourceSZSE, InstrumentType: InstrumentStock, PrevClosePx: 10000, Captured: true}
	e.Phase = PhaseAMTrading
	e.Bids.Add(10000, 100)
	e.Asks.Add(10010, 200)
	e.Orders.Put(&Order{SeqNum: 1, Side: SideBid, Price: 10000, Qty: 100})
	e.Aggregates.NumTrades = 3
	e.Aggregates.LastPx = 10005

	data, err := e.Save()
	require.NoError(t, err)

	restored := NewEngine(zap.NewNop())
	require.NoError(t, restored.Load(data))

	assert.Equal(t, e.Constants, restored.Constants)
	assert.Equal(t, e.Phase, restored.Phase)
	assert.Equal(t, e.Aggregates, restored.Aggregates)

	bp, bq, ok := restored.Bids.Best()
	assert.True(t, ok)
	assert.EqualValues(t, 10000, bp)
	assert.EqualValues(t, 100, bq)

	again, err := restored.Save()
	require.NoError(t, err)
	assert.Equal(t, data, again, "save -> load -> save must be byte-identical")
}
