package mux

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanguangshaonian/axob/internal/axob"
)

func testSchedule() Schedule {
	return Schedule{
		OpenCallBgn: 100, OpenCallEnd: 200,
		AMTradingBgn: 300, AMTradingEnd: 400,
		PMTradingBgn: 500, PMTradingEnd: 600, AllEnd: 700,
	}
}

func TestDispatchOrderRoutesToSubscribedEngine(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	engine := m.Subscribe(1, axob.SourceSZSE)
	engine.Phase = axob.PhaseAMTrading

	// Wire price 1000000 (4dp) is internal price 10000 (2dp).
	m.DispatchOrder(1, axob.AddOrderMsg{SeqNum: 1, Side: axob.SideBid, Type: axob.OrderTypeLimit, Price: 1000000, Qty: 10, TransactTime: 1, Phase: axob.PhaseAMTrading})

	bp, bq, ok := engine.Bids.Best()
	require.True(t, ok)
	assert.EqualValues(t, 10000, bp)
	assert.EqualValues(t, 10, bq)
}

func TestDispatchToUnknownInstrumentIsNoop(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	assert.NotPanics(t, func() {
		m.DispatchOrder(999, axob.AddOrderMsg{SeqNum: 1, Phase: axob.PhaseAMTrading})
	})
}

func TestBroadcastSignalReachesAllInstruments(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	e1 := m.Subscribe(1, axob.SourceSZSE)
	e2 := m.Subscribe(2, axob.SourceSZSE)
	e1.Phase = axob.PhaseOpenCall
	e2.Phase = axob.PhaseOpenCall
	// A non-crossing book (best bid < best ask) is required for
	// onOpenCallEnd to transition phase.
	e1.Bids.Add(10000, 10)
	e1.Asks.Add(10010, 10)
	e2.Bids.Add(10000, 10)
	e2.Asks.Add(10010, 10)

	m.BroadcastSignal(axob.SignalOpenCallEnd, 1)

	assert.Equal(t, axob.PhasePreTradingBreaking, e1.Phase)
	assert.Equal(t, axob.PhasePreTradingBreaking, e2.Phase)
}

func TestCheckWallClockFiresEachSignalOnce(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	e := m.Subscribe(1, axob.SourceSZSE)
	e.Phase = axob.PhaseOpenCall
	e.Bids.Add(10000, 10)
	e.Asks.Add(10010, 10)

	m.CheckWallClock(200, 1)
	assert.Equal(t, axob.PhasePreTradingBreaking, e.Phase)

	e.Phase = axob.PhaseOpenCall // manually rewind
	m.CheckWallClock(250, 2)     // both boundaries already fired; must not refire
	assert.Equal(t, axob.PhaseOpenCall, e.Phase)
}

func TestAreYouOKReflectsMatcherHealth(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	m.Subscribe(1, axob.SourceSZSE)
	assert.True(t, m.AreYouOK())

	m.DispatchSnapshot(1, axob.Snapshot{SecurityID: 1, NumTrades: 5, TransactTime: 1})
	assert.False(t, m.AreYouOK(), "an unmatched exchange snapshot makes the instrument unhealthy")
}

func TestReplayBatchRunsSerialByDefault(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	var order []int
	jobs := []ReplayJob{
		{SecurityID: 1, Run: func() { order = append(order, 1) }},
		{SecurityID: 2, Run: func() { order = append(order, 2) }},
	}
	require.NoError(t, m.ReplayBatch(jobs))
	assert.Equal(t, []int{1, 2}, order)
}

func TestReplayBatchParallelRunsAllJobs(t *testing.T) {
	m := New(zap.NewNop(), nil, testSchedule())
	m.Parallel = true
	m.Workers = 2

	var count int32
	jobs := make([]ReplayJob, 10)
	for i := range jobs {
		jobs[i] = ReplayJob{SecurityID: uint32(i), Run: func() { atomic.AddInt32(&count, 1) }}
	}
	require.NoError(t, m.ReplayBatch(jobs))
	assert.EqualValues(t, 10, count)
}
