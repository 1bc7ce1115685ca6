// Package mux implements the Multiplexer (MU, §4.10): it routes
// decoded feed messages to the per-instrument engine matching
// SecurityID, broadcasts AX_SIGNAL phase boundaries at known
// wall-clock transitions, and aggregates per-instrument health.
package mux

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanguangshaonian/axob/internal/axob"
	"github.com/yanguangshaonian/axob/internal/snapmatch"
)

// instrument bundles one SecurityID's engine, matcher, and circuit
// breaker — the three objects the Multiplexer dispatches through.
type instrument struct {
	engine  *axob.Engine
	matcher *snapmatch.Matcher
	breaker *gobreaker.CircuitBreaker
}

// Metrics are the Multiplexer's Prometheus instruments (§2 addition
// 16), registered into whatever prometheus.Registerer the caller
// supplies — this module ships no HTTP server per spec.md's Non-goals.
type Metrics struct {
	MessagesProcessed  *prometheus.CounterVec
	SnapshotsEmitted   *prometheus.CounterVec
	UnmatchedSnapshots *prometheus.GaugeVec
	InstrumentsTripped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axob_messages_processed_total",
			Help: "Messages dispatched to per-instrument engines.",
		}, []string{"kind"}),
		SnapshotsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "axob_snapshots_emitted_total",
			Help: "Reconstructed snapshots emitted by engines.",
		}, []string{"security_id"}),
		UnmatchedSnapshots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "axob_unmatched_snapshots",
			Help: "Exchange snapshots still awaiting a reconstructed match.",
		}, []string{"security_id"}),
		InstrumentsTripped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "axob_instruments_tripped_total",
			Help: "Instruments quarantined after repeated invariant violations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesProcessed, m.SnapshotsEmitted, m.UnmatchedSnapshots, m.InstrumentsTripped)
	}
	return m
}

// Schedule is the wall-clock AX_SIGNAL boundary table (§4.10), values
// expressed as seconds-since-midnight local exchange time.
type Schedule struct {
	OpenCallBgn, OpenCallEnd           int
	AMTradingBgn, AMTradingEnd         int
	PMTradingBgn, PMTradingEnd, AllEnd int
}

// Multiplexer owns the SecurityID -> Engine map exclusively (§5
// "shared resource policy").
type Multiplexer struct {
	mu          sync.Mutex
	instruments map[uint32]*instrument

	schedule Schedule
	fired    map[axob.AXSignal]bool

	metrics *Metrics
	log     *zap.Logger

	// Parallel is only honored by ReplayBatch (offline mode); the live
	// Dispatch path stays synchronous per §5.
	Parallel bool
	Workers  int
}

// New constructs an empty Multiplexer.
func New(log *zap.Logger, metrics *Metrics, schedule Schedule) *Multiplexer {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Multiplexer{
		instruments: make(map[uint32]*instrument),
		schedule:    schedule,
		fired:       make(map[axob.AXSignal]bool),
		metrics:     metrics,
		log:         log,
		Workers:     4,
	}
}

// Subscribe registers a new engine for securityID with its own
// snapshot matcher and circuit breaker. Repeated subscription for the
// same id replaces the prior engine.
func (mu *Multiplexer) Subscribe(securityID uint32, source axob.SecurityIDSource) *axob.Engine {
	mu.mu.Lock()
	defer mu.mu.Unlock()

	engine := axob.NewEngine(mu.log.With(zap.Uint32("security_id", securityID)))
	matcher := snapmatch.New(mu.log, source)
	engine.OnSnapshot = func(s axob.Snapshot) {
		matcher.OnRebuilt(s)
		mu.metrics.SnapshotsEmitted.WithLabelValues(fmt.Sprint(securityID)).Inc()
	}

	name := fmt.Sprintf("axob-%d", securityID)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(n string, from, to gobreaker.State) {
			mu.log.Warn("instrument circuit breaker state change",
				zap.String("name", n), zap.String("from", from.String()), zap.String("to", to.String()))
			if to == gobreaker.StateOpen {
				mu.metrics.InstrumentsTripped.Inc()
			}
		},
	})

	mu.instruments[securityID] = &instrument{engine: engine, matcher: matcher, breaker: breaker}
	return engine
}

func (mu *Multiplexer) get(securityID uint32) (*instrument, bool) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	inst, ok := mu.instruments[securityID]
	return inst, ok
}

// dispatchSafe recovers an axob.InvariantError panic from inst, reports
// it as a failure to inst's breaker (which opens after three
// consecutive failures), and logs rather than crashing
// the Multiplexer (§7 "invariant violation... recovered at the
// Multiplexer dispatch boundary").
func (mu *Multiplexer) dispatchSafe(inst *instrument, fn func()) {
	_, _ = inst.breaker.Execute(func() (interface{}, error) {
		var panicErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					if ie, ok := r.(*axob.InvariantError); ok {
						panicErr = ie
						mu.log.Error("invariant violation, quarantining instrument", zap.Error(ie))
					} else {
						panic(r)
					}
				}
			}()
			fn()
		}()
		return nil, panicErr
	})
}

// DispatchOrder routes an add-order message to its engine.
func (mu *Multiplexer) DispatchOrder(securityID uint32, msg axob.AddOrderMsg) {
	inst, ok := mu.get(securityID)
	if !ok {
		return
	}
	mu.metrics.MessagesProcessed.WithLabelValues("order").Inc()
	mu.dispatchSafe(inst, func() { inst.engine.OnOrder(msg) })
}

// DispatchExec routes an execution message to its engine.
func (mu *Multiplexer) DispatchExec(securityID uint32, msg axob.ExecutionMsg) {
	inst, ok := mu.get(securityID)
	if !ok {
		return
	}
	mu.metrics.MessagesProcessed.WithLabelValues("exec").Inc()
	mu.dispatchSafe(inst, func() { inst.engine.OnExecution(msg) })
}

// DispatchCancel routes a cancel message to its engine.
func (mu *Multiplexer) DispatchCancel(securityID uint32, msg axob.CancelMsg) {
	inst, ok := mu.get(securityID)
	if !ok {
		return
	}
	mu.metrics.MessagesProcessed.WithLabelValues("cancel").Inc()
	mu.dispatchSafe(inst, func() { inst.engine.OnCancel(msg) })
}

// DispatchSnapshot feeds an exchange snapshot both into the engine
// (constants capture / SZ close-price handling) and the matcher.
func (mu *Multiplexer) DispatchSnapshot(securityID uint32, snap axob.Snapshot) {
	inst, ok := mu.get(securityID)
	if !ok {
		return
	}
	mu.metrics.MessagesProcessed.WithLabelValues("snapshot").Inc()
	mu.dispatchSafe(inst, func() {
		inst.engine.OnExchangeSnapshot(snap)
		inst.matcher.OnMarket(snap)
		mu.metrics.UnmatchedSnapshots.WithLabelValues(fmt.Sprint(securityID)).Set(float64(inst.matcher.UnmatchedMarketCount()))
	})
}

// BroadcastSignal sends an AX_SIGNAL to every subscribed engine,
// synchronously, per §5's single-threaded dispatch guarantee. The
// order across instruments follows map iteration and is not defined.
func (mu *Multiplexer) BroadcastSignal(sig axob.AXSignal, ts int64) {
	mu.mu.Lock()
	insts := make([]*instrument, 0, len(mu.instruments))
	for _, inst := range mu.instruments {
		insts = append(insts, inst)
	}
	mu.mu.Unlock()

	for _, inst := range insts {
		mu.dispatchSafe(inst, func() { inst.engine.HandleSignal(sig, ts) })
	}
}

// CheckWallClock inspects secondsSinceMidnight and broadcasts any
// AX_SIGNAL whose boundary has just been crossed (idempotent: each
// signal fires at most once per Multiplexer lifetime).
func (mu *Multiplexer) CheckWallClock(secondsSinceMidnight int, ts int64) {
	boundaries := []struct {
		sig AXSignalBoundary
	}{
		{AXSignalBoundary{axob.SignalOpenCallBgn, mu.schedule.OpenCallBgn}},
		{AXSignalBoundary{axob.SignalOpenCallEnd, mu.schedule.OpenCallEnd}},
		{AXSignalBoundary{axob.SignalAMTradingBgn, mu.schedule.AMTradingBgn}},
		{AXSignalBoundary{axob.SignalAMTradingEnd, mu.schedule.AMTradingEnd}},
		{AXSignalBoundary{axob.SignalPMTradingBgn, mu.schedule.PMTradingBgn}},
		{AXSignalBoundary{axob.SignalPMTradingEnd, mu.schedule.PMTradingEnd}},
		{AXSignalBoundary{axob.SignalAllEnd, mu.schedule.AllEnd}},
	}
	for _, b := range boundaries {
		if mu.fired[b.sig.Signal] {
			continue
		}
		if secondsSinceMidnight >= b.sig.AtSecond {
			mu.fired[b.sig.Signal] = true
			mu.BroadcastSignal(b.sig.Signal, ts)
		}
	}
}

// AXSignalBoundary pairs a signal with its wall-clock trigger second.
type AXSignalBoundary struct {
	Signal   axob.AXSignal
	AtSecond int
}

// AreYouOK aggregates instrument health: true iff every subscribed
// instrument's matcher reports no unmatched exchange snapshots (§4.10).
func (mu *Multiplexer) AreYouOK() bool {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	for _, inst := range mu.instruments {
		if !inst.matcher.AreYouOK() {
			return false
		}
	}
	return true
}

// ReplayJob is one self-contained unit of offline-replay work: a
// SecurityID plus the ordered messages to dispatch to it. Since
// engines are fully isolated per §5, independent instruments' jobs may
// run concurrently in replay mode.
type ReplayJob struct {
	SecurityID uint32
	Run        func()
}

// ReplayBatch runs jobs across a bounded worker pool when mu.Parallel
// is set (offline replay mode only — never used by the live dispatch
// path, which stays single-threaded per §5).
func (mu *Multiplexer) ReplayBatch(jobs []ReplayJob) error {
	if !mu.Parallel || len(jobs) <= 1 {
		for _, j := range jobs {
			j.Run()
		}
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(mu.Workers)
	for _, j := range jobs {
		job := j
		g.Go(func() error {
			job.Run()
			return nil
		})
	}
	return g.Wait()
}
