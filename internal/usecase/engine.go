// Package usecase wires the market feed, the analyzers, the signal bus and
// the execution pipeline into one running pipeline.
package usecase

import (
	"context"
	"sync"
	"time"

	"DigitPulse/internal/analyzer"
	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/pool"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
)

// signalIndexKeep bounds the signal-to-source index used for analyzer
// feedback after settlement.
const signalIndexKeep = 500

// TickSource is the slice of the connection pool the engine needs.
type TickSource interface {
	SubscribeTicks(market string, onTick pool.TickHandler) (func(), error)
}

// SignalQueuer accepts signals for automated execution.
type SignalQueuer interface {
	QueueSignal(signal models.Signal)
}

// Engine subscribes every analyzer to its markets, drives each analyzer's
// emit and maintenance cadence, publishes generated signals on the bus and
// forwards them to the execution queue.
type Engine struct {
	source    TickSource
	bus       *bus.Bus
	queue     SignalQueuer
	analyzers []analyzer.Analyzer
	log       *logger.Logger
	rec       *metrics.Recorder
	clk       clock.Clock

	mu          sync.Mutex
	unsubs      []func()
	signalIndex map[string]models.Signal
	indexOrder  []string
	started     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(source TickSource, b *bus.Bus, queue SignalQueuer, analyzers []analyzer.Analyzer, log *logger.Logger, rec *metrics.Recorder, clk clock.Clock) *Engine {
	return &Engine{
		source:      source,
		bus:         b,
		queue:       queue,
		analyzers:   analyzers,
		log:         log,
		rec:         rec,
		clk:         clk,
		signalIndex: make(map[string]models.Signal),
	}
}

// Start subscribes analyzers to their markets and launches one cadence
// goroutine per analyzer. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)

	for _, a := range e.analyzers {
		a := a
		for _, market := range a.Markets() {
			market := market
			unsub, err := e.source.SubscribeTicks(market, func(t models.Tick) {
				a.OnDigit(t.Market, t.Digit())
			})
			if err != nil {
				e.log.Error("tick subscription failed",
					logger.String("analyzer", a.Name()),
					logger.String("market", market),
					logger.Error(err),
				)
				continue
			}
			e.mu.Lock()
			e.unsubs = append(e.unsubs, unsub)
			e.mu.Unlock()
		}

		e.wg.Add(1)
		go e.runAnalyzer(ctx, a)
	}

	unsub := e.bus.SubscribeExecutionResults(e.onExecutionResult)
	e.mu.Lock()
	e.unsubs = append(e.unsubs, unsub)
	e.mu.Unlock()

	e.log.Info("analysis engine started", logger.Int("analyzers", len(e.analyzers)))
	return nil
}

func (e *Engine) runAnalyzer(ctx context.Context, a analyzer.Analyzer) {
	defer e.wg.Done()

	emit := e.clk.NewTicker(a.Interval())
	defer emit.Stop()

	var maintC <-chan time.Time
	maintainer, isMaintainer := a.(analyzer.Maintainer)
	if isMaintainer {
		maint := e.clk.NewTicker(maintainer.MaintenanceInterval())
		defer maint.Stop()
		maintC = maint.C()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-emit.C():
			start := time.Now()
			signals := a.Generate(e.clk.Now())
			e.rec.RecordLatency("signal_generation", time.Since(start).Seconds())
			if len(signals) == 0 {
				continue
			}
			e.dispatch(signals)
		case <-maintC:
			maintainer.Maintain()
		}
	}
}

func (e *Engine) dispatch(signals []models.Signal) {
	e.mu.Lock()
	for _, s := range signals {
		e.signalIndex[s.ID] = s
		e.indexOrder = append(e.indexOrder, s.ID)
	}
	for len(e.indexOrder) > signalIndexKeep {
		delete(e.signalIndex, e.indexOrder[0])
		e.indexOrder = e.indexOrder[1:]
	}
	e.mu.Unlock()

	e.bus.PublishSignals(signals)
	for _, s := range signals {
		e.queue.QueueSignal(s)
	}
}

// onExecutionResult feeds settled outcomes back to the analyzer that
// produced the signal. Only the neural analyzer consumes feedback today.
func (e *Engine) onExecutionResult(result models.ExecutionResult) {
	if result.Trade == nil || result.Trade.Status == models.TradeActive {
		return
	}

	e.mu.Lock()
	signal, ok := e.signalIndex[result.Trade.SignalID]
	e.mu.Unlock()
	if !ok {
		return
	}

	wasCorrect := result.Trade.Status == models.TradeWon
	for _, a := range e.analyzers {
		if a.Source() != signal.Source {
			continue
		}
		if n, ok := a.(*analyzer.Neural); ok {
			n.UpdatePerformance(signal.Market, wasCorrect)
		}
	}
}

// Stop cancels the cadence goroutines and releases every subscription.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.started = false
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	e.log.Info("analysis engine stopped")
}
