package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DigitPulse/internal/analyzer"
	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/pool"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
)

type fakeSource struct {
	mu       sync.Mutex
	handlers map[string][]pool.TickHandler
	unsubbed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[string][]pool.TickHandler)}
}

func (f *fakeSource) SubscribeTicks(market string, onTick pool.TickHandler) (func(), error) {
	f.mu.Lock()
	f.handlers[market] = append(f.handlers[market], onTick)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.unsubbed++
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) emit(t models.Tick) {
	f.mu.Lock()
	handlers := append([]pool.TickHandler(nil), f.handlers[t.Market]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(t)
	}
}

type fakeQueue struct {
	mu      sync.Mutex
	signals []models.Signal
}

func (f *fakeQueue) QueueSignal(s models.Signal) {
	f.mu.Lock()
	f.signals = append(f.signals, s)
	f.mu.Unlock()
}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals)
}

// stubAnalyzer emits a fixed signal on every cadence and counts digit
// deliveries and maintenance runs.
type stubAnalyzer struct {
	mu         sync.Mutex
	digits     []int
	maintained int
	emit       []models.Signal
}

func (s *stubAnalyzer) Name() string                { return "stub" }
func (s *stubAnalyzer) Source() models.SignalSource { return models.SourceTrend }
func (s *stubAnalyzer) Markets() []string           { return []string{"R_50"} }
func (s *stubAnalyzer) Interval() time.Duration     { return 5 * time.Second }

func (s *stubAnalyzer) OnDigit(_ string, digit int) {
	s.mu.Lock()
	s.digits = append(s.digits, digit)
	s.mu.Unlock()
}

func (s *stubAnalyzer) Generate(time.Time) []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emit
}

func (s *stubAnalyzer) MaintenanceInterval() time.Duration { return 15 * time.Second }

func (s *stubAnalyzer) Maintain() {
	s.mu.Lock()
	s.maintained++
	s.mu.Unlock()
}

func (s *stubAnalyzer) digitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.digits)
}

func (s *stubAnalyzer) maintainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintained
}

var _ analyzer.Analyzer = (*stubAnalyzer)(nil)
var _ analyzer.Maintainer = (*stubAnalyzer)(nil)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestEngineRoutesTicksAndSignals(t *testing.T) {
	log := testLogger(t)
	rec := metrics.NewWith(prometheus.NewRegistry())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	b := bus.New(log, rec)
	source := newFakeSource()
	queue := &fakeQueue{}

	stub := &stubAnalyzer{emit: []models.Signal{{
		ID:     "sig-1",
		Market: "R_50",
		Type:   models.SignalEven,
		Source: models.SourceTrend,
		Status: models.SignalActive,
	}}}

	eng := NewEngine(source, b, queue, []analyzer.Analyzer{stub}, log, rec, clk)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	source.emit(models.Tick{Market: "R_50", Quote: 1234.5677, Timestamp: clk.Now().Unix()})
	if got := stub.digitCount(); got != 1 {
		t.Fatalf("analyzer received %d digits, want 1", got)
	}

	var pubMu sync.Mutex
	published := 0
	b.SubscribeSignals(func(s []models.Signal) {
		pubMu.Lock()
		published += len(s)
		pubMu.Unlock()
	})

	clk.Advance(5 * time.Second)
	waitFor(t, func() bool { return queue.count() >= 1 }, "signal to reach execution queue")

	pubMu.Lock()
	defer pubMu.Unlock()
	if published == 0 {
		t.Fatal("signal not fanned out to bus subscribers")
	}
	if len(b.RecentSignals()) == 0 {
		t.Fatal("signal not retained on the bus")
	}
}

func TestEngineRunsMaintenanceCadence(t *testing.T) {
	log := testLogger(t)
	rec := metrics.NewWith(prometheus.NewRegistry())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	b := bus.New(log, rec)
	stub := &stubAnalyzer{}

	eng := NewEngine(newFakeSource(), b, &fakeQueue{}, []analyzer.Analyzer{stub}, log, rec, clk)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	clk.Advance(15 * time.Second)
	waitFor(t, func() bool { return stub.maintainCount() >= 1 }, "maintenance run")
}

func TestEngineStopReleasesSubscriptions(t *testing.T) {
	log := testLogger(t)
	rec := metrics.NewWith(prometheus.NewRegistry())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	source := newFakeSource()

	eng := NewEngine(source, bus.New(log, rec), &fakeQueue{}, []analyzer.Analyzer{&stubAnalyzer{}}, log, rec, clk)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	eng.Stop()

	source.mu.Lock()
	unsubbed := source.unsubbed
	source.mu.Unlock()
	if unsubbed != 1 {
		t.Fatalf("released %d subscriptions, want 1", unsubbed)
	}
}
