package bus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log, metrics.NewWith(prometheus.NewRegistry()))
}

func sampleSignal(id string) models.Signal {
	return models.Signal{
		ID:         id,
		Market:     "R_25",
		Type:       models.SignalOver,
		Source:     models.SourceFreq,
		Confidence: models.ConfidenceHigh,
		ExpiresAt:  time.Now().Add(45 * time.Second),
	}
}

func TestPublishSignalsFansOutInSubscriptionOrder(t *testing.T) {
	b := newTestBus(t)

	var order []string
	b.SubscribeSignals(func([]models.Signal) { order = append(order, "first") })
	b.SubscribeSignals(func([]models.Signal) { order = append(order, "second") })
	b.SubscribeSignals(func([]models.Signal) { order = append(order, "third") })

	b.PublishSignals([]models.Signal{sampleSignal("s1")})

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected fan-out order: %v", order)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBus(t)

	calls := 0
	unsub := b.SubscribeSignals(func([]models.Signal) { calls++ })

	b.PublishSignals([]models.Signal{sampleSignal("s1")})
	unsub()
	unsub()
	b.PublishSignals([]models.Signal{sampleSignal("s2")})

	if calls != 1 {
		t.Fatalf("expected exactly one delivery, got %d", calls)
	}
}

func TestEmptyBatchIsDropped(t *testing.T) {
	b := newTestBus(t)

	calls := 0
	b.SubscribeSignals(func([]models.Signal) { calls++ })

	b.PublishSignals(nil)
	b.PublishSignals([]models.Signal{})

	if calls != 0 {
		t.Fatalf("empty batches must not be delivered, got %d calls", calls)
	}
}

func TestRecentSignalsWindowIsBounded(t *testing.T) {
	b := newTestBus(t)

	for i := 0; i < recentSignalsKeep+25; i++ {
		b.PublishSignals([]models.Signal{sampleSignal("x")})
	}

	recent := b.RecentSignals()
	if len(recent) != recentSignalsKeep {
		t.Fatalf("expected window of %d, got %d", recentSignalsKeep, len(recent))
	}
}

func TestExecutionResultsReachSubscribersAndSinks(t *testing.T) {
	b := newTestBus(t)

	var got models.ExecutionResult
	b.SubscribeExecutionResults(func(r models.ExecutionResult) { got = r })

	sink := &captureSink{}
	b.AddSink(sink)

	b.PublishExecutionResult(models.ExecutionResult{Success: true, ContractID: "c-42"})

	if !got.Success || got.ContractID != "c-42" {
		t.Fatalf("subscriber did not receive result: %+v", got)
	}
	if len(sink.results) != 1 || sink.results[0].ContractID != "c-42" {
		t.Fatalf("sink did not receive result: %+v", sink.results)
	}
}

type captureSink struct {
	batches [][]models.Signal
	results []models.ExecutionResult
}

func (c *captureSink) OnSignals(s []models.Signal)                 { c.batches = append(c.batches, s) }
func (c *captureSink) OnExecutionResult(r models.ExecutionResult) { c.results = append(c.results, r) }
