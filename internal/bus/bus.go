package bus

import (
	"sort"
	"sync"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
)

const recentSignalsKeep = 100

// Sink receives everything published on the bus; used for out-of-process
// fan-out such as the Kafka firehose.
type Sink interface {
	OnSignals(signals []models.Signal)
	OnExecutionResult(result models.ExecutionResult)
}

// Bus is the ordered publish/subscribe fan-out between analyzers, the
// execution pipeline and external consumers. Unsubscribe closures are
// idempotent.
type Bus struct {
	log *logger.Logger
	rec *metrics.Recorder

	mu         sync.Mutex
	nextToken  uint64
	signalSubs map[uint64]func([]models.Signal)
	resultSubs map[uint64]func(models.ExecutionResult)
	sinks      []Sink
	recent     []models.Signal
}

func New(log *logger.Logger, rec *metrics.Recorder) *Bus {
	return &Bus{
		log:        log,
		rec:        rec,
		signalSubs: make(map[uint64]func([]models.Signal)),
		resultSubs: make(map[uint64]func(models.ExecutionResult)),
	}
}

// AddSink attaches an out-of-process sink; call before publishing starts.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// SubscribeSignals registers a callback for every signal batch.
func (b *Bus) SubscribeSignals(fn func([]models.Signal)) func() {
	b.mu.Lock()
	b.nextToken++
	token := b.nextToken
	b.signalSubs[token] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.signalSubs, token)
		b.mu.Unlock()
	}
}

// SubscribeExecutionResults registers a callback for settled or rejected
// trade outcomes.
func (b *Bus) SubscribeExecutionResults(fn func(models.ExecutionResult)) func() {
	b.mu.Lock()
	b.nextToken++
	token := b.nextToken
	b.resultSubs[token] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.resultSubs, token)
		b.mu.Unlock()
	}
}

// PublishSignals fans a batch out to subscribers in subscription order,
// records it in the recent window and forwards to sinks.
func (b *Bus) PublishSignals(signals []models.Signal) {
	if len(signals) == 0 {
		return
	}

	b.mu.Lock()
	subs := orderedCallbacks(b.signalSubs)
	sinks := append([]Sink(nil), b.sinks...)
	b.recent = append(b.recent, signals...)
	if len(b.recent) > recentSignalsKeep {
		b.recent = b.recent[len(b.recent)-recentSignalsKeep:]
	}
	b.mu.Unlock()

	for _, s := range signals {
		b.rec.RecordSignal(string(s.Source), s.Market)
	}
	for _, fn := range subs {
		fn(signals)
	}
	for _, sink := range sinks {
		sink.OnSignals(signals)
	}
}

// PublishExecutionResult fans one trade outcome out to subscribers and sinks.
func (b *Bus) PublishExecutionResult(result models.ExecutionResult) {
	b.mu.Lock()
	subs := orderedResultCallbacks(b.resultSubs)
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(result)
	}
	for _, sink := range sinks {
		sink.OnExecutionResult(result)
	}
}

// RecentSignals returns the latest published signals, oldest first.
func (b *Bus) RecentSignals() []models.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Signal, len(b.recent))
	copy(out, b.recent)
	return out
}

func orderedCallbacks(m map[uint64]func([]models.Signal)) []func([]models.Signal) {
	tokens := make([]uint64, 0, len(m))
	for t := range m {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	out := make([]func([]models.Signal), len(tokens))
	for i, t := range tokens {
		out[i] = m[t]
	}
	return out
}

func orderedResultCallbacks(m map[uint64]func(models.ExecutionResult)) []func(models.ExecutionResult) {
	tokens := make([]uint64, 0, len(m))
	for t := range m {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	out := make([]func(models.ExecutionResult), len(tokens))
	for i, t := range tokens {
		out[i] = m[t]
	}
	return out
}
