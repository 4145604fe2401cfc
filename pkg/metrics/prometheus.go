package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the pipeline's operational counters via Prometheus.
type Recorder struct {
	ticksTotal      *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	tradesPlaced    *prometheus.CounterVec
	tradesSettled   *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	openConnections prometheus.Gauge
	openTrades      prometheus.Gauge
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the recorder's collectors on reg; tests pass a fresh
// prometheus.NewRegistry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		ticksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_ticks_total",
				Help: "Total number of ticks received per market",
			},
			[]string{"market"},
		),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_signals_total",
				Help: "Total number of signals emitted",
			},
			[]string{"source", "market"},
		),
		tradesPlaced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_trades_placed_total",
				Help: "Total number of trades placed",
			},
			[]string{"market", "type"},
		),
		tradesSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_trades_settled_total",
				Help: "Total number of trades settled",
			},
			[]string{"status"},
		),
		reconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_reconnects_total",
				Help: "Total number of reconnect attempts per pooled connection",
			},
			[]string{"client_id"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digitpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		openConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "digitpulse_open_connections",
				Help: "Number of currently open pooled connections",
			},
		),
		openTrades: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "digitpulse_open_trades",
				Help: "Number of currently open trades",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digitpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records a received tick.
func (r *Recorder) RecordTick(market string) {
	r.ticksTotal.WithLabelValues(market).Inc()
}

// RecordSignal records an emitted signal.
func (r *Recorder) RecordSignal(source, market string) {
	r.signalsTotal.WithLabelValues(source, market).Inc()
}

// RecordTradePlaced records a placed trade.
func (r *Recorder) RecordTradePlaced(market, contractType string) {
	r.tradesPlaced.WithLabelValues(market, contractType).Inc()
}

// RecordTradeSettled records a settlement outcome.
func (r *Recorder) RecordTradeSettled(status string) {
	r.tradesSettled.WithLabelValues(status).Inc()
}

// RecordReconnect records a reconnect attempt.
func (r *Recorder) RecordReconnect(clientID string) {
	r.reconnectsTotal.WithLabelValues(clientID).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// SetOpenConnections updates the open-connection gauge.
func (r *Recorder) SetOpenConnections(n int) {
	r.openConnections.Set(float64(n))
}

// SetOpenTrades updates the open-trade gauge.
func (r *Recorder) SetOpenTrades(n int) {
	r.openTrades.Set(float64(n))
}

// RecordLatency records an operation duration in seconds.
func (r *Recorder) RecordLatency(operation string, seconds float64) {
	r.latency.WithLabelValues(operation).Observe(seconds)
}
