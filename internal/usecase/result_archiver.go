package usecase

import (
	"context"
	"encoding/json"
	"time"

	"DigitPulse/internal/domain/models"
	pkgkafka "DigitPulse/pkg/kafka"
	"DigitPulse/pkg/metrics"
)

// TradeWriter stores settled trades; the ClickHouse archive satisfies it.
type TradeWriter interface {
	OnExecutionResult(result models.ExecutionResult)
}

// ResultArchiver consumes the execution-result firehose topic and writes
// settled trades to durable storage. It runs in archiver deployments where
// the trading process only publishes to Kafka.
type ResultArchiver struct {
	topic  string
	writer TradeWriter
	rec    *metrics.Recorder
}

func NewResultArchiver(topic string, writer TradeWriter, rec *metrics.Recorder) *ResultArchiver {
	return &ResultArchiver{topic: topic, writer: writer, rec: rec}
}

func (a *ResultArchiver) Topic() string { return a.topic }

func (a *ResultArchiver) Handle(_ context.Context, b []byte) error {
	var result models.ExecutionResult
	if err := json.Unmarshal(b, &result); err != nil {
		a.rec.RecordError("result_unmarshal")
		return err
	}
	if result.Trade == nil || result.Trade.Status == models.TradeActive {
		return nil
	}

	// Lag from settlement to archive write.
	a.rec.RecordLatency("archive_e2e_seconds", time.Since(result.Trade.Timestamp).Seconds())

	start := time.Now()
	a.writer.OnExecutionResult(result)
	a.rec.RecordLatency("archive_insert_seconds", time.Since(start).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*ResultArchiver)(nil)
