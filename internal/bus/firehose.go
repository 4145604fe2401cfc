package bus

import (
	"context"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/kafka"
	"DigitPulse/pkg/logger"
)

const firehoseTimeout = 5 * time.Second

// Firehose streams every signal and trade outcome to Kafka so downstream
// consumers can replay the session without hitting the trading process.
type Firehose struct {
	producer    *kafka.Producer
	signalTopic string
	resultTopic string
	log         *logger.Logger
}

func NewFirehose(producer *kafka.Producer, signalTopic, resultTopic string, log *logger.Logger) *Firehose {
	return &Firehose{
		producer:    producer,
		signalTopic: signalTopic,
		resultTopic: resultTopic,
		log:         log,
	}
}

func (f *Firehose) OnSignals(signals []models.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), firehoseTimeout)
	defer cancel()

	for _, s := range signals {
		if err := f.producer.Publish(ctx, f.signalTopic, []byte(s.Market), s); err != nil {
			f.log.Warn("firehose signal publish failed",
				logger.String("market", s.Market),
				logger.String("signal_id", s.ID),
				logger.Error(err),
			)
			return
		}
	}
}

func (f *Firehose) OnExecutionResult(result models.ExecutionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), firehoseTimeout)
	defer cancel()

	key := []byte(result.ContractID)
	if err := f.producer.Publish(ctx, f.resultTopic, key, result); err != nil {
		f.log.Warn("firehose result publish failed",
			logger.String("contract_id", result.ContractID),
			logger.Error(err),
		)
	}
}

func (f *Firehose) Close() error {
	return f.producer.Close()
}
