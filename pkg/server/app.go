package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"DigitPulse/internal/analyzer"
	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/execution"
	"DigitPulse/internal/handler/api"
	"DigitPulse/internal/pool"
	"DigitPulse/internal/repository"
	"DigitPulse/internal/stake"
	"DigitPulse/internal/usecase"
	pkgch "DigitPulse/pkg/clickhouse"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/config"
	xhttp "DigitPulse/pkg/http"
	pkgkafka "DigitPulse/pkg/kafka"
	applogger "DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
	"DigitPulse/pkg/store"
)

// kafkaLogPublisher adapts the kafka producer to the log collector's
// Publisher interface.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

// App wires every component explicitly and owns their lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	rec *metrics.Recorder

	st       store.Store
	pool     *pool.Pool
	bus      *bus.Bus
	stakes   *stake.Manager
	exec     *execution.Service
	engine   *usecase.Engine
	firehose *bus.Firehose

	producer   *pkgkafka.Producer
	consumer   *pkgkafka.Consumer
	chClient   *pkgch.Client
	archive    *repository.Archive
	httpServer *xhttp.Server
}

// New builds the full application graph from configuration. Components are
// constructed in dependency order; optional infrastructure (kafka,
// clickhouse, redis) is only wired when enabled.
func New(cfg *config.Config) (*App, error) {
	log, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rec := metrics.New()
	clk := clock.New()

	a := &App{cfg: cfg, log: log, rec: rec}

	if cfg.Kafka.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithAsync(cfg.Kafka.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.producer = producer

		if cfg.Kafka.LogTopic != "" {
			log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          cfg.Kafka.LogTopic,
				Publisher:      kafkaLogPublisher{producer: producer},
			})
		}
	}

	st, err := newStore(cfg)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.st = st

	appIDs := make([]string, 0, len(cfg.Deriv.AppIDs))
	for _, id := range cfg.Deriv.AppIDs {
		appIDs = append(appIDs, strconv.Itoa(id))
	}
	a.pool = pool.New(pool.Config{
		Endpoint:             cfg.Deriv.Endpoint,
		AppIDs:               appIDs,
		ReconnectDelay:       cfg.Deriv.ReconnectDelay,
		MaxReconnectAttempts: cfg.Deriv.MaxReconnectAttempts,
		PingInterval:         cfg.Deriv.PingInterval,
		RequestTimeout:       cfg.Deriv.RequestTimeout,
	}, log, rec)

	a.bus = bus.New(log, rec)

	if a.producer != nil && cfg.Kafka.SignalTopic != "" {
		a.firehose = bus.NewFirehose(a.producer, cfg.Kafka.SignalTopic, cfg.Kafka.ResultTopic, log)
		a.bus.AddSink(a.firehose)
	}

	if cfg.ClickHouse.Enabled {
		chClient, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, false),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("init clickhouse: %w", err)
		}
		a.chClient = chClient
		a.archive = repository.NewArchive(chClient.DB(), cfg.ClickHouse.SignalTable, cfg.ClickHouse.TradeTable, log)
		a.bus.AddSink(a.archive)
	}

	a.stakes = stake.NewManager(st, log, clk)
	a.stakes.UpdateSettings(models.StakeSettings{
		BaseStake:            cfg.Stake.BaseStake,
		MartingaleMultiplier: cfg.Stake.MartingaleMultiplier,
		MaxMartingaleSteps:   cfg.Stake.MaxMartingaleSteps,
		TakeProfitLimit:      cfg.Stake.TakeProfitLimit,
		StopLossLimit:        cfg.Stake.StopLossLimit,
		AutoStakeAdjustment:  cfg.Stake.AutoStakeAdjustment,
	})

	a.exec = execution.NewService(a.pool, a.stakes, a.bus, log, rec, clk, models.AutoTraderSettings{
		Enabled:             cfg.AutoTrader.Enabled,
		MaxConcurrentTrades: cfg.AutoTrader.MaxConcurrentTrades,
		RiskMode:            models.RiskMode(cfg.AutoTrader.RiskMode),
		DelayBetweenTrades:  cfg.AutoTrader.DelayBetweenTrades,
	})

	neural := analyzer.NewNeural(cfg.Analyzers.NeuralSeed)
	freq := analyzer.NewFrequency()
	pattern := analyzer.NewPattern()
	zones := analyzer.NewZones(clk.Now)
	trend := analyzer.NewTrend()

	a.engine = usecase.NewEngine(a.pool, a.bus, a.exec,
		[]analyzer.Analyzer{neural, freq, pattern, zones, trend},
		log, rec, clk)

	if a.producer != nil && cfg.Kafka.Consumer.GroupID != "" {
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("init kafka consumer: %w", err)
		}
		if a.archive != nil {
			consumer.RegisterHandler(usecase.NewResultArchiver(cfg.Kafka.ResultTopic, a.archive, rec))
		}
		a.consumer = consumer
	}

	handler := api.NewTradingHandler(log, a.pool, a.bus, a.stakes, a.exec, freq, pattern, zones)
	if a.archive != nil {
		handler.SetArchive(a.archive)
	}
	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)

	return a, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Type != "redis" {
		return store.NewMemoryStore(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Store.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse store.redis.addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse store.redis.addr port: %w", err)
	}
	return store.NewRedisStore(
		store.WithAddr(host, port),
		store.WithPassword(cfg.Store.Redis.Password),
		store.WithDB(cfg.Store.Redis.DB),
		store.WithPrefix("digitpulse"),
	)
}

// Run starts every component and blocks until an interrupt or termination
// signal arrives, then shuts down in reverse order.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}
	a.log.Info("connection pool started",
		applogger.String("endpoint", a.cfg.Deriv.Endpoint),
		applogger.Int("connections", len(a.cfg.Deriv.AppIDs)))

	if a.cfg.Deriv.APIToken != "" {
		a.authorize(ctx)
	}

	if a.chClient != nil {
		if err := a.chClient.InitSchema(ctx, a.archive.Schema()); err != nil {
			a.log.Warn("clickhouse schema init failed", applogger.Error(err))
		}
	}

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	a.exec.Start(ctx)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("group", a.cfg.Kafka.Consumer.GroupID))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// authorize sends the account token over the pool so trade calls carry an
// authenticated session, and seeds the stake manager with the account
// balance so the insufficient-balance stop check works against real funds.
// Failure is not fatal; signal generation still works.
func (a *App) authorize(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Deriv.RequestTimeout)
	defer cancel()
	raw, err := a.pool.SendRequest(reqCtx, map[string]interface{}{
		"authorize": a.cfg.Deriv.APIToken,
	})
	if err != nil {
		a.log.Warn("authorize failed, trading calls will be rejected upstream", applogger.Error(err))
		return
	}

	balance, ok := balanceFromAuthorize(raw)
	if !ok {
		a.log.Warn("authorize response carried no balance, auto trading will stay halted")
		return
	}
	a.stakes.SetBalance(balance)
	a.log.Info("account authorized", applogger.Float64("balance", balance))
}

// balanceFromAuthorize extracts the account balance from an authorize
// response payload.
func balanceFromAuthorize(raw json.RawMessage) (float64, bool) {
	var resp struct {
		Authorize struct {
			Balance float64 `json:"balance"`
		} `json:"authorize"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Authorize.Balance <= 0 {
		return 0, false
	}
	return resp.Authorize.Balance, true
}

func (a *App) shutdown(ctx context.Context) error {
	a.engine.Stop()
	a.exec.Stop()
	a.pool.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.closePartial()
	a.log.Info("shutdown complete")
	return nil
}

// closePartial releases infrastructure clients. Safe on a half-built App.
func (a *App) closePartial() {
	if a.firehose != nil {
		a.firehose.Close()
		a.firehose = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
		a.producer = nil
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
		a.chClient = nil
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn("store close error", applogger.Error(err))
		}
		a.st = nil
	}
}
