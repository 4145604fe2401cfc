// Package execution drains queued signals into upstream contract purchases,
// monitors open contracts to settlement and feeds outcomes back into stake
// accounting.
package execution

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/stake"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
)

const (
	drainInterval    = time.Second
	monitorInterval  = 5 * time.Second
	historyRetention = 1000
)

// Requester sends one correlated request/response round trip upstream.
type Requester interface {
	SendRequest(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error)
}

type openTrade struct {
	contractID string
	signalID   string
	market     string
	typ        models.SignalType
	stake      float64
	entryDigit int
	placedAt   time.Time
}

// Service owns the execution queue, the open-trade set and the settlement
// scanner. Trades move QUEUED, PLACING, OPEN, SETTLED; expired or non-active
// signals are dropped at queue time or at pre-placement re-validation.
type Service struct {
	req    Requester
	stakes *stake.Manager
	bus    *bus.Bus
	log    *logger.Logger
	rec    *metrics.Recorder
	clk    clock.Clock

	mu       sync.Mutex
	settings models.AutoTraderSettings
	queue    []models.Signal
	open     map[string]openTrade
	history  []models.TradeRecord
	draining bool
	scanning bool

	cancel context.CancelFunc
}

func NewService(req Requester, stakes *stake.Manager, b *bus.Bus, log *logger.Logger, rec *metrics.Recorder, clk clock.Clock, settings models.AutoTraderSettings) *Service {
	return &Service{
		req:      req,
		stakes:   stakes,
		bus:      b,
		log:      log,
		rec:      rec,
		clk:      clk,
		settings: settings,
		open:     make(map[string]openTrade),
	}
}

// Start launches the queue-drain and settlement timers. Both cycles run on
// one goroutine so a drain never overlaps a scan.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	drain := s.clk.NewTicker(drainInterval)
	monitor := s.clk.NewTicker(monitorInterval)

	go func() {
		defer drain.Stop()
		defer monitor.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-drain.C():
				s.drainQueue(ctx)
			case <-monitor.C():
				s.scanOpenTrades(ctx)
			}
		}
	}()
}

// Stop cancels the timers. Open contracts keep running upstream.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// QueueSignal appends a signal to the execution queue. Disabled auto trading
// and already-invalid signals are rejected with a logged reason.
func (s *Service) QueueSignal(signal models.Signal) {
	s.mu.Lock()
	enabled := s.settings.Enabled
	s.mu.Unlock()

	if !enabled {
		s.log.Debug("auto trader disabled, signal not queued", logger.String("signal_id", signal.ID))
		return
	}
	if !signal.Valid(s.clk.Now()) {
		s.log.Debug("signal invalid at queue time",
			logger.String("signal_id", signal.ID),
			logger.String("market", signal.Market),
		)
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, signal)
	s.mu.Unlock()
	s.log.Info("signal queued for execution",
		logger.String("signal_id", signal.ID),
		logger.String("market", signal.Market),
		logger.String("type", string(signal.Type)),
	)
}

// drainQueue pops signals in FIFO order while the open-trade cap allows,
// re-validating each one immediately before placement. A single in-flight
// flag keeps cycles from overlapping.
func (s *Service) drainQueue(ctx context.Context) {
	s.mu.Lock()
	if s.draining || !s.settings.Enabled {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 || len(s.open) >= s.settings.MaxConcurrentTrades {
			s.mu.Unlock()
			return
		}
		signal := s.queue[0]
		s.queue = s.queue[1:]
		delay := s.settings.DelayBetweenTrades
		s.mu.Unlock()

		if decision := s.stakes.ShouldStopTrading(); decision.ShouldStop {
			s.halt(decision.Reason)
			return
		}

		if !signal.Valid(s.clk.Now()) {
			s.log.Debug("queued signal expired before placement", logger.String("signal_id", signal.ID))
			continue
		}

		s.place(ctx, signal)

		if delay > 0 {
			s.clk.Sleep(delay)
		}
	}
}

// ExecuteManually places a signal immediately, bypassing the queue and the
// concurrency cap.
func (s *Service) ExecuteManually(ctx context.Context, signal models.Signal) models.ExecutionResult {
	if !signal.Valid(s.clk.Now()) {
		result := models.ExecutionResult{Error: "signal expired or inactive"}
		s.bus.PublishExecutionResult(result)
		return result
	}
	return s.place(ctx, signal)
}

func (s *Service) place(ctx context.Context, signal models.Signal) models.ExecutionResult {
	s.mu.Lock()
	mode := s.settings.RiskMode
	s.mu.Unlock()

	transformed := applyRiskMode(mode, signal)
	amount := s.stakes.RecommendedStake(signal.Confidence)

	raw, err := s.req.SendRequest(ctx, buildBuyRequest(transformed, amount))
	if err != nil {
		s.rec.RecordError("trade_placement")
		s.log.Error("trade placement failed",
			logger.String("signal_id", signal.ID),
			logger.String("market", signal.Market),
			logger.Error(err),
		)
		result := models.ExecutionResult{Error: err.Error()}
		s.bus.PublishExecutionResult(result)
		return result
	}

	var resp struct {
		Buy *struct {
			ContractID json.Number `json:"contract_id"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Buy == nil {
		s.rec.RecordError("trade_placement")
		result := models.ExecutionResult{Error: "malformed buy response"}
		s.bus.PublishExecutionResult(result)
		return result
	}
	contractID := resp.Buy.ContractID.String()

	now := s.clk.Now()
	record := models.TradeRecord{
		ContractID: contractID,
		SignalID:   signal.ID,
		Market:     signal.Market,
		Type:       transformed.Type,
		Stake:      amount,
		Status:     models.TradeActive,
		EntryDigit: signal.EntryDigit,
		Timestamp:  now,
	}

	s.mu.Lock()
	s.open[contractID] = openTrade{
		contractID: contractID,
		signalID:   signal.ID,
		market:     signal.Market,
		typ:        transformed.Type,
		stake:      amount,
		entryDigit: signal.EntryDigit,
		placedAt:   now,
	}
	s.history = append(s.history, record)
	if len(s.history) > historyRetention {
		s.history = s.history[len(s.history)-historyRetention:]
	}
	openCount := len(s.open)
	s.mu.Unlock()

	s.rec.RecordTradePlaced(signal.Market, string(transformed.Type))
	s.rec.SetOpenTrades(openCount)
	s.log.Info("trade placed",
		logger.String("contract_id", contractID),
		logger.String("market", signal.Market),
		logger.String("type", string(transformed.Type)),
		logger.Float64("stake", amount),
	)

	result := models.ExecutionResult{Success: true, ContractID: contractID, Trade: &record}
	s.bus.PublishExecutionResult(result)
	return result
}

// scanOpenTrades polls every open contract and settles the ones upstream
// reports as finished. Guarded by its own in-flight flag.
func (s *Service) scanOpenTrades(ctx context.Context) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return
	}
	s.scanning = true
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	settled := false
	for _, contractID := range ids {
		raw, err := s.req.SendRequest(ctx, map[string]interface{}{
			"proposal_open_contract": 1,
			"contract_id":            contractID,
		})
		if err != nil {
			s.rec.RecordError("trade_monitor")
			s.log.Warn("open contract poll failed",
				logger.String("contract_id", contractID),
				logger.Error(err),
			)
			continue
		}

		var resp struct {
			Contract *struct {
				IsSettleable int     `json:"is_settleable"`
				IsSold       int     `json:"is_sold"`
				Profit       float64 `json:"profit"`
			} `json:"proposal_open_contract"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil || resp.Contract == nil {
			continue
		}
		if resp.Contract.IsSettleable == 0 && resp.Contract.IsSold == 0 {
			continue
		}

		s.settle(contractID, resp.Contract.Profit)
		settled = true
	}

	if settled {
		if decision := s.stakes.ShouldStopTrading(); decision.ShouldStop {
			s.halt(decision.Reason)
		}
	}
}

func (s *Service) settle(contractID string, profit float64) {
	s.mu.Lock()
	trade, ok := s.open[contractID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.open, contractID)

	status := models.TradeLost
	if profit > 0 {
		status = models.TradeWon
	}
	var record models.TradeRecord
	for i := range s.history {
		if s.history[i].ContractID == contractID {
			s.history[i].Profit = profit
			s.history[i].Status = status
			record = s.history[i]
			break
		}
	}
	openCount := len(s.open)
	s.mu.Unlock()

	if record.ContractID == "" {
		record = models.TradeRecord{
			ContractID: contractID,
			SignalID:   trade.signalID,
			Market:     trade.market,
			Type:       trade.typ,
			Stake:      trade.stake,
			Profit:     profit,
			Status:     status,
			EntryDigit: trade.entryDigit,
			Timestamp:  trade.placedAt,
		}
	}

	s.stakes.RecordTrade(record)
	s.rec.RecordTradeSettled(string(status))
	s.rec.SetOpenTrades(openCount)
	s.log.Info("trade settled",
		logger.String("contract_id", contractID),
		logger.String("status", string(status)),
		logger.Float64("profit", profit),
	)

	s.bus.PublishExecutionResult(models.ExecutionResult{Success: true, ContractID: contractID, Trade: &record})
}

// halt disables auto trading and clears the queue; open trades settle on
// their own.
func (s *Service) halt(reason string) {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.settings.Enabled = false
	s.mu.Unlock()

	s.log.Warn("auto trading halted",
		logger.String("reason", reason),
		logger.Int("dropped_signals", dropped),
	)
}

// StopAll abandons the open-trade set and the queue. Contracts already
// purchased keep running upstream and are no longer monitored.
func (s *Service) StopAll() {
	s.mu.Lock()
	s.open = make(map[string]openTrade)
	s.queue = nil
	s.mu.Unlock()
	s.rec.SetOpenTrades(0)
	s.log.Warn("all active trades abandoned")
}

// Settings returns a copy of the auto trader settings.
func (s *Service) Settings() models.AutoTraderSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the auto trader settings.
func (s *Service) UpdateSettings(settings models.AutoTraderSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.log.Info("auto trader settings updated",
		logger.Bool("enabled", settings.Enabled),
		logger.Int("max_concurrent", settings.MaxConcurrentTrades),
		logger.String("risk_mode", string(settings.RiskMode)),
	)
}

// OpenTradeCount reports how many contracts are currently unsettled.
func (s *Service) OpenTradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// QueueLength reports how many signals are waiting for placement.
func (s *Service) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// History returns a copy of this service's placement records, oldest first.
func (s *Service) History() []models.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TradeRecord(nil), s.history...)
}

// Stats summarises placements and settlements since startup.
type Stats struct {
	TotalTrades int     `json:"total_trades"`
	OpenTrades  int     `json:"open_trades"`
	WinRate     float64 `json:"win_rate"`
	TotalProfit float64 `json:"total_profit"`
}

func (s *Service) ExecutionStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed, wins int
	var profit float64
	for _, t := range s.history {
		if t.Status == models.TradeActive {
			continue
		}
		completed++
		profit += t.Profit
		if t.Status == models.TradeWon {
			wins++
		}
	}

	st := Stats{
		TotalTrades: len(s.history),
		OpenTrades:  len(s.open),
		TotalProfit: profit,
	}
	if completed > 0 {
		st.WinRate = float64(wins) / float64(completed)
	}
	return st
}
