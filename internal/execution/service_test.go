package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DigitPulse/internal/bus"
	"DigitPulse/internal/domain/models"
	"DigitPulse/internal/stake"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/metrics"
	"DigitPulse/pkg/store"
)

type fakeRequester struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	buyErr   error
	contract json.RawMessage
	nextID   int
}

func (f *fakeRequester) SendRequest(_ context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, payload)

	if _, ok := payload["buy"]; ok {
		if f.buyErr != nil {
			return nil, f.buyErr
		}
		f.nextID++
		return json.RawMessage(fmt.Sprintf(`{"buy":{"contract_id":%d}}`, 1000+f.nextID)), nil
	}
	if _, ok := payload["proposal_open_contract"]; ok {
		if f.contract != nil {
			return f.contract, nil
		}
		return json.RawMessage(`{"proposal_open_contract":{"is_settleable":0,"is_sold":0,"profit":0}}`), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeRequester) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if _, ok := r["buy"]; ok {
			n++
		}
	}
	return n
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fixture struct {
	svc    *Service
	req    *fakeRequester
	stakes *stake.Manager
	bus    *bus.Bus
	clk    *clock.Fake
}

func newFixture(t *testing.T, settings models.AutoTraderSettings) *fixture {
	t.Helper()
	log := testLogger(t)
	rec := metrics.NewWith(prometheus.NewRegistry())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	stakes := stake.NewManager(store.NewMemoryStore(), log, clk)
	stakes.SetBalance(500)
	b := bus.New(log, rec)
	req := &fakeRequester{}
	return &fixture{
		svc:    NewService(req, stakes, b, log, rec, clk, settings),
		req:    req,
		stakes: stakes,
		bus:    b,
		clk:    clk,
	}
}

func activeSignal(f *fixture, id string, typ models.SignalType, entryDigit int, ttl time.Duration) models.Signal {
	return models.Signal{
		ID:         id,
		Market:     "R_50",
		Type:       typ,
		EntryDigit: entryDigit,
		Confidence: models.ConfidenceMedium,
		Status:     models.SignalActive,
		ExpiresAt:  f.clk.Now().Add(ttl),
	}
}

func TestFirstDrainNeedsSeededBalance(t *testing.T) {
	settings := models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal}

	// Without a seeded balance the insufficient-balance stop check fires on
	// the first drain: nothing is placed and auto trading halts.
	log := testLogger(t)
	rec := metrics.NewWith(prometheus.NewRegistry())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	stakes := stake.NewManager(store.NewMemoryStore(), log, clk)
	req := &fakeRequester{}
	svc := NewService(req, stakes, bus.New(log, rec), log, rec, clk, settings)

	svc.QueueSignal(models.Signal{
		ID: "s1", Market: "R_50", Type: models.SignalOver, EntryDigit: 7,
		Confidence: models.ConfidenceMedium, Status: models.SignalActive,
		ExpiresAt: clk.Now().Add(time.Minute),
	})
	svc.drainQueue(context.Background())

	if got := req.buyCount(); got != 0 {
		t.Fatalf("unfunded service placed %d trades, want 0", got)
	}
	if svc.Settings().Enabled {
		t.Fatal("auto trader still enabled without a funded balance")
	}

	// Seeding the balance the way the authorize flow does lets a fresh
	// service place its first queued trade.
	f := newFixture(t, settings)
	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	f.svc.drainQueue(context.Background())

	if got := f.req.buyCount(); got != 1 {
		t.Fatalf("funded service placed %d trades, want 1", got)
	}
	if !f.svc.Settings().Enabled {
		t.Fatal("auto trader halted despite a funded balance")
	}
}

func TestExpiredQueuedSignalIsNeverPlaced(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, 5*time.Second))
	if f.svc.QueueLength() != 1 {
		t.Fatalf("signal not queued")
	}

	f.clk.Advance(10 * time.Second)
	f.svc.drainQueue(context.Background())

	if got := f.req.buyCount(); got != 0 {
		t.Fatalf("expired signal was placed %d times, want 0", got)
	}
	if got := f.svc.QueueLength(); got != 0 {
		t.Fatalf("expired signal left in queue")
	}
}

func TestConcurrentTradeCapHoldsBackQueue(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	f.svc.QueueSignal(activeSignal(f, "s2", models.SignalUnder, 2, time.Minute))

	f.svc.drainQueue(context.Background())

	if got := f.req.buyCount(); got != 1 {
		t.Fatalf("placed %d trades, want 1 (cap)", got)
	}
	if got := f.svc.OpenTradeCount(); got != 1 {
		t.Fatalf("open trades = %d, want 1", got)
	}
	if got := f.svc.QueueLength(); got != 1 {
		t.Fatalf("queue length = %d, want 1 held back", got)
	}
}

func TestQueueRejectedWhenAutoTraderDisabled(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))

	if got := f.svc.QueueLength(); got != 0 {
		t.Fatalf("disabled auto trader accepted a signal")
	}
}

func TestManualExecutionBypassesCap(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	f.svc.drainQueue(context.Background())

	res := f.svc.ExecuteManually(context.Background(), activeSignal(f, "s2", models.SignalEven, 4, time.Minute))
	if !res.Success {
		t.Fatalf("manual execution failed: %s", res.Error)
	}
	if got := f.svc.OpenTradeCount(); got != 2 {
		t.Fatalf("open trades = %d, want 2", got)
	}
}

func TestSettlementFeedsStakeManagerAndBus(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})

	var results []models.ExecutionResult
	f.bus.SubscribeExecutionResults(func(r models.ExecutionResult) { results = append(results, r) })

	res := f.svc.ExecuteManually(context.Background(), activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	if !res.Success {
		t.Fatalf("placement failed: %s", res.Error)
	}

	f.req.contract = json.RawMessage(`{"proposal_open_contract":{"is_settleable":1,"is_sold":0,"profit":-1.5}}`)
	f.svc.scanOpenTrades(context.Background())

	if got := f.svc.OpenTradeCount(); got != 0 {
		t.Fatalf("open trades after settlement = %d, want 0", got)
	}
	stats := f.stakes.SessionStats()
	if stats.TotalTrades != 1 || stats.ConsecutiveLosses != 1 {
		t.Fatalf("stake manager not updated: %+v", stats)
	}
	if len(results) != 2 {
		t.Fatalf("expected placement and settlement results, got %d", len(results))
	}
	last := results[len(results)-1]
	if last.Trade == nil || last.Trade.Status != models.TradeLost || last.Trade.Profit != -1.5 {
		t.Fatalf("settlement result malformed: %+v", last)
	}
}

func TestStopLossHaltsDrainAndClearsQueue(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 5, RiskMode: models.RiskNormal})

	settings := f.stakes.Settings()
	settings.StopLossLimit = -10
	f.stakes.UpdateSettings(settings)
	f.stakes.RecordTrade(models.TradeRecord{
		ContractID: "c-big-loss", Market: "R_50", Type: models.SignalOver,
		Stake: 15, Profit: -15, Status: models.TradeLost,
	})

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	f.svc.QueueSignal(activeSignal(f, "s2", models.SignalUnder, 2, time.Minute))
	f.svc.drainQueue(context.Background())

	if got := f.req.buyCount(); got != 0 {
		t.Fatalf("placed %d trades past the stop loss, want 0", got)
	}
	if f.svc.Settings().Enabled {
		t.Fatal("auto trader still enabled after halt")
	}
	if got := f.svc.QueueLength(); got != 0 {
		t.Fatalf("queue not cleared on halt: %d", got)
	}
}

func TestPlacementFailureDoesNotBlockQueue(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 5, RiskMode: models.RiskNormal})
	f.req.buyErr = fmt.Errorf("upstream: contract rejected")

	var results []models.ExecutionResult
	f.bus.SubscribeExecutionResults(func(r models.ExecutionResult) { results = append(results, r) })

	f.svc.QueueSignal(activeSignal(f, "s1", models.SignalOver, 7, time.Minute))
	f.svc.QueueSignal(activeSignal(f, "s2", models.SignalUnder, 2, time.Minute))
	f.svc.drainQueue(context.Background())

	if got := f.req.buyCount(); got != 2 {
		t.Fatalf("buy attempts = %d, want 2", got)
	}
	if len(results) != 2 || results[0].Success || results[1].Success {
		t.Fatalf("expected two failure results, got %+v", results)
	}
	if got := f.svc.OpenTradeCount(); got != 0 {
		t.Fatalf("open trades = %d, want 0", got)
	}
}

func TestPlacementHistoryRetentionCap(t *testing.T) {
	f := newFixture(t, models.AutoTraderSettings{Enabled: true, MaxConcurrentTrades: 1, RiskMode: models.RiskNormal})
	f.req.contract = json.RawMessage(`{"proposal_open_contract":{"is_settleable":1,"is_sold":0,"profit":0}}`)

	for i := 0; i < historyRetention+5; i++ {
		id := fmt.Sprintf("s%d", i)
		res := f.svc.ExecuteManually(context.Background(), activeSignal(f, id, models.SignalOver, 7, time.Minute))
		if !res.Success {
			t.Fatalf("placement %d failed: %s", i, res.Error)
		}
		f.svc.scanOpenTrades(context.Background())
	}

	history := f.svc.History()
	if got := len(history); got != historyRetention {
		t.Fatalf("history length = %d, want %d", got, historyRetention)
	}
	if got := history[len(history)-1].SignalID; got != fmt.Sprintf("s%d", historyRetention+4) {
		t.Fatalf("newest record = %s, want the last placement", got)
	}
}

func TestRiskModeRemapping(t *testing.T) {
	cases := []struct {
		mode  models.RiskMode
		typ   models.SignalType
		digit int
		want  models.SignalType
	}{
		{models.RiskNormal, models.SignalRise, 4, models.SignalRise},
		{models.RiskLessRisky, models.SignalRise, 4, models.SignalEven},
		{models.RiskLessRisky, models.SignalFall, 7, models.SignalOdd},
		{models.RiskLessRisky, models.SignalOver, 7, models.SignalOver},
		{models.RiskOver3Under, models.SignalRise, 2, models.SignalOver},
		{models.RiskOver3Under, models.SignalRise, 8, models.SignalUnder},
		{models.RiskOver3Under, models.SignalRise, 5, models.SignalRise},
	}
	for _, c := range cases {
		got := applyRiskMode(c.mode, models.Signal{Type: c.typ, EntryDigit: c.digit})
		if got.Type != c.want {
			t.Fatalf("mode %s digit %d: %s -> %s, want %s", c.mode, c.digit, c.typ, got.Type, c.want)
		}
	}
}

func TestContractRequestForDigitContracts(t *testing.T) {
	req := buildBuyRequest(models.Signal{Market: "R_25", Type: models.SignalOver}, 1.5)

	params, ok := req["parameters"].(map[string]interface{})
	if !ok {
		t.Fatal("parameters missing")
	}
	if params["contract_type"] != contractDigitOver {
		t.Fatalf("contract_type = %v, want %s", params["contract_type"], contractDigitOver)
	}
	if params["barrier"] != "5" {
		t.Fatalf("barrier = %v, want \"5\"", params["barrier"])
	}
	if params["duration"] != 1 || params["duration_unit"] != "t" {
		t.Fatalf("duration = %v%v, want 1t", params["duration"], params["duration_unit"])
	}
	if req["price"] != 1.5 {
		t.Fatalf("price = %v, want 1.5", req["price"])
	}
}
