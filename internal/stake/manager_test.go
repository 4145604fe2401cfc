package stake

import (
	"testing"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/store"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return NewManager(st, testLogger(t), clk), st
}

func lose(m *Manager, stake float64) {
	m.RecordTrade(models.TradeRecord{
		ContractID: "c-loss",
		Market:     "R_50",
		Type:       models.SignalOver,
		Stake:      stake,
		Profit:     -stake,
		Status:     models.TradeLost,
	})
}

func win(m *Manager, stake, profit float64) {
	m.RecordTrade(models.TradeRecord{
		ContractID: "c-win",
		Market:     "R_50",
		Type:       models.SignalOver,
		Stake:      stake,
		Profit:     profit,
		Status:     models.TradeWon,
	})
}

func TestMartingaleProgressionAfterThreeLosses(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	m.UpdateSettings(models.StakeSettings{
		BaseStake:            1.0,
		MartingaleMultiplier: 2.0,
		MaxMartingaleSteps:   5,
		TakeProfitLimit:      100,
		StopLossLimit:        -50,
	})

	if got := m.CalculateNextStake(); got != 1.00 {
		t.Fatalf("fresh session stake = %v, want 1.00", got)
	}

	lose(m, 1)
	lose(m, 2)
	lose(m, 4)

	if got := m.CalculateNextStake(); got != 8.00 {
		t.Fatalf("stake after three losses = %v, want 8.00", got)
	}
	if got := m.MartingaleStep(); got != 3 {
		t.Fatalf("martingale step = %d, want 3", got)
	}
}

func TestWinResetsProgression(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)

	lose(m, 1)
	lose(m, 2)
	win(m, 4, 3.8)

	if got := m.MartingaleStep(); got != 0 {
		t.Fatalf("martingale step after win = %d, want 0", got)
	}
	if got := m.CalculateNextStake(); got != 1.00 {
		t.Fatalf("stake after win = %v, want base 1.00", got)
	}
}

func TestStakeFloor(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	s := m.Settings()
	s.BaseStake = 0.10
	m.UpdateSettings(s)

	if got := m.CalculateNextStake(); got != minStake {
		t.Fatalf("stake = %v, want floor %v", got, minStake)
	}
}

func TestAutoAdjustmentClampsBalanceRatio(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(100)
	s := m.Settings()
	s.AutoStakeAdjustment = true
	m.UpdateSettings(s)

	// Balance growing 5x clamps the multiplier at 2.0.
	m.SetBalance(500)
	if got := m.CalculateNextStake(); got != 2.00 {
		t.Fatalf("stake with inflated balance = %v, want 2.00", got)
	}
}

func TestStopLossTakesPrecedence(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	s := m.Settings()
	s.StopLossLimit = -10
	s.TakeProfitLimit = 5
	m.UpdateSettings(s)

	lose(m, 12)

	d := m.ShouldStopTrading()
	if !d.ShouldStop {
		t.Fatal("expected a stop decision")
	}
	if d.Reason != "stop loss limit reached: $-10.00" {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestTakeProfitStopsSession(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	s := m.Settings()
	s.TakeProfitLimit = 10
	m.UpdateSettings(s)

	win(m, 5, 12)

	d := m.ShouldStopTrading()
	if !d.ShouldStop || d.Reason != "take profit limit reached: $10.00" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestInsufficientBalanceStopsSession(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(1.50)

	d := m.ShouldStopTrading()
	if !d.ShouldStop || d.Reason != "insufficient balance for next trade: $1.50" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestRecommendedStakePerBand(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)

	cases := []struct {
		band models.Confidence
		want float64
	}{
		{models.ConfidenceHigh, 1.50},
		{models.ConfidenceMedium, 1.00},
		{models.ConfidenceLow, 0.70},
		{models.ConfidenceConservative, 0.50},
		{models.ConfidenceAggressive, 2.00},
	}
	for _, c := range cases {
		if got := m.RecommendedStake(c.band); got != c.want {
			t.Fatalf("band %s: stake = %v, want %v", c.band, got, c.want)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	lose(m, 1)
	win(m, 2, 1.9)

	data, err := m.ExportTradeHistory()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	other, _ := newTestManager(t)
	if err := other.ImportTradeHistory(data); err != nil {
		t.Fatalf("import: %v", err)
	}

	if got, want := other.SessionStats(), m.SessionStats(); got != want {
		t.Fatalf("stats after import = %+v, want %+v", got, want)
	}
	if got := other.TradeHistory(); len(got) != 2 {
		t.Fatalf("imported history length = %d, want 2", len(got))
	}
	if got := other.Balance(); got != m.Balance() {
		t.Fatalf("imported balance = %v, want %v", got, m.Balance())
	}
}

func TestImportRejectsMalformedData(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	win(m, 1, 0.9)

	if err := m.ImportTradeHistory([]byte("{not json")); err == nil {
		t.Fatal("expected an error importing malformed data")
	}
	if got := m.SessionStats().TotalTrades; got != 1 {
		t.Fatalf("state mutated by failed import: trades = %d", got)
	}
}

func TestCorruptPersistedStateFallsBackToDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	st.SetRaw(keySettings, []byte("garbage"))
	st.SetRaw(keyHistory, []byte("{oops"))

	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	m := NewManager(st, testLogger(t), clk)

	if got := m.Settings(); got != models.DefaultStakeSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
	if got := m.TradeHistory(); len(got) != 0 {
		t.Fatalf("history = %d entries, want empty", len(got))
	}
}

func TestHistoryRetentionCap(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(100000)

	for i := 0; i < historyRetention+10; i++ {
		win(m, 1, 0.01)
	}
	if got := len(m.TradeHistory()); got != historyRetention {
		t.Fatalf("history length = %d, want %d", got, historyRetention)
	}
}

func TestResetSessionKeepsSettingsAndBalance(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	s := m.Settings()
	s.BaseStake = 2.5
	m.UpdateSettings(s)
	lose(m, 2.5)

	m.ResetSession()

	if got := m.SessionStats(); got != (models.SessionStats{}) {
		t.Fatalf("stats after reset = %+v, want zero", got)
	}
	if got := m.Settings().BaseStake; got != 2.5 {
		t.Fatalf("base stake after reset = %v, want 2.5", got)
	}
	if got := m.Balance(); got != 497.5 {
		t.Fatalf("balance after reset = %v, want 497.5", got)
	}
	if got := len(m.TradeHistory()); got != 0 {
		t.Fatalf("history after reset = %d entries, want 0", got)
	}
}

func TestClearTradeHistoryKeepsStats(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetBalance(500)
	win(m, 1, 0.95)
	lose(m, 1)

	m.ClearTradeHistory()

	if got := len(m.TradeHistory()); got != 0 {
		t.Fatalf("history after clear = %d entries, want 0", got)
	}
	if got := m.SessionStats().TotalTrades; got != 2 {
		t.Fatalf("total trades after clear = %d, want 2", got)
	}
	if got := m.Balance(); got != 499.95 {
		t.Fatalf("balance after clear = %v, want 499.95", got)
	}
}
