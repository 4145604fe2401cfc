// Package stake implements martingale stake sizing, session accounting and
// the stop-trading guards that gate automated execution.
package stake

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/clock"
	"DigitPulse/pkg/logger"
	"DigitPulse/pkg/store"
)

const (
	keySettings = "stake:settings"
	keyStats    = "stake:stats"
	keyHistory  = "stake:history"
	keyBalance  = "stake:balance"

	minStake         = 0.35
	historyRetention = 1000
)

// StopDecision reports whether automated trading must halt and why.
type StopDecision struct {
	ShouldStop bool   `json:"should_stop"`
	Reason     string `json:"reason,omitempty"`
}

// Manager owns the martingale progression, the session statistics and the
// trade history. All methods are safe for concurrent use.
type Manager struct {
	store store.Store
	log   *logger.Logger
	clk   clock.Clock

	mu           sync.Mutex
	settings     models.StakeSettings
	stats        models.SessionStats
	history      []models.TradeRecord
	step         int
	startBalance float64
	balance      float64
}

// NewManager loads persisted state from the store; any corrupt or missing
// value falls back to defaults without failing construction.
func NewManager(st store.Store, log *logger.Logger, clk clock.Clock) *Manager {
	m := &Manager{
		store:    st,
		log:      log,
		clk:      clk,
		settings: models.DefaultStakeSettings(),
	}
	m.load()
	return m
}

func (m *Manager) load() {
	ctx := context.Background()

	var settings models.StakeSettings
	switch err := m.store.Get(ctx, keySettings, &settings); err {
	case nil:
		m.settings = settings
	case store.ErrNotFound:
	default:
		m.log.Warn("persisted stake settings unreadable, using defaults", logger.Error(err))
	}

	var stats models.SessionStats
	switch err := m.store.Get(ctx, keyStats, &stats); err {
	case nil:
		m.stats = stats
	case store.ErrNotFound:
	default:
		m.log.Warn("persisted session stats unreadable, using defaults", logger.Error(err))
	}

	var history []models.TradeRecord
	switch err := m.store.Get(ctx, keyHistory, &history); err {
	case nil:
		m.history = history
	case store.ErrNotFound:
	default:
		m.log.Warn("persisted trade history unreadable, starting empty", logger.Error(err))
	}

	var balance float64
	switch err := m.store.Get(ctx, keyBalance, &balance); err {
	case nil:
		m.balance = balance
		if m.startBalance == 0 {
			m.startBalance = balance
		}
	case store.ErrNotFound:
	default:
		m.log.Warn("persisted balance unreadable, starting at zero", logger.Error(err))
	}
}

func (m *Manager) persistLocked() {
	ctx := context.Background()
	if err := m.store.Set(ctx, keySettings, m.settings); err != nil {
		m.log.Warn("persist stake settings failed", logger.Error(err))
	}
	if err := m.store.Set(ctx, keyStats, m.stats); err != nil {
		m.log.Warn("persist session stats failed", logger.Error(err))
	}
	if err := m.store.Set(ctx, keyHistory, m.history); err != nil {
		m.log.Warn("persist trade history failed", logger.Error(err))
	}
	if err := m.store.Set(ctx, keyBalance, m.balance); err != nil {
		m.log.Warn("persist balance failed", logger.Error(err))
	}
}

// CalculateNextStake returns the stake for the next trade: the base stake
// escalated by the martingale multiplier while inside the step cap, scaled
// by the balance ratio when auto adjustment is on, floored at the broker
// minimum and rounded to cents.
func (m *Manager) CalculateNextStake() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextStakeLocked()
}

func (m *Manager) nextStakeLocked() float64 {
	next := m.settings.BaseStake

	if m.stats.ConsecutiveLosses > 0 && m.step < m.settings.MaxMartingaleSteps {
		next = m.settings.BaseStake * math.Pow(m.settings.MartingaleMultiplier, float64(m.step))
	}

	if m.settings.AutoStakeAdjustment && m.balance > 0 {
		ratio := m.balance / math.Max(m.startBalance, 100)
		next *= math.Max(0.1, math.Min(2.0, ratio))
	}

	next = math.Max(minStake, next)
	return roundCents(next)
}

// RecommendedStake scales the next stake by the signal's confidence band.
func (m *Manager) RecommendedStake(confidence models.Confidence) float64 {
	base := m.CalculateNextStake()
	switch confidence {
	case models.ConfidenceHigh:
		return roundCents(base * 1.5)
	case models.ConfidenceLow:
		return roundCents(base * 0.7)
	case models.ConfidenceConservative:
		return roundCents(base * 0.5)
	case models.ConfidenceAggressive:
		return roundCents(base * 2.0)
	default:
		return base
	}
}

// RecordTrade appends a settled trade, updates the balance, the streaks and
// the martingale step, then persists. History is capped at the retention
// window.
func (m *Manager) RecordTrade(trade models.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trade.Timestamp.IsZero() {
		trade.Timestamp = m.clk.Now()
	}
	m.history = append(m.history, trade)
	m.balance += trade.Profit

	m.updateStatsLocked(trade)

	switch trade.Status {
	case models.TradeWon:
		m.step = 0
	case models.TradeLost:
		if m.step < m.settings.MaxMartingaleSteps {
			m.step++
		}
	}

	if len(m.history) > historyRetention {
		m.history = m.history[len(m.history)-historyRetention:]
	}

	m.persistLocked()
}

func (m *Manager) updateStatsLocked(trade models.TradeRecord) {
	m.stats.TotalTrades++
	m.stats.TotalProfit += trade.Profit

	switch trade.Status {
	case models.TradeWon:
		m.stats.ConsecutiveWins++
		m.stats.ConsecutiveLosses = 0
		if m.stats.ConsecutiveWins > m.stats.BestWinStreak {
			m.stats.BestWinStreak = m.stats.ConsecutiveWins
		}
	case models.TradeLost:
		m.stats.ConsecutiveLosses++
		m.stats.ConsecutiveWins = 0
		if m.stats.ConsecutiveLosses > m.stats.WorstLossStreak {
			m.stats.WorstLossStreak = m.stats.ConsecutiveLosses
		}
	}

	wins := 0
	for _, t := range m.history {
		if t.Status == models.TradeWon {
			wins++
		}
	}
	if m.stats.TotalTrades > 0 {
		m.stats.WinRate = math.Round(float64(wins)/float64(m.stats.TotalTrades)*10000) / 100
	}

	// Peak-to-trough drawdown over the retained history.
	peak := m.startBalance
	running := m.startBalance
	maxDrawdown := 0.0
	for _, t := range m.history {
		running += t.Profit
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	m.stats.MaxDrawdown = roundCents(maxDrawdown)
	m.stats.TotalProfit = roundCents(m.stats.TotalProfit)
}

// ShouldStopTrading evaluates the session guards in a fixed order: stop
// loss, take profit, runaway loss streak, then insufficient balance for the
// next stake plus buffer.
func (m *Manager) ShouldStopTrading() StopDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats.TotalProfit <= m.settings.StopLossLimit {
		return StopDecision{ShouldStop: true, Reason: fmt.Sprintf("stop loss limit reached: $%.2f", m.settings.StopLossLimit)}
	}
	if m.stats.TotalProfit >= m.settings.TakeProfitLimit {
		return StopDecision{ShouldStop: true, Reason: fmt.Sprintf("take profit limit reached: $%.2f", m.settings.TakeProfitLimit)}
	}
	if m.stats.ConsecutiveLosses >= m.settings.MaxMartingaleSteps+2 {
		return StopDecision{ShouldStop: true, Reason: fmt.Sprintf("too many consecutive losses: %d", m.stats.ConsecutiveLosses)}
	}
	if next := m.nextStakeLocked(); m.balance < next*2 {
		return StopDecision{ShouldStop: true, Reason: fmt.Sprintf("insufficient balance for next trade: $%.2f", m.balance)}
	}
	return StopDecision{}
}

// ResetSession zeroes the statistics and the history and rebases the session
// start balance at the current balance. Settings survive a reset.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = models.SessionStats{}
	m.step = 0
	m.startBalance = m.balance
	m.history = nil
	m.persistLocked()
}

// ClearTradeHistory drops the recorded trades while keeping the session
// statistics and balance intact.
func (m *Manager) ClearTradeHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = nil
	m.persistLocked()
}

type exportEnvelope struct {
	Settings models.StakeSettings `json:"settings"`
	Stats    models.SessionStats  `json:"stats"`
	History  []models.TradeRecord `json:"history"`
	Exported time.Time            `json:"export_date"`
	Balance  float64              `json:"current_balance"`
}

// ExportTradeHistory serialises settings, stats, history and balance into a
// single JSON document.
func (m *Manager) ExportTradeHistory() ([]byte, error) {
	m.mu.Lock()
	env := exportEnvelope{
		Settings: m.settings,
		Stats:    m.stats,
		History:  append([]models.TradeRecord(nil), m.history...),
		Exported: m.clk.Now(),
		Balance:  m.balance,
	}
	m.mu.Unlock()
	return json.MarshalIndent(env, "", "  ")
}

// ImportTradeHistory replaces the manager's state with a previously exported
// document. Malformed input leaves the current state untouched.
func (m *Manager) ImportTradeHistory(data []byte) error {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("import trade history: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = env.Settings
	m.stats = env.Stats
	m.history = env.History
	if env.Balance != 0 {
		m.balance = env.Balance
	}
	m.persistLocked()
	return nil
}

// PerformanceMetrics derives profit factor, Sharpe ratio and average win and
// loss figures from the retained history.
func (m *Manager) PerformanceMetrics() models.PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totalWin, totalLoss float64
	var wins, losses int
	for _, t := range m.history {
		switch t.Status {
		case models.TradeWon:
			totalWin += t.Profit
			wins++
		case models.TradeLost:
			totalLoss += t.Profit
			losses++
		}
	}
	totalLoss = math.Abs(totalLoss)

	var avgWin, avgLoss float64
	if wins > 0 {
		avgWin = totalWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = totalLoss / float64(losses)
	}

	var profitFactor, winLossRatio float64
	if totalLoss > 0 {
		profitFactor = totalWin / totalLoss
	}
	if avgLoss > 0 {
		winLossRatio = avgWin / avgLoss
	}

	var sharpe float64
	if n := len(m.history); n > 0 {
		var sum float64
		for _, t := range m.history {
			sum += t.Profit
		}
		mean := sum / float64(n)
		var variance float64
		for _, t := range m.history {
			variance += (t.Profit - mean) * (t.Profit - mean)
		}
		if stddev := math.Sqrt(variance / float64(n)); stddev > 0 {
			sharpe = mean / stddev
		}
	}

	return models.PerformanceMetrics{
		ProfitFactor:  roundCents(profitFactor),
		SharpeRatio:   roundCents(sharpe),
		MaxLossStreak: m.stats.WorstLossStreak,
		AverageWin:    roundCents(avgWin),
		AverageLoss:   roundCents(avgLoss),
		WinLossRatio:  roundCents(winLossRatio),
	}
}

// Settings returns a copy of the current stake settings.
func (m *Manager) Settings() models.StakeSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings replaces the stake settings and persists them.
func (m *Manager) UpdateSettings(s models.StakeSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	m.persistLocked()
}

// SessionStats returns a copy of the current session statistics.
func (m *Manager) SessionStats() models.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// TradeHistory returns a copy of the retained trade records, oldest first.
func (m *Manager) TradeHistory() []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TradeRecord(nil), m.history...)
}

// Balance returns the tracked account balance.
func (m *Manager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// SetBalance records a balance observed from the broker. The first non-zero
// observation also fixes the session start balance.
func (m *Manager) SetBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startBalance == 0 {
		m.startBalance = balance
	}
	m.balance = balance
	m.persistLocked()
}

// MartingaleStep reports the current position in the loss progression.
func (m *Manager) MartingaleStep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
