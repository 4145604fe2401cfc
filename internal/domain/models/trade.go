package models

import "time"

// TradeStatus tracks the settlement state of a placed trade.
type TradeStatus string

const (
	TradeActive TradeStatus = "ACTIVE"
	TradeWon    TradeStatus = "WON"
	TradeLost   TradeStatus = "LOST"
)

// TradeRecord is created when a trade is placed and mutated exactly once, at
// settlement. Records are never deleted, only capped by a retention window.
type TradeRecord struct {
	ContractID string      `json:"contract_id"`
	SignalID   string      `json:"signal_id,omitempty"`
	Market     string      `json:"market"`
	Type       SignalType  `json:"type"`
	Stake      float64     `json:"stake"`
	Profit     float64     `json:"profit"`
	Status     TradeStatus `json:"status"`
	EntryDigit int         `json:"entry_digit"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SessionStats are aggregate counters recomputed incrementally on every
// recorded trade. They persist for the process lifetime unless the user
// resets the session.
type SessionStats struct {
	TotalProfit       float64 `json:"total_profit"`
	TotalTrades       int     `json:"total_trades"`
	WinRate           float64 `json:"win_rate"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	BestWinStreak     int     `json:"best_win_streak"`
	WorstLossStreak   int     `json:"worst_loss_streak"`
}

// StakeSettings configure the martingale progression and session stops.
type StakeSettings struct {
	BaseStake            float64 `json:"base_stake" yaml:"base_stake"`
	MartingaleMultiplier float64 `json:"martingale_multiplier" yaml:"martingale_multiplier"`
	MaxMartingaleSteps   int     `json:"max_martingale_steps" yaml:"max_martingale_steps"`
	TakeProfitLimit      float64 `json:"take_profit_limit" yaml:"take_profit_limit"`
	StopLossLimit        float64 `json:"stop_loss_limit" yaml:"stop_loss_limit"`
	AutoStakeAdjustment  bool    `json:"auto_stake_adjustment" yaml:"auto_stake_adjustment"`
}

// DefaultStakeSettings mirror a conservative starting configuration.
func DefaultStakeSettings() StakeSettings {
	return StakeSettings{
		BaseStake:            1.0,
		MartingaleMultiplier: 2.0,
		MaxMartingaleSteps:   5,
		TakeProfitLimit:      100,
		StopLossLimit:        -50,
	}
}

// RiskMode transforms a signal's contract type just before placement.
type RiskMode string

const (
	RiskNormal     RiskMode = "NORMAL"
	RiskLessRisky  RiskMode = "LESS_RISKY"
	RiskOver3Under RiskMode = "OVER3_UNDER6"
)

// AutoTraderSettings govern the execution queue.
type AutoTraderSettings struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	MaxConcurrentTrades int           `json:"max_concurrent_trades" yaml:"max_concurrent_trades"`
	RiskMode            RiskMode      `json:"risk_mode" yaml:"risk_mode"`
	DelayBetweenTrades  time.Duration `json:"delay_between_trades" yaml:"delay_between_trades"`
}

// DefaultAutoTraderSettings start with auto trading off and one open trade.
func DefaultAutoTraderSettings() AutoTraderSettings {
	return AutoTraderSettings{
		MaxConcurrentTrades: 1,
		RiskMode:            RiskNormal,
		DelayBetweenTrades:  2 * time.Second,
	}
}

// ExecutionResult is published to subscribers after every placement attempt
// and after every settlement.
type ExecutionResult struct {
	Success    bool         `json:"success"`
	ContractID string       `json:"contract_id,omitempty"`
	Error      string       `json:"error,omitempty"`
	Trade      *TradeRecord `json:"trade,omitempty"`
}

// PerformanceMetrics summarise the full trade history.
type PerformanceMetrics struct {
	ProfitFactor  float64 `json:"profit_factor"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxLossStreak int     `json:"max_loss_streak"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	WinLossRatio  float64 `json:"win_loss_ratio"`
}
