// Package repository archives emitted signals and settled trades to
// ClickHouse for offline analysis.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DigitPulse/internal/domain/models"
	"DigitPulse/pkg/logger"
)

const archiveTimeout = 10 * time.Second

// Archive writes the signal and trade streams into two append-only tables.
// It implements the bus sink contract so the pipeline stays unaware of the
// storage backend.
type Archive struct {
	db          *sql.DB
	signalTable string
	tradeTable  string
	log         *logger.Logger
}

func NewArchive(db *sql.DB, signalTable, tradeTable string, log *logger.Logger) *Archive {
	return &Archive{
		db:          db,
		signalTable: signalTable,
		tradeTable:  tradeTable,
		log:         log,
	}
}

// Schema returns the idempotent DDL for both tables.
func (a *Archive) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			created_at DateTime,
			signal_id String,
			market LowCardinality(String),
			type LowCardinality(String),
			entry_digit Int8,
			confidence LowCardinality(String),
			strategy String,
			source LowCardinality(String),
			expires_at DateTime,
			reason String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (market, created_at)`, a.signalTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			settled_at DateTime,
			contract_id String,
			signal_id String,
			market LowCardinality(String),
			type LowCardinality(String),
			stake Float64,
			profit Float64,
			status LowCardinality(String),
			entry_digit Int8
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(settled_at)
		ORDER BY (market, settled_at)`, a.tradeTable),
	}
}

// OnSignals archives one emitted batch.
func (a *Archive) OnSignals(signals []models.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	q := fmt.Sprintf(`INSERT INTO %s
		(created_at, signal_id, market, type, entry_digit, confidence, strategy, source, expires_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.signalTable)

	for _, s := range signals {
		_, err := a.db.ExecContext(ctx, q,
			s.CreatedAt,
			s.ID,
			s.Market,
			string(s.Type),
			int8(s.EntryDigit),
			string(s.Confidence),
			s.Strategy,
			string(s.Source),
			s.ExpiresAt,
			s.Reason,
		)
		if err != nil {
			a.log.Warn("signal archive insert failed",
				logger.String("signal_id", s.ID),
				logger.Error(err),
			)
			return
		}
	}
}

// OnExecutionResult archives a trade once it settles. Placements and
// rejections are skipped; only terminal outcomes are stored.
func (a *Archive) OnExecutionResult(result models.ExecutionResult) {
	if result.Trade == nil || result.Trade.Status == models.TradeActive {
		return
	}
	t := result.Trade

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	q := fmt.Sprintf(`INSERT INTO %s
		(settled_at, contract_id, signal_id, market, type, stake, profit, status, entry_digit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.tradeTable)

	_, err := a.db.ExecContext(ctx, q,
		t.Timestamp,
		t.ContractID,
		t.SignalID,
		t.Market,
		string(t.Type),
		t.Stake,
		t.Profit,
		string(t.Status),
		int8(t.EntryDigit),
	)
	if err != nil {
		a.log.Warn("trade archive insert failed",
			logger.String("contract_id", t.ContractID),
			logger.Error(err),
		)
	}
}

// SettledTrades reads archived trades for a market, newest first.
func (a *Archive) SettledTrades(ctx context.Context, market string, from, to time.Time, limit int) ([]models.TradeRecord, error) {
	q := fmt.Sprintf(`SELECT settled_at, contract_id, signal_id, market, type, stake, profit, status, entry_digit
		FROM %s WHERE market = ? AND settled_at >= ? AND settled_at <= ?
		ORDER BY settled_at DESC LIMIT ?`, a.tradeTable)

	rows, err := a.db.QueryContext(ctx, q, market, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade archive: %w", err)
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var typ, status string
		var entry int8
		if err := rows.Scan(&t.Timestamp, &t.ContractID, &t.SignalID, &t.Market, &typ, &t.Stake, &t.Profit, &status, &entry); err != nil {
			return nil, err
		}
		t.Type = models.SignalType(typ)
		t.Status = models.TradeStatus(status)
		t.EntryDigit = int(entry)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Health pings the backing database.
func (a *Archive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
