package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"okx-trading-bot/internal/confluence"
	"okx-trading-bot/internal/risk"
)

// SignalRecord is a persisted confluence evaluation
type SignalRecord struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Signal     string    `json:"signal"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	Quality    string    `json:"quality"`
	RiskReward float64   `json:"risk_reward"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Reasons    string    `json:"reasons"`
	CreatedAt  time.Time `json:"created_at"`
}

// TradeRecord is a persisted trade
type TradeRecord struct {
	ID         int64      `json:"id"`
	TradeID    string     `json:"trade_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	Quantity   float64    `json:"quantity"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	ROI        *float64   `json:"roi,omitempty"`
	Status     string     `json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Repository persists signals, trades and risk events
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveSignal stores one confluence result
func (r *Repository) SaveSignal(ctx context.Context, result *confluence.Result) error {
	components, err := json.Marshal(result.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO signals (symbol, signal, strength, confidence, quality,
			risk_reward, entry_price, stop_loss, take_profit, reasons, components, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		result.Symbol, string(result.Signal), result.Strength, result.Confidence,
		result.Quality, result.RiskReward, result.Entry, result.StopLoss,
		result.TakeProfit, strings.Join(result.Reasons, "; "), components, result.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	return nil
}

// RecentSignals returns the newest signals for a symbol
func (r *Repository) RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, symbol, signal, strength, confidence, quality,
			risk_reward, entry_price, stop_loss, take_profit, reasons, created_at
		FROM signals
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var records []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Signal, &rec.Strength,
			&rec.Confidence, &rec.Quality, &rec.RiskReward, &rec.EntryPrice,
			&rec.StopLoss, &rec.TakeProfit, &rec.Reasons, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveTrade stores a newly opened trade
func (r *Repository) SaveTrade(ctx context.Context, tradeID, symbol, side string, entryPrice, quantity, stopLoss, takeProfit float64, openedAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trades (trade_id, symbol, side, entry_price, quantity, stop_loss, take_profit, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tradeID, symbol, side, entryPrice, quantity, stopLoss, takeProfit, openedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	return nil
}

// CloseTrade records a trade's close from its trailing stop record
func (r *Repository) CloseTrade(ctx context.Context, record risk.CloseRecord) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE trades
		SET exit_price = $2, pnl = $3, roi = $4, status = 'closed', closed_at = $5
		WHERE trade_id = $1`,
		record.TradeID, record.TriggerPrice, record.FinalPnL, record.FinalROI, record.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s not found", record.TradeID)
	}

	return nil
}

// RecentTrades returns the newest trades
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, trade_id, symbol, side, entry_price, quantity,
			COALESCE(stop_loss, 0), COALESCE(take_profit, 0),
			exit_price, pnl, roi, status, opened_at, closed_at
		FROM trades
		ORDER BY opened_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(&rec.ID, &rec.TradeID, &rec.Symbol, &rec.Side,
			&rec.EntryPrice, &rec.Quantity, &rec.StopLoss, &rec.TakeProfit,
			&rec.ExitPrice, &rec.PnL, &rec.ROI, &rec.Status,
			&rec.OpenedAt, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveRiskEvent stores a protection state change
func (r *Repository) SaveRiskEvent(ctx context.Context, level, action, reason string, dailyPnL, drawdown float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO risk_events (level, action, reason, daily_pnl, drawdown)
		VALUES ($1, $2, $3, $4, $5)`,
		level, action, reason, dailyPnL, drawdown,
	)
	if err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}

	return nil
}
