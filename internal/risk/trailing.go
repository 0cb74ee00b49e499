package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TrailingMode selects how the candidate stop is computed on each tick
type TrailingMode string

const (
	TrailFixedPercent       TrailingMode = "fixed_percent"
	TrailATRBased           TrailingMode = "atr_based"
	TrailVolatilityAdaptive TrailingMode = "volatility_adaptive"
)

// PositionState is the lifecycle stage of a trailed position
type PositionState string

const (
	StateEntry          PositionState = "ENTRY"
	StateTrailingActive PositionState = "TRAILING_ACTIVE"
	StateBreakeven      PositionState = "BREAKEVEN"
	StateProfitZone     PositionState = "PROFIT_ZONE"
	StateClosed         PositionState = "CLOSED"
)

// TrailingConfig holds the trailing stop thresholds, all in percent of
// entry price unless noted.
type TrailingConfig struct {
	Mode                TrailingMode
	ActivationPercent   float64 // unrealized ROI that activates trailing
	BreakevenBufferPct  float64 // buffer above entry for the breakeven state
	TrailPercent        float64 // base trail distance
	ATRMultiplier       float64 // trail distance in atr_based mode
}

// DefaultTrailingConfig returns the stock trailing parameters
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		Mode:               TrailFixedPercent,
		ActivationPercent:  1.5,
		BreakevenBufferPct: 0.5,
		TrailPercent:       2.0,
		ATRMultiplier:      2.0,
	}
}

// TrailedPosition is one open trade tracked by the trailing manager
type TrailedPosition struct {
	TradeID      string        `json:"trade_id"`
	Symbol       string        `json:"symbol"`
	Side         string        `json:"side"` // "long" or "short"
	EntryPrice   float64       `json:"entry_price"`
	Quantity     float64       `json:"quantity"`
	EntryTime    time.Time     `json:"entry_time"`
	CurrentPrice float64       `json:"current_price"`
	TrailingStop float64       `json:"trailing_stop"`
	State        PositionState `json:"state"`
	HighWater    float64       `json:"high_water"`
	LowWater     float64       `json:"low_water"`
	ATR          float64       `json:"atr"` // set at entry for atr_based mode
}

// ROI returns the unrealized return on the position at price, in percent
func (p *TrailedPosition) ROI(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == "short" {
		return (p.EntryPrice - price) / p.EntryPrice * 100
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// CloseRecord describes a position closed by its trailing stop
type CloseRecord struct {
	TradeID      string    `json:"trade_id"`
	Symbol       string    `json:"symbol"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`
	TriggerPrice float64   `json:"trigger_price"`
	FinalPnL     float64   `json:"final_pnl"`
	FinalROI     float64   `json:"final_roi"`
	ClosedAt     time.Time `json:"closed_at"`
}

// StopUpdate reports the outcome of one price tick for one position
type StopUpdate struct {
	TradeID  string        `json:"trade_id"`
	Symbol   string        `json:"symbol"`
	OldStop  float64       `json:"old_stop"`
	NewStop  float64       `json:"new_stop"`
	State    PositionState `json:"state"`
	Closed   *CloseRecord  `json:"closed,omitempty"`
}

// ErrUnknownPosition is returned when a trade ID is not tracked.
// Callers must treat it as a logic bug, not a market condition.
var ErrUnknownPosition = fmt.Errorf("unknown position")

// TrailingManager ratchets stops for open positions. The stop only ever
// moves in the profit-protecting direction: up for longs, down for
// shorts. Safe for concurrent use.
type TrailingManager struct {
	config TrailingConfig
	logger zerolog.Logger

	mu        sync.RWMutex
	positions map[string]*TrailedPosition
	closed    []CloseRecord
}

// NewTrailingManager creates a trailing stop manager
func NewTrailingManager(config TrailingConfig, logger zerolog.Logger) *TrailingManager {
	if config.ActivationPercent <= 0 {
		config.ActivationPercent = 1.5
	}
	if config.TrailPercent <= 0 {
		config.TrailPercent = 2.0
	}
	if config.ATRMultiplier <= 0 {
		config.ATRMultiplier = 2.0
	}
	if config.Mode == "" {
		config.Mode = TrailFixedPercent
	}

	return &TrailingManager{
		config:    config,
		logger:    logger.With().Str("component", "trailing").Logger(),
		positions: make(map[string]*TrailedPosition),
	}
}

// Track registers a filled position for trailing
func (tm *TrailingManager) Track(tradeID, symbol, side string, entryPrice, quantity, atr float64, entryTime time.Time) *TrailedPosition {
	pos := &TrailedPosition{
		TradeID:      tradeID,
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		EntryTime:    entryTime,
		CurrentPrice: entryPrice,
		State:        StateEntry,
		HighWater:    entryPrice,
		LowWater:     entryPrice,
		ATR:          atr,
	}

	tm.mu.Lock()
	tm.positions[tradeID] = pos
	tm.mu.Unlock()

	tm.logger.Info().
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("side", side).
		Float64("entry", entryPrice).
		Msg("position tracked for trailing")

	return pos
}

// UpdatePrice processes one price tick for a tracked position and
// returns the resulting stop update. Returns ErrUnknownPosition for an
// untracked trade ID.
func (tm *TrailingManager) UpdatePrice(tradeID string, price float64, now time.Time) (*StopUpdate, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	pos, ok := tm.positions[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, tradeID)
	}

	update := &StopUpdate{
		TradeID: tradeID,
		Symbol:  pos.Symbol,
		OldStop: pos.TrailingStop,
	}

	pos.CurrentPrice = price
	if price > pos.HighWater {
		pos.HighWater = price
	}
	if price < pos.LowWater {
		pos.LowWater = price
	}

	// Stop hit check comes before any ratcheting
	if pos.TrailingStop > 0 && tm.stopHit(pos, price) {
		record := tm.closeLocked(pos, price, now)
		update.NewStop = pos.TrailingStop
		update.State = StateClosed
		update.Closed = &record
		return update, nil
	}

	roi := pos.ROI(price)

	if pos.State == StateEntry {
		if roi >= tm.config.ActivationPercent {
			pos.State = StateTrailingActive
		} else {
			update.NewStop = pos.TrailingStop
			update.State = pos.State
			return update, nil
		}
	}

	candidate := tm.candidateStop(pos, price, roi, now)
	tm.ratchetLocked(pos, candidate)
	tm.advanceStateLocked(pos)

	update.NewStop = pos.TrailingStop
	update.State = pos.State
	return update, nil
}

// UpdateSymbol applies a price tick to every tracked position for the
// symbol.
func (tm *TrailingManager) UpdateSymbol(symbol string, price float64, now time.Time) []*StopUpdate {
	tm.mu.RLock()
	var ids []string
	for id, pos := range tm.positions {
		if pos.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	tm.mu.RUnlock()

	var updates []*StopUpdate
	for _, id := range ids {
		update, err := tm.UpdatePrice(id, price, now)
		if err != nil {
			continue // position closed by an earlier update in this batch
		}
		updates = append(updates, update)
	}
	return updates
}

// Position returns a copy of a tracked position
func (tm *TrailingManager) Position(tradeID string) (TrailedPosition, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	pos, ok := tm.positions[tradeID]
	if !ok {
		return TrailedPosition{}, fmt.Errorf("%w: %s", ErrUnknownPosition, tradeID)
	}
	return *pos, nil
}

// OpenPositions returns copies of all tracked positions
func (tm *TrailingManager) OpenPositions() []TrailedPosition {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	out := make([]TrailedPosition, 0, len(tm.positions))
	for _, pos := range tm.positions {
		out = append(out, *pos)
	}
	return out
}

// ClosedPositions returns the close records accumulated so far
func (tm *TrailingManager) ClosedPositions() []CloseRecord {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	out := make([]CloseRecord, len(tm.closed))
	copy(out, tm.closed)
	return out
}

func (tm *TrailingManager) stopHit(pos *TrailedPosition, price float64) bool {
	if pos.Side == "short" {
		return price >= pos.TrailingStop
	}
	return price <= pos.TrailingStop
}

// candidateStop computes the stop the current tick would set, before
// the ratchet is applied.
func (tm *TrailingManager) candidateStop(pos *TrailedPosition, price, roi float64, now time.Time) float64 {
	var distance float64

	switch tm.config.Mode {
	case TrailATRBased:
		atr := pos.ATR
		if atr <= 0 {
			atr = price * 0.02 / tm.config.ATRMultiplier
		}
		distance = tm.config.ATRMultiplier * atr
	case TrailVolatilityAdaptive:
		hours := now.Sub(pos.EntryTime).Hours()
		factor := 1 + math.Min(hours, 2)*0.1
		if roi > 5 {
			factor *= 0.8
		}
		distance = price * tm.config.TrailPercent / 100 * factor
	default:
		distance = price * tm.config.TrailPercent / 100
	}

	if pos.Side == "short" {
		return price + distance
	}
	return price - distance
}

// ratchetLocked moves the stop only in the profit-protecting direction
func (tm *TrailingManager) ratchetLocked(pos *TrailedPosition, candidate float64) {
	if pos.TrailingStop == 0 {
		pos.TrailingStop = candidate
		return
	}

	if pos.Side == "short" {
		if candidate < pos.TrailingStop {
			pos.TrailingStop = candidate
		}
		return
	}

	if candidate > pos.TrailingStop {
		pos.TrailingStop = candidate
	}
}

// advanceStateLocked upgrades the position state from the stop level.
// States only move forward.
func (tm *TrailingManager) advanceStateLocked(pos *TrailedPosition) {
	buffer := tm.config.BreakevenBufferPct / 100
	profitLevel := 2 * tm.config.ActivationPercent / 100

	var breakeven, profitZone bool
	if pos.Side == "short" {
		breakeven = pos.TrailingStop <= pos.EntryPrice*(1-buffer)
		profitZone = pos.TrailingStop <= pos.EntryPrice*(1-profitLevel)
	} else {
		breakeven = pos.TrailingStop >= pos.EntryPrice*(1+buffer)
		profitZone = pos.TrailingStop >= pos.EntryPrice*(1+profitLevel)
	}

	switch {
	case profitZone:
		pos.State = StateProfitZone
	case breakeven && pos.State != StateProfitZone:
		pos.State = StateBreakeven
	}
}

func (tm *TrailingManager) closeLocked(pos *TrailedPosition, price float64, now time.Time) CloseRecord {
	pnl := (price - pos.EntryPrice) * pos.Quantity
	if pos.Side == "short" {
		pnl = (pos.EntryPrice - price) * pos.Quantity
	}

	record := CloseRecord{
		TradeID:      pos.TradeID,
		Symbol:       pos.Symbol,
		EntryPrice:   pos.EntryPrice,
		Quantity:     pos.Quantity,
		TriggerPrice: price,
		FinalPnL:     pnl,
		FinalROI:     pos.ROI(price),
		ClosedAt:     now,
	}

	pos.State = StateClosed
	delete(tm.positions, pos.TradeID)
	tm.closed = append(tm.closed, record)

	tm.logger.Info().
		Str("trade_id", record.TradeID).
		Str("symbol", record.Symbol).
		Float64("trigger", record.TriggerPrice).
		Float64("pnl", record.FinalPnL).
		Msg("trailing stop triggered")

	return record
}
