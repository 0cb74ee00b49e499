package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ManagerConfig holds position sizing and validation limits
type ManagerConfig struct {
	MaxRiskPerTrade     float64 // percent of balance risked per trade
	MaxPositionValuePct float64 // position value cap as fraction of balance
	MaxTradesPerDay     int
	MaxSymbolNotional   float64 // absolute concentration cap per symbol
	MaxTradesPerHour    int     // hard frequency block
	WarnTradesPerHour   int     // frequency warning threshold
	MaxDailyLossPct     float64 // daily realized loss floor, fraction of balance
	MinNotional         float64
}

// DefaultManagerConfig returns the stock limits
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRiskPerTrade:     2.0,
		MaxPositionValuePct: 0.80,
		MaxTradesPerDay:     10,
		MaxSymbolNotional:   5000,
		MaxTradesPerHour:    5,
		WarnTradesPerHour:   3,
		MaxDailyLossPct:     0.05,
		MinNotional:         10,
	}
}

// TradeValidation is the outcome of the pre-trade gates. Errors block
// the trade; warnings do not.
type TradeValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Manager sizes positions from the account risk budget and validates
// trades against daily limits. Safe for concurrent use.
type Manager struct {
	config ManagerConfig
	logger zerolog.Logger

	mu           sync.RWMutex
	dailyPnL     float64
	dailyTrades  int
	tradeTimes   []time.Time
	openNotional map[string]float64
	currentDay   time.Time
}

// NewManager creates a risk manager with the given limits
func NewManager(config ManagerConfig, logger zerolog.Logger) *Manager {
	if config.MaxPositionValuePct <= 0 || config.MaxPositionValuePct > 1 {
		config.MaxPositionValuePct = 0.80
	}

	return &Manager{
		config:       config,
		logger:       logger.With().Str("component", "risk_manager").Logger(),
		openNotional: make(map[string]float64),
		currentDay:   truncateDay(time.Now()),
	}
}

// CalculatePositionSize converts the account risk budget and stop
// distance into a position size. The resulting position value never
// exceeds MaxPositionValuePct of the balance: when the cap binds, the
// size is recomputed from the cap rather than from the risk amount.
func (m *Manager) CalculatePositionSize(balance, riskPercent, entryPrice, stopPrice float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("balance must be positive, got %.2f", balance)
	}
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %.4f", entryPrice)
	}

	priceDiff := math.Abs(entryPrice - stopPrice)
	if priceDiff == 0 {
		return 0, fmt.Errorf("stop price equals entry price")
	}

	riskAmount := balance * riskPercent / 100
	size := riskAmount / priceDiff

	maxValue := balance * m.config.MaxPositionValuePct
	if size*entryPrice > maxValue {
		size = maxValue / entryPrice
	}

	return size, nil
}

// ValidateTrade runs every pre-trade gate and collects the distinct
// rejection reasons.
func (m *Manager) ValidateTrade(symbol string, notional, balance float64, now time.Time) TradeValidation {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetIfNewDayLocked(now)

	validation := TradeValidation{Valid: true}

	if m.dailyTrades >= m.config.MaxTradesPerDay {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("daily trade limit reached (%d/%d)", m.dailyTrades, m.config.MaxTradesPerDay))
	}

	if m.openNotional[symbol]+notional > m.config.MaxSymbolNotional {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("symbol concentration limit exceeded for %s ($%.2f open, $%.2f cap)",
				symbol, m.openNotional[symbol], m.config.MaxSymbolNotional))
	}

	recentTrades := m.tradesWithinLocked(now, time.Hour)
	if recentTrades >= m.config.MaxTradesPerHour {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("trade frequency too high (%d trades in the last hour)", recentTrades))
	} else if recentTrades >= m.config.WarnTradesPerHour {
		validation.Warnings = append(validation.Warnings,
			fmt.Sprintf("elevated trade frequency (%d trades in the last hour)", recentTrades))
	}

	if balance > 0 && m.dailyPnL < -balance*m.config.MaxDailyLossPct {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("daily drawdown floor breached (%.2f)", m.dailyPnL))
	}

	if notional < m.config.MinNotional {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("notional $%.2f below minimum $%.2f", notional, m.config.MinNotional))
	}

	validation.Valid = len(validation.Errors) == 0
	return validation
}

// RecordTrade registers an opened trade for the frequency and
// concentration gates.
func (m *Manager) RecordTrade(symbol string, notional float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetIfNewDayLocked(now)
	m.dailyTrades++
	m.tradeTimes = append(m.tradeTimes, now)
	m.openNotional[symbol] += notional
}

// RecordClose registers a closed trade's realized P&L and releases its
// notional.
func (m *Manager) RecordClose(symbol string, notional, pnl float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetIfNewDayLocked(now)
	m.dailyPnL += pnl
	m.openNotional[symbol] -= notional
	if m.openNotional[symbol] < 0 {
		m.openNotional[symbol] = 0
	}
}

// DailyPnL returns today's realized P&L
func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// DailyTrades returns today's trade count
func (m *Manager) DailyTrades() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyTrades
}

func (m *Manager) resetIfNewDayLocked(now time.Time) {
	day := truncateDay(now)
	if day.After(m.currentDay) {
		m.logger.Info().
			Float64("daily_pnl", m.dailyPnL).
			Int("daily_trades", m.dailyTrades).
			Msg("daily risk counters reset")

		m.dailyPnL = 0
		m.dailyTrades = 0
		m.tradeTimes = nil
		m.currentDay = day
	}
}

func (m *Manager) tradesWithinLocked(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, t := range m.tradeTimes {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
