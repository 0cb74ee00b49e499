package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RiskLevel is the escalating account risk classification
type RiskLevel string

const (
	LevelNormal    RiskLevel = "NORMAL"
	LevelWarning   RiskLevel = "WARNING"
	LevelCritical  RiskLevel = "CRITICAL"
	LevelEmergency RiskLevel = "EMERGENCY"
)

// RiskAction is the behavior mandated by a risk level
type RiskAction string

const (
	ActionContinue      RiskAction = "continue"
	ActionReduceSize    RiskAction = "reduce_size"
	ActionPauseTrading  RiskAction = "pause_trading"
	ActionEmergencyStop RiskAction = "emergency_stop"
)

// ProtectionConfig holds the account-level circuit breaker thresholds
type ProtectionConfig struct {
	DailyLossCap          float64       // fraction of initial balance
	MaxConsecutiveLosses  int
	MaxDailyTrades        int
	EmergencyDrawdown     float64       // fraction of peak balance
	DailyLossPause        time.Duration
	ConsecutiveLossPause  time.Duration // per loss in the streak
	MaxConsecutivePause   time.Duration
	VolatilitySpikePause  time.Duration
}

// DefaultProtectionConfig returns the stock protection thresholds
func DefaultProtectionConfig() ProtectionConfig {
	return ProtectionConfig{
		DailyLossCap:         0.10,
		MaxConsecutiveLosses: 3,
		MaxDailyTrades:       15,
		EmergencyDrawdown:    0.20,
		DailyLossPause:       24 * time.Hour,
		ConsecutiveLossPause: 2 * time.Hour,
		MaxConsecutivePause:  12 * time.Hour,
		VolatilitySpikePause: time.Hour,
	}
}

// RiskAssessment is the outcome of one pre-trade risk evaluation
type RiskAssessment struct {
	Allowed            bool       `json:"allowed"`
	Level              RiskLevel  `json:"level"`
	Action             RiskAction `json:"action"`
	Reasons            []string   `json:"reasons,omitempty"`
	PositionAdjustment float64    `json:"position_adjustment"`
}

// ProtectionStatus is a snapshot of the protection state
type ProtectionStatus struct {
	Level             RiskLevel `json:"level"`
	TradingPaused     bool      `json:"trading_paused"`
	PauseReason       string    `json:"pause_reason,omitempty"`
	PauseUntil        time.Time `json:"pause_until"`
	EmergencyStop     bool      `json:"emergency_stop"`
	DailyPnL          float64   `json:"daily_pnl"`
	DailyTrades       int       `json:"daily_trades"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CurrentDrawdown   float64   `json:"current_drawdown"`
	PeakBalance       float64   `json:"peak_balance"`
	CurrentBalance    float64   `json:"current_balance"`
}

// Protection is the per-account daily circuit breaker. Pauses resume
// automatically once their timer elapses; an emergency stop persists
// until ResetEmergencyStop is called.
type Protection struct {
	config ProtectionConfig
	logger zerolog.Logger

	mu                sync.Mutex
	initialBalance    float64
	currentBalance    float64
	peakBalance       float64
	dailyPnL          float64
	dailyTrades       int
	consecutiveLosses int
	consecutiveWins   int
	tradingPaused     bool
	pauseReason       string
	pauseUntil        time.Time
	emergencyStop     bool
	emergencyReason   string
	currentDay        time.Time

	onPause     func(reason string, until time.Time)
	onEmergency func(reason string)
}

// NewProtection creates the account circuit breaker seeded with the
// starting balance.
func NewProtection(config ProtectionConfig, initialBalance float64, logger zerolog.Logger) *Protection {
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = 3
	}
	if config.DailyLossCap <= 0 {
		config.DailyLossCap = 0.10
	}
	if config.EmergencyDrawdown <= 0 {
		config.EmergencyDrawdown = 0.20
	}

	return &Protection{
		config:         config,
		logger:         logger.With().Str("component", "risk_protection").Logger(),
		initialBalance: initialBalance,
		currentBalance: initialBalance,
		peakBalance:    initialBalance,
		currentDay:     truncateDay(time.Now()),
	}
}

// OnPause registers a callback fired when trading is paused
func (p *Protection) OnPause(fn func(reason string, until time.Time)) {
	p.mu.Lock()
	p.onPause = fn
	p.mu.Unlock()
}

// OnEmergency registers a callback fired on an emergency stop
func (p *Protection) OnEmergency(fn func(reason string)) {
	p.mu.Lock()
	p.onEmergency = fn
	p.mu.Unlock()
}

// RecordTradeResult folds one trade outcome into the daily state and
// trips the applicable protections.
func (p *Protection) RecordTradeResult(pnl float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDayLocked(now)

	p.currentBalance += pnl
	p.dailyPnL += pnl
	p.dailyTrades++

	if p.currentBalance > p.peakBalance {
		p.peakBalance = p.currentBalance
	}

	if pnl < 0 {
		p.consecutiveLosses++
		p.consecutiveWins = 0
	} else if pnl > 0 {
		p.consecutiveWins++
		p.consecutiveLosses = 0
	}

	// Consecutive-loss pause scales with the streak, capped
	if p.consecutiveLosses >= p.config.MaxConsecutiveLosses {
		pause := time.Duration(p.consecutiveLosses) * p.config.ConsecutiveLossPause
		if pause > p.config.MaxConsecutivePause {
			pause = p.config.MaxConsecutivePause
		}
		p.pauseLocked(fmt.Sprintf("%d consecutive losses", p.consecutiveLosses), now.Add(pause))
	}

	// Daily loss cap pause: independent of the emergency drawdown gate
	if p.initialBalance > 0 && p.dailyPnL <= -p.initialBalance*p.config.DailyLossCap {
		p.pauseLocked(
			fmt.Sprintf("daily loss %.1f%% reached cap %.1f%%",
				-p.dailyPnL/p.initialBalance*100, p.config.DailyLossCap*100),
			now.Add(p.config.DailyLossPause))
	}

	// Emergency drawdown from peak balance: manual reset only
	if p.drawdownLocked() >= p.config.EmergencyDrawdown {
		p.emergencyLocked(fmt.Sprintf("drawdown %.1f%% from peak balance exceeds emergency threshold %.1f%%",
			p.drawdownLocked()*100, p.config.EmergencyDrawdown*100))
	}
}

// PauseTrading pauses trading for the given duration, e.g. on a
// volatility spike detected outside the trade-result path.
func (p *Protection) PauseTrading(reason string, duration time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked(reason, now.Add(duration))
}

// ResumeTrading lifts a pause early. It does not clear an emergency stop.
func (p *Protection) ResumeTrading() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.emergencyStop {
		return
	}
	p.tradingPaused = false
	p.pauseReason = ""
	p.pauseUntil = time.Time{}
}

// ResetEmergencyStop clears the emergency stop and the loss streak.
// This is the only way out of the emergency state.
func (p *Protection) ResetEmergencyStop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emergencyStop = false
	p.emergencyReason = ""
	p.tradingPaused = false
	p.pauseReason = ""
	p.pauseUntil = time.Time{}
	p.consecutiveLosses = 0

	p.logger.Warn().Msg("emergency stop manually reset")
}

// EvaluateTradeRisk decides whether a new trade may be opened and how
// much its size should be scaled down.
func (p *Protection) EvaluateTradeRisk(now time.Time) RiskAssessment {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDayLocked(now)

	if p.emergencyStop {
		return RiskAssessment{
			Allowed: false,
			Level:   LevelEmergency,
			Action:  ActionEmergencyStop,
			Reasons: []string{fmt.Sprintf("emergency stop active (%s), manual reset required", p.emergencyReason)},
		}
	}

	if p.tradingPaused {
		if now.After(p.pauseUntil) {
			// Pause timer elapsed, auto-resume
			p.tradingPaused = false
			p.pauseReason = ""
			p.pauseUntil = time.Time{}
		} else {
			return RiskAssessment{
				Allowed: false,
				Level:   p.levelLocked(),
				Action:  ActionPauseTrading,
				Reasons: []string{fmt.Sprintf("trading paused until %s: %s", p.pauseUntil.Format(time.RFC3339), p.pauseReason)},
			}
		}
	}

	level := p.levelLocked()
	assessment := RiskAssessment{
		Allowed:            true,
		Level:              level,
		Action:             ActionContinue,
		PositionAdjustment: 1.0,
	}

	switch level {
	case LevelWarning:
		assessment.Action = ActionReduceSize
		assessment.PositionAdjustment = 0.5
		assessment.Reasons = append(assessment.Reasons, "elevated risk, position size reduced")
	case LevelCritical:
		assessment.Action = ActionReduceSize
		assessment.PositionAdjustment = 0.25
		assessment.Reasons = append(assessment.Reasons, "critical risk, position size heavily reduced")
	}

	if p.consecutiveLosses >= 2 {
		assessment.PositionAdjustment *= 0.7
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("%d consecutive losses, scaling down", p.consecutiveLosses))
	}
	if p.drawdownLocked() >= 0.10 {
		assessment.PositionAdjustment *= 0.6
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("drawdown %.1f%%, scaling down", p.drawdownLocked()*100))
	}

	if p.dailyTrades >= p.config.MaxDailyTrades {
		assessment.Allowed = false
		assessment.Action = ActionPauseTrading
		assessment.Reasons = append(assessment.Reasons,
			fmt.Sprintf("daily trade limit reached (%d)", p.dailyTrades))
	}

	return assessment
}

// Status returns a snapshot of the protection state
func (p *Protection) Status() ProtectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProtectionStatus{
		Level:             p.levelLocked(),
		TradingPaused:     p.tradingPaused,
		PauseReason:       p.pauseReason,
		PauseUntil:        p.pauseUntil,
		EmergencyStop:     p.emergencyStop,
		DailyPnL:          p.dailyPnL,
		DailyTrades:       p.dailyTrades,
		ConsecutiveLosses: p.consecutiveLosses,
		CurrentDrawdown:   p.drawdownLocked(),
		PeakBalance:       p.peakBalance,
		CurrentBalance:    p.currentBalance,
	}
}

func (p *Protection) pauseLocked(reason string, until time.Time) {
	if p.tradingPaused && until.Before(p.pauseUntil) {
		return // keep the longer pause
	}

	p.tradingPaused = true
	p.pauseReason = reason
	p.pauseUntil = until

	p.logger.Warn().
		Str("reason", reason).
		Time("until", until).
		Msg("trading paused")

	if p.onPause != nil {
		go p.onPause(reason, until)
	}
}

func (p *Protection) emergencyLocked(reason string) {
	if p.emergencyStop {
		return
	}

	p.emergencyStop = true
	p.emergencyReason = reason
	p.tradingPaused = true
	p.pauseReason = reason

	p.logger.Error().
		Str("reason", reason).
		Msg("emergency stop triggered")

	if p.onEmergency != nil {
		go p.onEmergency(reason)
	}
}

// levelLocked classifies the current state. Warnings kick in at 80% of
// each limit, drawdown at 70% of the emergency threshold.
func (p *Protection) levelLocked() RiskLevel {
	drawdown := p.drawdownLocked()
	lossRatio := 0.0
	if p.initialBalance > 0 {
		lossRatio = -p.dailyPnL / p.initialBalance
	}

	switch {
	case p.emergencyStop || drawdown >= p.config.EmergencyDrawdown:
		return LevelEmergency
	case lossRatio >= p.config.DailyLossCap || p.consecutiveLosses >= p.config.MaxConsecutiveLosses:
		return LevelCritical
	case lossRatio >= p.config.DailyLossCap*0.8 ||
		drawdown >= p.config.EmergencyDrawdown*0.7 ||
		p.consecutiveLosses >= p.config.MaxConsecutiveLosses-1 ||
		(p.config.MaxDailyTrades > 0 && float64(p.dailyTrades) >= float64(p.config.MaxDailyTrades)*0.8):
		return LevelWarning
	default:
		return LevelNormal
	}
}

func (p *Protection) drawdownLocked() float64 {
	if p.peakBalance <= 0 {
		return 0
	}
	return (p.peakBalance - p.currentBalance) / p.peakBalance
}

func (p *Protection) resetIfNewDayLocked(now time.Time) {
	day := truncateDay(now)
	if day.After(p.currentDay) {
		p.dailyPnL = 0
		p.dailyTrades = 0
		p.currentDay = day
	}
}
