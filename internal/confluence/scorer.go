package confluence

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"okx-trading-bot/internal/analysis"
	"okx-trading-bot/internal/market"
)

// Signal is the aggregate trade decision
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Mode selects the threshold profile the scorer gates against
type Mode string

const (
	ModePrecision    Mode = "precision"
	ModeAggressive   Mode = "aggressive"
	ModeConservative Mode = "conservative"
)

// ModeParams are the mode-dependent gate thresholds
type ModeParams struct {
	MinScore         float64
	MinVolumeRatio   float64
	MaxVolatilityPct float64
	MinRiskReward    float64
	RSIOversold      float64
	RSIOverbought    float64
}

// ParamsForMode returns the threshold profile for a mode. Unknown modes
// fall back to precision.
func ParamsForMode(mode Mode) ModeParams {
	switch mode {
	case ModeAggressive:
		return ModeParams{MinScore: 0.6, MinVolumeRatio: 1.5, MaxVolatilityPct: 85, MinRiskReward: 1.5, RSIOversold: 30, RSIOverbought: 70}
	case ModeConservative:
		return ModeParams{MinScore: 0.9, MinVolumeRatio: 3.0, MaxVolatilityPct: 60, MinRiskReward: 2.5, RSIOversold: 20, RSIOverbought: 80}
	default:
		return ModeParams{MinScore: 0.8, MinVolumeRatio: 2.0, MaxVolatilityPct: 70, MinRiskReward: 2.0, RSIOversold: 25, RSIOverbought: 75}
	}
}

// WeightScheme names one of the shipped component/weight sets
type WeightScheme string

const (
	SchemePrimary   WeightScheme = "primary"
	SchemeAlternate WeightScheme = "alternate"
)

// PrimaryWeights is the default component weighting
func PrimaryWeights() map[string]float64 {
	return map[string]float64{
		"rsi_ema":          0.30,
		"macd":             0.25,
		"volume":           0.20,
		"volatility":       0.10,
		"price_action":     0.10,
		"market_structure": 0.05,
	}
}

// AlternateWeights is the slope-weighted component set
func AlternateWeights() map[string]float64 {
	return map[string]float64{
		"trend_slope":           0.25,
		"rsi_divergence":        0.20,
		"macd_confluence":       0.20,
		"volume_confirmation":   0.15,
		"support_resistance":    0.10,
		"momentum_acceleration": 0.10,
	}
}

// Result is the outcome of one confluence evaluation. A hold result
// carries the gate reasons; it is never an error.
type Result struct {
	Symbol      string                               `json:"symbol"`
	Signal      Signal                               `json:"signal"`
	Strength    float64                              `json:"strength"`
	Confidence  float64                              `json:"confidence"`
	Quality     string                               `json:"quality"`
	Components  map[string]analysis.ComponentResult  `json:"components"`
	RiskReward  float64                              `json:"risk_reward"`
	Entry       float64                              `json:"entry"`
	StopLoss    float64                              `json:"stop_loss"`
	TakeProfit  float64                              `json:"take_profit"`
	Reasons     []string                             `json:"reasons"`
	GeneratedAt time.Time                            `json:"generated_at"`
}

// Config configures a Scorer
type Config struct {
	Mode          Mode
	Scheme        WeightScheme
	Cooldown      time.Duration // minimum gap between non-hold signals per symbol
	StopPercent   float64       // stop distance from entry, percent
	TargetPercent float64       // take-profit distance from entry, percent
}

// Scorer aggregates component analyzer results into a weighted trade
// signal gated by mode thresholds. Safe for concurrent use; the only
// internal state is the per-symbol signal cooldown.
type Scorer struct {
	params    ModeParams
	cfg       Config
	analyzers []analysis.Analyzer
	weights   map[string]float64
	logger    zerolog.Logger

	mu         sync.Mutex
	lastSignal map[string]time.Time
}

// NewScorer builds a scorer for the given mode and weight scheme
func NewScorer(cfg Config, logger zerolog.Logger) (*Scorer, error) {
	params := ParamsForMode(cfg.Mode)

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.StopPercent <= 0 {
		cfg.StopPercent = 2.0
	}
	if cfg.TargetPercent <= 0 {
		cfg.TargetPercent = 4.0
	}

	analyzerParams := analysis.Params{
		RSIOversold:           params.RSIOversold,
		RSIOverbought:         params.RSIOverbought,
		MinVolumeRatio:        params.MinVolumeRatio,
		MaxVolatilityPct:      params.MaxVolatilityPct,
		StructureDeviationPct: 5.0,
	}

	var (
		analyzers []analysis.Analyzer
		weights   map[string]float64
	)

	switch cfg.Scheme {
	case SchemeAlternate:
		analyzers = []analysis.Analyzer{
			analysis.NewTrendSlopeAnalyzer(),
			analysis.NewRSIDivergenceAnalyzer(),
			analysis.NewMACDConfluenceAnalyzer(),
			analysis.NewVolumeConfirmationAnalyzer(),
			analysis.NewSupportResistanceAnalyzer(),
			analysis.NewMomentumAccelerationAnalyzer(),
		}
		weights = AlternateWeights()
		// The alternate set ships with looser gates
		if cfg.Mode == "" {
			params.MinScore = 0.6
			params.MinRiskReward = 1.5
		}
	default:
		analyzers = []analysis.Analyzer{
			analysis.NewRSIEMAAnalyzer(analyzerParams),
			analysis.NewMACDMomentumAnalyzer(),
			analysis.NewVolumeAnalyzer(analyzerParams),
			analysis.NewVolatilityAnalyzer(analyzerParams),
			analysis.NewPriceActionAnalyzer(),
			analysis.NewMarketStructureAnalyzer(analyzerParams),
		}
		weights = PrimaryWeights()
	}

	s := &Scorer{
		params:     params,
		cfg:        cfg,
		analyzers:  analyzers,
		logger:     logger.With().Str("component", "confluence").Logger(),
		lastSignal: make(map[string]time.Time),
	}

	if err := s.SetWeights(weights); err != nil {
		return nil, err
	}

	return s, nil
}

// SetWeights replaces the component weights. Weights must cover every
// analyzer and sum to 1.0 within tolerance.
func (s *Scorer) SetWeights(weights map[string]float64) error {
	sum := 0.0
	for _, a := range s.analyzers {
		w, ok := weights[a.Name()]
		if !ok {
			return fmt.Errorf("missing weight for component %s", a.Name())
		}
		if w < 0 {
			return fmt.Errorf("negative weight for component %s", a.Name())
		}
		sum += w
	}

	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("weights sum to %.4f, expected 1.0", sum)
	}

	s.mu.Lock()
	s.weights = weights
	s.mu.Unlock()
	return nil
}

// Evaluate scores one candle window and returns the gated signal.
// A failed gate produces a hold result with reasons, never an error.
func (s *Scorer) Evaluate(symbol string, candles []market.Candle, now time.Time) *Result {
	result := &Result{
		Symbol:      symbol,
		Signal:      SignalHold,
		Components:  make(map[string]analysis.ComponentResult, len(s.analyzers)),
		GeneratedAt: now,
	}

	if len(candles) == 0 {
		result.Reasons = append(result.Reasons, "no candle data")
		return result
	}

	s.mu.Lock()
	weights := s.weights
	s.mu.Unlock()

	totalScore := 0.0
	bullish, bearish := 0, 0

	for _, a := range s.analyzers {
		component := a.Analyze(candles)
		result.Components[a.Name()] = component
		totalScore += component.Score * weights[a.Name()]

		switch component.Direction {
		case analysis.DirectionBullish:
			bullish++
		case analysis.DirectionBearish:
			bearish++
		}
	}

	result.Strength = totalScore
	result.Confidence = math.Min(totalScore*1.1, 1.0)
	result.Quality = qualityTier(totalScore)

	direction := analysis.DirectionNeutral
	if bullish >= 3 && bullish > bearish {
		direction = analysis.DirectionBullish
	} else if bearish >= 3 && bearish > bullish {
		direction = analysis.DirectionBearish
	}

	entry := candles[len(candles)-1].Close
	result.Entry = entry

	if direction == analysis.DirectionBullish {
		result.StopLoss = entry * (1 - s.cfg.StopPercent/100)
		result.TakeProfit = entry * (1 + s.cfg.TargetPercent/100)
	} else if direction == analysis.DirectionBearish {
		result.StopLoss = entry * (1 + s.cfg.StopPercent/100)
		result.TakeProfit = entry * (1 - s.cfg.TargetPercent/100)
	}

	if result.StopLoss != 0 {
		risk := math.Abs(entry - result.StopLoss)
		reward := math.Abs(result.TakeProfit - entry)
		if risk > 0 {
			result.RiskReward = reward / risk
		}
	}

	// Gates, each with its own rejection reason
	if direction == analysis.DirectionNeutral {
		result.Reasons = append(result.Reasons, fmt.Sprintf("no directional consensus (%d bullish, %d bearish)", bullish, bearish))
	}
	if totalScore < s.params.MinScore {
		result.Reasons = append(result.Reasons, fmt.Sprintf("confluence score %.2f below minimum %.2f", totalScore, s.params.MinScore))
	}
	if s.cfg.Mode != ModeAggressive && !s.volumeConfirmed(result) {
		result.Reasons = append(result.Reasons, "volume not confirmed")
	}
	if !s.volatilityAcceptable(result) {
		result.Reasons = append(result.Reasons, "volatility outside acceptable range")
	}
	if direction != analysis.DirectionNeutral && result.RiskReward < s.params.MinRiskReward {
		result.Reasons = append(result.Reasons, fmt.Sprintf("risk/reward %.2f below minimum %.2f", result.RiskReward, s.params.MinRiskReward))
	}

	if len(result.Reasons) > 0 {
		return result
	}

	// Signal cooldown gate
	if remaining, active := s.inCooldown(symbol, now); active {
		result.Reasons = append(result.Reasons, fmt.Sprintf("signal cooldown active, %.0fs remaining", remaining.Seconds()))
		return result
	}
	s.markSignal(symbol, now)

	if direction == analysis.DirectionBullish {
		result.Signal = SignalBuy
	} else {
		result.Signal = SignalSell
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("signal", string(result.Signal)).
		Float64("strength", result.Strength).
		Float64("risk_reward", result.RiskReward).
		Msg("confluence signal generated")

	return result
}

// inCooldown reports whether a non-hold signal for the symbol is still
// inside the minimum gap, and how long remains.
func (s *Scorer) inCooldown(symbol string, now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, seen := s.lastSignal[symbol]
	if !seen {
		return 0, false
	}

	elapsed := now.Sub(last)
	if elapsed >= s.cfg.Cooldown {
		return 0, false
	}
	return s.cfg.Cooldown - elapsed, true
}

func (s *Scorer) markSignal(symbol string, now time.Time) {
	s.mu.Lock()
	s.lastSignal[symbol] = now
	s.mu.Unlock()
}

// volumeConfirmed checks the volume component in either scheme
func (s *Scorer) volumeConfirmed(result *Result) bool {
	if c, ok := result.Components["volume"]; ok {
		return c.Score >= 0.7
	}
	if c, ok := result.Components["volume_confirmation"]; ok {
		return c.Score >= 0.7
	}
	return true
}

// volatilityAcceptable checks the volatility gate when the scheme has one
func (s *Scorer) volatilityAcceptable(result *Result) bool {
	c, ok := result.Components["volatility"]
	if !ok {
		return true
	}
	pct, ok := c.Metrics["atr_percentile"]
	if !ok {
		return c.Score > 0.1
	}
	return pct <= s.params.MaxVolatilityPct
}

func qualityTier(score float64) string {
	switch {
	case score >= 0.9:
		return "VERY_STRONG"
	case score >= 0.8:
		return "STRONG"
	case score >= 0.7:
		return "MODERATE"
	default:
		return "WEAK"
	}
}
