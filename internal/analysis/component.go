package analysis

import "okx-trading-bot/internal/market"

// Direction is the directional read of a single component
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// ComponentResult is the uniform output of every component analyzer
type ComponentResult struct {
	Score     float64            `json:"score"`
	Direction Direction          `json:"direction"`
	Reason    string             `json:"reason"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Analyzer scores one aspect of the market from a candle window.
// Analyzers never error: a window shorter than MinBars yields the
// analyzer's documented neutral result.
type Analyzer interface {
	Name() string
	MinBars() int
	Analyze(candles []market.Candle) ComponentResult
}

// Params carries the mode-dependent thresholds the analyzers consume
type Params struct {
	RSIOversold           float64
	RSIOverbought         float64
	MinVolumeRatio        float64
	MaxVolatilityPct      float64
	StructureDeviationPct float64
}

// DefaultParams returns the precision-mode thresholds
func DefaultParams() Params {
	return Params{
		RSIOversold:           25,
		RSIOverbought:         75,
		MinVolumeRatio:        2.0,
		MaxVolatilityPct:      70,
		StructureDeviationPct: 5.0,
	}
}

func insufficientData(score float64, reason string) ComponentResult {
	return ComponentResult{
		Score:     score,
		Direction: DirectionNeutral,
		Reason:    reason,
	}
}
