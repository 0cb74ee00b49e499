package analysis

import (
	"fmt"
	"math"

	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
)

const (
	volatilityMinBars = 20
	atrPeriod         = 14
)

// VolatilityAnalyzer maps the current ATR relative to its recent average
// into a percentile and scores lower volatility higher. Direction is
// always neutral; the component acts as a gate, not a vote.
type VolatilityAnalyzer struct {
	params Params
}

func NewVolatilityAnalyzer(params Params) *VolatilityAnalyzer {
	return &VolatilityAnalyzer{params: params}
}

func (a *VolatilityAnalyzer) Name() string { return "volatility" }

func (a *VolatilityAnalyzer) MinBars() int { return volatilityMinBars }

func (a *VolatilityAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.5, "insufficient data for volatility analysis")
	}

	currentATR := indicators.CalculateATR(candles, atrPeriod)
	avgATR := indicators.CalculateATR(candles[:len(candles)-1], len(candles)-2)

	ratio := 1.0
	if avgATR > 0 {
		ratio = currentATR / avgATR
	}

	percentile := math.Min(ratio*50, 100)
	acceptable := percentile <= a.params.MaxVolatilityPct

	metrics := map[string]float64{
		"atr":            currentATR,
		"atr_ratio":      ratio,
		"atr_percentile": percentile,
	}

	if !acceptable {
		return ComponentResult{
			Score:     0.1,
			Direction: DirectionNeutral,
			Reason:    fmt.Sprintf("volatility percentile %.0f above %.0f limit", percentile, a.params.MaxVolatilityPct),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     1 - percentile/100,
		Direction: DirectionNeutral,
		Reason:    fmt.Sprintf("volatility acceptable at percentile %.0f", percentile),
		Metrics:   metrics,
	}
}

// Acceptable reports whether the window's volatility passes the mode limit
func (a *VolatilityAnalyzer) Acceptable(result ComponentResult) bool {
	pct, ok := result.Metrics["atr_percentile"]
	if !ok {
		return true
	}
	return pct <= a.params.MaxVolatilityPct
}
