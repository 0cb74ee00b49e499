package analysis

import (
	"fmt"
	"math"

	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
)

const (
	structureMinBars   = 50
	longSlopeThreshold = 0.001
)

// MarketStructureAnalyzer checks slope alignment across short, medium and
// long lookbacks. The price-vs-EMA deviation limit keeps overextended
// moves out of the aligned case.
type MarketStructureAnalyzer struct {
	params Params
}

func NewMarketStructureAnalyzer(params Params) *MarketStructureAnalyzer {
	return &MarketStructureAnalyzer{params: params}
}

func (a *MarketStructureAnalyzer) Name() string { return "market_structure" }

func (a *MarketStructureAnalyzer) MinBars() int { return structureMinBars }

func (a *MarketStructureAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.5, "insufficient data for market structure")
	}

	closes := indicators.Closes(candles)
	shortSlope, _ := indicators.CalculateLinRegSlope(closes[len(closes)-10:])
	mediumSlope, _ := indicators.CalculateLinRegSlope(closes[len(closes)-20:])
	longSlope, _ := indicators.CalculateLinRegSlope(closes[len(closes)-50:])

	price := candles[len(candles)-1].Close
	ema50 := indicators.CalculateEMA(candles, 50)

	deviation := 0.0
	if ema50 > 0 {
		deviation = math.Abs(price-ema50) / ema50 * 100
	}

	metrics := map[string]float64{
		"slope_10":      shortSlope,
		"slope_20":      mediumSlope,
		"slope_50":      longSlope,
		"ema_deviation": deviation,
	}

	if deviation > a.params.StructureDeviationPct {
		return ComponentResult{
			Score:     0.5,
			Direction: DirectionNeutral,
			Reason:    fmt.Sprintf("price extended %.1f%% from EMA50", deviation),
			Metrics:   metrics,
		}
	}

	allUp := shortSlope > 0 && mediumSlope > 0 && longSlope > 0
	allDown := shortSlope < 0 && mediumSlope < 0 && longSlope < 0
	conflicted := (shortSlope > 0) != (longSlope > 0)

	switch {
	case allUp && math.Abs(longSlope) > longSlopeThreshold:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    "structure aligned bullish across 10/20/50 bars",
			Metrics:   metrics,
		}
	case allDown && math.Abs(longSlope) > longSlopeThreshold:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    "structure aligned bearish across 10/20/50 bars",
			Metrics:   metrics,
		}
	case conflicted:
		return ComponentResult{
			Score:     0.3,
			Direction: DirectionNeutral,
			Reason:    "short and long timeframe slopes conflict",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.5,
		Direction: DirectionNeutral,
		Reason:    "weak or flat structure",
		Metrics:   metrics,
	}
}
