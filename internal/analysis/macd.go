package analysis

import (
	"fmt"

	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
)

const macdMinBars = 40

// MACDMomentumAnalyzer scores MACD crossovers confirmed by histogram
// expansion and short-term price momentum.
type MACDMomentumAnalyzer struct{}

func NewMACDMomentumAnalyzer() *MACDMomentumAnalyzer { return &MACDMomentumAnalyzer{} }

func (a *MACDMomentumAnalyzer) Name() string { return "macd" }

func (a *MACDMomentumAnalyzer) MinBars() int { return macdMinBars }

func (a *MACDMomentumAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0, "insufficient data for MACD momentum")
	}

	res := indicators.CalculateMACD(candles, 12, 26, 9)
	n := len(res.MACDSeries)
	if n < 3 || len(res.HistogramSeries) < 3 {
		return insufficientData(0, "insufficient MACD history")
	}

	momentum := priceMomentum(candles, 3)
	hist := res.HistogramSeries

	metrics := map[string]float64{
		"macd":      res.MACD,
		"signal":    res.Signal,
		"histogram": res.Histogram,
		"momentum":  momentum,
	}

	histRising := hist[n-1] > hist[n-2] && hist[n-2] > hist[n-3]
	histFalling := hist[n-1] < hist[n-2] && hist[n-2] < hist[n-3]

	bullCross := res.MACD > res.Signal && res.MACDSeries[n-3] <= res.SignalSeries[n-3]
	bearCross := res.MACD < res.Signal && res.MACDSeries[n-3] >= res.SignalSeries[n-3]

	switch {
	case bullCross && histRising && momentum > 0:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBullish,
			Reason:    "bullish MACD crossover with expanding histogram and positive momentum",
			Metrics:   metrics,
		}
	case bearCross && histFalling && momentum < 0:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBearish,
			Reason:    "bearish MACD crossover with expanding histogram and negative momentum",
			Metrics:   metrics,
		}
	case res.MACD > 0 && res.MACDSeries[n-3] <= 0:
		return ComponentResult{
			Score:     0.6,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("MACD crossed above zero line (%.4f)", res.MACD),
			Metrics:   metrics,
		}
	case res.MACD < 0 && res.MACDSeries[n-3] >= 0:
		return ComponentResult{
			Score:     0.6,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("MACD crossed below zero line (%.4f)", res.MACD),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.2,
		Direction: DirectionNeutral,
		Reason:    "no MACD momentum setup",
		Metrics:   metrics,
	}
}

// priceMomentum returns the fractional close change over the last bars
func priceMomentum(candles []market.Candle, bars int) float64 {
	if len(candles) < bars+1 {
		return 0
	}

	ref := candles[len(candles)-1-bars].Close
	if ref == 0 {
		return 0
	}

	return (candles[len(candles)-1].Close - ref) / ref
}
