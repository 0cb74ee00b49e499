package analysis

import (
	"fmt"
	"math"

	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
)

// Alternate component set used by the slope-weighted confluence scheme.
// Same Analyzer contract, same neutral degradation below the minimum
// window.

const altMinBars = 50

// TrendSlopeAnalyzer scores the strength and fit of the recent linear
// trend.
type TrendSlopeAnalyzer struct{}

func NewTrendSlopeAnalyzer() *TrendSlopeAnalyzer { return &TrendSlopeAnalyzer{} }

func (a *TrendSlopeAnalyzer) Name() string { return "trend_slope" }

func (a *TrendSlopeAnalyzer) MinBars() int { return altMinBars }

func (a *TrendSlopeAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.3, "insufficient data for trend slope")
	}

	closes := indicators.Closes(candles)
	slope, rSquared := indicators.CalculateLinRegSlope(closes[len(closes)-20:])

	metrics := map[string]float64{"slope": slope, "r_squared": rSquared}

	direction := DirectionNeutral
	if slope > 0 {
		direction = DirectionBullish
	} else if slope < 0 {
		direction = DirectionBearish
	}

	switch {
	case math.Abs(slope) > 0.002 && rSquared > 0.6:
		return ComponentResult{
			Score:     0.85,
			Direction: direction,
			Reason:    fmt.Sprintf("strong %s trend (slope %.4f, R² %.2f)", direction, slope, rSquared),
			Metrics:   metrics,
		}
	case math.Abs(slope) > 0.001 && rSquared > 0.4:
		return ComponentResult{
			Score:     0.6,
			Direction: direction,
			Reason:    fmt.Sprintf("moderate %s trend (slope %.4f)", direction, slope),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.3,
		Direction: DirectionNeutral,
		Reason:    "no clear trend slope",
		Metrics:   metrics,
	}
}

// RSIDivergenceAnalyzer looks for price/RSI divergence at recent swing
// points.
type RSIDivergenceAnalyzer struct{}

func NewRSIDivergenceAnalyzer() *RSIDivergenceAnalyzer { return &RSIDivergenceAnalyzer{} }

func (a *RSIDivergenceAnalyzer) Name() string { return "rsi_divergence" }

func (a *RSIDivergenceAnalyzer) MinBars() int { return altMinBars }

func (a *RSIDivergenceAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.3, "insufficient data for RSI divergence")
	}

	rsiSeries := indicators.CalculateRSISeries(candles, rsiPeriod)
	if len(rsiSeries) < 20 {
		return insufficientData(0.3, "insufficient RSI history for divergence")
	}

	// Compare the last two halves of a 20-bar tail at their extremes
	closes := indicators.Closes(candles)
	priceTail := closes[len(closes)-20:]
	rsiTail := rsiSeries[len(rsiSeries)-20:]

	prevLow, prevLowRSI := minWith(priceTail[:10], rsiTail[:10])
	currLow, currLowRSI := minWith(priceTail[10:], rsiTail[10:])
	prevHigh, prevHighRSI := maxWith(priceTail[:10], rsiTail[:10])
	currHigh, currHighRSI := maxWith(priceTail[10:], rsiTail[10:])

	metrics := map[string]float64{"rsi": rsiTail[len(rsiTail)-1]}

	switch {
	case currLow < prevLow && currLowRSI > prevLowRSI:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    "bullish divergence: lower price low with higher RSI low",
			Metrics:   metrics,
		}
	case currHigh > prevHigh && currHighRSI < prevHighRSI:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    "bearish divergence: higher price high with lower RSI high",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.3,
		Direction: DirectionNeutral,
		Reason:    "no RSI divergence",
		Metrics:   metrics,
	}
}

func minWith(values, paired []float64) (float64, float64) {
	minIdx := 0
	for i, v := range values {
		if v < values[minIdx] {
			minIdx = i
		}
	}
	return values[minIdx], paired[minIdx]
}

func maxWith(values, paired []float64) (float64, float64) {
	maxIdx := 0
	for i, v := range values {
		if v > values[maxIdx] {
			maxIdx = i
		}
	}
	return values[maxIdx], paired[maxIdx]
}

// MACDConfluenceAnalyzer is the lighter MACD read of the alternate set:
// line position versus signal plus histogram direction.
type MACDConfluenceAnalyzer struct{}

func NewMACDConfluenceAnalyzer() *MACDConfluenceAnalyzer { return &MACDConfluenceAnalyzer{} }

func (a *MACDConfluenceAnalyzer) Name() string { return "macd_confluence" }

func (a *MACDConfluenceAnalyzer) MinBars() int { return altMinBars }

func (a *MACDConfluenceAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.3, "insufficient data for MACD confluence")
	}

	res := indicators.CalculateMACD(candles, 12, 26, 9)
	n := len(res.HistogramSeries)
	if n < 2 {
		return insufficientData(0.3, "insufficient MACD history")
	}

	metrics := map[string]float64{"macd": res.MACD, "signal": res.Signal, "histogram": res.Histogram}
	histRising := res.HistogramSeries[n-1] > res.HistogramSeries[n-2]

	switch {
	case res.MACD > res.Signal && histRising:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    "MACD above signal with rising histogram",
			Metrics:   metrics,
		}
	case res.MACD < res.Signal && !histRising:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    "MACD below signal with falling histogram",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.3,
		Direction: DirectionNeutral,
		Reason:    "MACD and histogram disagree",
		Metrics:   metrics,
	}
}

// VolumeConfirmationAnalyzer checks that On-Balance Volume moves with
// price instead of against it.
type VolumeConfirmationAnalyzer struct{}

func NewVolumeConfirmationAnalyzer() *VolumeConfirmationAnalyzer {
	return &VolumeConfirmationAnalyzer{}
}

func (a *VolumeConfirmationAnalyzer) Name() string { return "volume_confirmation" }

func (a *VolumeConfirmationAnalyzer) MinBars() int { return altMinBars }

func (a *VolumeConfirmationAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.5, "insufficient data for volume confirmation")
	}

	obv := indicators.CalculateOBV(candles)
	closes := indicators.Closes(candles)

	obvSlope, _ := indicators.CalculateLinRegSlope(normalize(obv[len(obv)-20:]))
	priceSlope, _ := indicators.CalculateLinRegSlope(closes[len(closes)-20:])

	metrics := map[string]float64{"obv_slope": obvSlope, "price_slope": priceSlope}

	aligned := (obvSlope > 0 && priceSlope > 0) || (obvSlope < 0 && priceSlope < 0)
	diverging := (obvSlope > 0) != (priceSlope > 0) && obvSlope != 0 && priceSlope != 0

	switch {
	case aligned && priceSlope > 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    "OBV confirms rising price",
			Metrics:   metrics,
		}
	case aligned && priceSlope < 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    "OBV confirms falling price",
			Metrics:   metrics,
		}
	case diverging:
		return ComponentResult{
			Score:     0.3,
			Direction: DirectionNeutral,
			Reason:    "OBV diverges from price",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.5,
		Direction: DirectionNeutral,
		Reason:    "volume flow inconclusive",
		Metrics:   metrics,
	}
}

// normalize shifts a series so its values are usable by the slope fit
// even when OBV is negative throughout.
func normalize(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	minV := values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - minV + 1
	}
	return out
}

// SupportResistanceAnalyzer scores proximity to pivot-derived levels.
type SupportResistanceAnalyzer struct{}

func NewSupportResistanceAnalyzer() *SupportResistanceAnalyzer {
	return &SupportResistanceAnalyzer{}
}

func (a *SupportResistanceAnalyzer) Name() string { return "support_resistance" }

func (a *SupportResistanceAnalyzer) MinBars() int { return altMinBars }

func (a *SupportResistanceAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.4, "insufficient data for support/resistance")
	}

	price := candles[len(candles)-1].Close
	supports := indicators.PivotLows(candles, 3)
	resistances := indicators.PivotHighs(candles, 3)

	nearestSupport := nearestBelow(supports, price)
	nearestResistance := nearestAbove(resistances, price)

	metrics := map[string]float64{
		"nearest_support":    nearestSupport,
		"nearest_resistance": nearestResistance,
	}

	switch {
	case nearestSupport > 0 && (price-nearestSupport)/nearestSupport <= levelProximity:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("price holding above pivot support %.4f", nearestSupport),
			Metrics:   metrics,
		}
	case nearestResistance > 0 && (nearestResistance-price)/nearestResistance <= levelProximity:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("price pressing into pivot resistance %.4f", nearestResistance),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.4,
		Direction: DirectionNeutral,
		Reason:    "price between levels",
		Metrics:   metrics,
	}
}

func nearestBelow(levels []float64, price float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l <= price && l > best {
			best = l
		}
	}
	return best
}

func nearestAbove(levels []float64, price float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l >= price && (best == 0 || l < best) {
			best = l
		}
	}
	return best
}

// MomentumAccelerationAnalyzer compares the latest short-window momentum
// with the one before it.
type MomentumAccelerationAnalyzer struct{}

func NewMomentumAccelerationAnalyzer() *MomentumAccelerationAnalyzer {
	return &MomentumAccelerationAnalyzer{}
}

func (a *MomentumAccelerationAnalyzer) Name() string { return "momentum_acceleration" }

func (a *MomentumAccelerationAnalyzer) MinBars() int { return altMinBars }

func (a *MomentumAccelerationAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.4, "insufficient data for momentum acceleration")
	}

	recent := priceMomentum(candles, 3)
	previous := priceMomentum(candles[:len(candles)-3], 3)
	acceleration := recent - previous

	metrics := map[string]float64{
		"momentum":     recent,
		"acceleration": acceleration,
	}

	switch {
	case recent > 0 && acceleration > 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    "upward momentum accelerating",
			Metrics:   metrics,
		}
	case recent < 0 && acceleration < 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    "downward momentum accelerating",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.4,
		Direction: DirectionNeutral,
		Reason:    "momentum fading or mixed",
		Metrics:   metrics,
	}
}
