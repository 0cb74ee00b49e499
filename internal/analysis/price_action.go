package analysis

import (
	"fmt"
	"math"

	"okx-trading-bot/internal/market"
)

const (
	priceActionMinBars = 20
	rangeLookbackBars  = 10
	choppyThreshold    = 0.001
	levelProximity     = 0.01
)

// PriceActionAnalyzer scores range breakouts and reactions at the edges
// of the recent trading range.
type PriceActionAnalyzer struct{}

func NewPriceActionAnalyzer() *PriceActionAnalyzer { return &PriceActionAnalyzer{} }

func (a *PriceActionAnalyzer) Name() string { return "price_action" }

func (a *PriceActionAnalyzer) MinBars() int { return priceActionMinBars }

func (a *PriceActionAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.5, "insufficient data for price action analysis")
	}

	price := candles[len(candles)-1].Close
	momentum := priceMomentum(candles, 3)

	// Range of the lookback window excluding the current bar
	window := candles[len(candles)-1-rangeLookbackBars : len(candles)-1]
	rangeHigh := window[0].High
	rangeLow := window[0].Low
	for _, c := range window[1:] {
		if c.High > rangeHigh {
			rangeHigh = c.High
		}
		if c.Low < rangeLow {
			rangeLow = c.Low
		}
	}

	metrics := map[string]float64{
		"momentum":   momentum,
		"range_high": rangeHigh,
		"range_low":  rangeLow,
	}

	switch {
	case price > rangeHigh && momentum > 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("breakout above %d-bar range high %.4f", rangeLookbackBars, rangeHigh),
			Metrics:   metrics,
		}
	case price < rangeLow && momentum < 0:
		return ComponentResult{
			Score:     0.8,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("breakdown below %d-bar range low %.4f", rangeLookbackBars, rangeLow),
			Metrics:   metrics,
		}
	case rangeLow > 0 && (price-rangeLow)/rangeLow <= levelProximity && momentum > 0:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("bounce off range support %.4f", rangeLow),
			Metrics:   metrics,
		}
	case rangeHigh > 0 && (rangeHigh-price)/rangeHigh <= levelProximity && momentum < 0:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("rejection at range resistance %.4f", rangeHigh),
			Metrics:   metrics,
		}
	case math.Abs(momentum) < choppyThreshold:
		return ComponentResult{
			Score:     0.2,
			Direction: DirectionNeutral,
			Reason:    "choppy price action, no momentum",
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.5,
		Direction: DirectionNeutral,
		Reason:    "price inside range without a setup",
		Metrics:   metrics,
	}
}
