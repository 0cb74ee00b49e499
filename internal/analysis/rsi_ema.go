package analysis

import (
	"fmt"

	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
)

const (
	rsiEMAMinBars   = 50
	rsiPeriod       = 14
	rsiRecoveryBars = 3
)

// RSIEMAAnalyzer scores trend alignment between the EMA stack and RSI.
// A full EMA stack (12 over 26 over 50) with price above it plus an RSI
// recovering from oversold is the strongest bullish read; an RSI drifting
// up through the 40-60 band is the weaker momentum read.
type RSIEMAAnalyzer struct {
	params Params
}

func NewRSIEMAAnalyzer(params Params) *RSIEMAAnalyzer {
	return &RSIEMAAnalyzer{params: params}
}

func (a *RSIEMAAnalyzer) Name() string { return "rsi_ema" }

func (a *RSIEMAAnalyzer) MinBars() int { return rsiEMAMinBars }

func (a *RSIEMAAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0, "insufficient data for RSI/EMA confluence")
	}

	price := candles[len(candles)-1].Close
	ema12 := indicators.CalculateEMA(candles, 12)
	ema26 := indicators.CalculateEMA(candles, 26)
	ema50 := indicators.CalculateEMA(candles, 50)

	rsiSeries := indicators.CalculateRSISeries(candles, rsiPeriod)
	if len(rsiSeries) < rsiRecoveryBars {
		return insufficientData(0, "insufficient data for RSI history")
	}

	rsi := rsiSeries[len(rsiSeries)-1]
	rsiDelta := rsi - rsiSeries[len(rsiSeries)-rsiRecoveryBars]

	metrics := map[string]float64{
		"rsi":       rsi,
		"rsi_delta": rsiDelta,
		"ema12":     ema12,
		"ema26":     ema26,
		"ema50":     ema50,
	}

	bullStack := ema12 > ema26 && ema26 > ema50 && price > ema12
	bearStack := ema12 < ema26 && ema26 < ema50 && price < ema12

	oversoldRecovery := rsi < a.params.RSIOversold && rsiDelta > 2
	bullMomentum := rsi > 40 && rsi < 60 && rsiDelta > 1
	overboughtDecline := rsi > a.params.RSIOverbought && rsiDelta < -2
	bearMomentum := rsi > 40 && rsi < 60 && rsiDelta < -1

	switch {
	case bullStack && oversoldRecovery:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("bullish EMA stack with RSI recovering from oversold (RSI %.1f, +%.1f)", rsi, rsiDelta),
			Metrics:   metrics,
		}
	case bullStack && bullMomentum:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("bullish EMA stack with RSI trending up in neutral band (RSI %.1f)", rsi),
			Metrics:   metrics,
		}
	case bearStack && overboughtDecline:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("bearish EMA stack with RSI falling from overbought (RSI %.1f, %.1f)", rsi, rsiDelta),
			Metrics:   metrics,
		}
	case bearStack && bearMomentum:
		return ComponentResult{
			Score:     0.7,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("bearish EMA stack with RSI trending down in neutral band (RSI %.1f)", rsi),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.3,
		Direction: DirectionNeutral,
		Reason:    "no EMA/RSI alignment",
		Metrics:   metrics,
	}
}
