package analysis

import (
	"fmt"

	"okx-trading-bot/internal/market"
)

const (
	volumeMinBars      = 20
	pressureWindowBars = 10
)

// VolumeAnalyzer scores volume spikes confirmed by buy/sell pressure.
// Pressure is the share of recent volume traded on up-closes.
type VolumeAnalyzer struct {
	params Params
}

func NewVolumeAnalyzer(params Params) *VolumeAnalyzer {
	return &VolumeAnalyzer{params: params}
}

func (a *VolumeAnalyzer) Name() string { return "volume" }

func (a *VolumeAnalyzer) MinBars() int { return volumeMinBars }

func (a *VolumeAnalyzer) Analyze(candles []market.Candle) ComponentResult {
	if len(candles) < a.MinBars() {
		return insufficientData(0.3, "insufficient data for volume analysis")
	}

	last := candles[len(candles)-1]

	avgWindow := candles[len(candles)-volumeMinBars : len(candles)-1]
	avgVolume := 0.0
	for _, c := range avgWindow {
		avgVolume += c.Volume
	}
	avgVolume /= float64(len(avgWindow))

	ratio := 0.0
	if avgVolume > 0 {
		ratio = last.Volume / avgVolume
	}

	pressure := buyPressure(candles, pressureWindowBars)

	metrics := map[string]float64{
		"volume_ratio": ratio,
		"buy_pressure": pressure,
		"avg_volume":   avgVolume,
	}

	switch {
	case ratio >= a.params.MinVolumeRatio && pressure > 0.6:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBullish,
			Reason:    fmt.Sprintf("volume spike %.2fx with buy pressure %.0f%%", ratio, pressure*100),
			Metrics:   metrics,
		}
	case ratio >= a.params.MinVolumeRatio && pressure < 0.4:
		return ComponentResult{
			Score:     0.9,
			Direction: DirectionBearish,
			Reason:    fmt.Sprintf("volume spike %.2fx with sell pressure %.0f%%", ratio, (1-pressure)*100),
			Metrics:   metrics,
		}
	case ratio >= a.params.MinVolumeRatio:
		return ComponentResult{
			Score:     0.6,
			Direction: DirectionNeutral,
			Reason:    fmt.Sprintf("volume spike %.2fx with mixed pressure %.0f%%", ratio, pressure*100),
			Metrics:   metrics,
		}
	case ratio >= a.params.MinVolumeRatio*0.7:
		direction := DirectionBullish
		if pressure < 0.5 {
			direction = DirectionBearish
		}
		return ComponentResult{
			Score:     0.7,
			Direction: direction,
			Reason:    fmt.Sprintf("above-average volume %.2fx", ratio),
			Metrics:   metrics,
		}
	}

	return ComponentResult{
		Score:     0.2,
		Direction: DirectionNeutral,
		Reason:    fmt.Sprintf("low volume %.2fx of average", ratio),
		Metrics:   metrics,
	}
}

// buyPressure returns the fraction of volume over the last bars that
// traded on up-closes. Returns 0.5 when there is no volume.
func buyPressure(candles []market.Candle, bars int) float64 {
	if len(candles) < bars {
		bars = len(candles)
	}

	var buyVolume, totalVolume float64
	for _, c := range candles[len(candles)-bars:] {
		totalVolume += c.Volume
		if c.Close > c.Open {
			buyVolume += c.Volume
		}
	}

	if totalVolume == 0 {
		return 0.5
	}

	return buyVolume / totalVolume
}
