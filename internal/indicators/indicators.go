package indicators

import (
	"math"

	"okx-trading-bot/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average over the last period closes
func CalculateSMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average over the closes.
// The EMA is seeded with the SMA of the first period values.
func CalculateEMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	series := emaSeries(closes, period)
	if len(series) == 0 {
		return 0
	}

	return series[len(series)-1]
}

// emaSeries returns the EMA series of values, one entry per input value
// from index period-1 onward. Seed is the SMA of the first period values,
// multiplier is 2/(period+1).
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)

	multiplier := 2.0 / float64(period+1)
	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)

	ema := seed
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		series = append(series, ema)
	}

	return series
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index with Wilder smoothing.
// Returns 50 (neutral) when there is not enough data and 100 when the
// smoothed average loss is exactly zero.
func CalculateRSI(candles []market.Candle, period int) float64 {
	series := CalculateRSISeries(candles, period)
	if len(series) == 0 {
		return 50.0 // Neutral RSI
	}

	return series[len(series)-1]
}

// CalculateRSISeries returns the Wilder-smoothed RSI at each bar from
// period onward. The averages are seeded with the simple mean of the
// first period gains and losses, then updated recursively as
// avg = (avg*(period-1) + value) / period.
func CalculateRSISeries(candles []market.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	series := make([]float64, 0, len(candles)-period)
	series = append(series, rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series = append(series, rsiFromAverages(avgGain, avgLoss))
	}

	return series
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds the latest MACD values plus the trailing series,
// oldest first. Series entries are aligned with each other.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64

	MACDSeries      []float64
	SignalSeries    []float64
	HistogramSeries []float64
}

// CalculateMACD calculates the MACD line (EMA fast − EMA slow), the signal
// line (EMA of the MACD line) and the histogram (MACD − signal).
func CalculateMACD(candles []market.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return &MACDResult{}
	}

	// Align the fast series to the slow series tail
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signal := emaSeries(macdLine, signalPeriod)
	if len(signal) == 0 {
		return &MACDResult{}
	}

	macdTail := macdLine[len(macdLine)-len(signal):]
	histogram := make([]float64, len(signal))
	for i := range signal {
		histogram[i] = macdTail[i] - signal[i]
	}

	return &MACDResult{
		MACD:            macdTail[len(macdTail)-1],
		Signal:          signal[len(signal)-1],
		Histogram:       histogram[len(histogram)-1],
		MACDSeries:      macdTail,
		SignalSeries:    signal,
		HistogramSeries: histogram,
	}
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates the Average True Range as the mean of the True
// Range over the last period bars.
func CalculateATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		sum += tr
	}

	return sum / float64(period)
}

func trueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}

// ============================================================================
// LINEAR REGRESSION
// ============================================================================

// CalculateLinRegSlope fits a least-squares line over index vs value and
// returns the slope normalized by the last value, plus the R² fit quality.
// Returns (0, 0) when fewer than two values are supplied.
func CalculateLinRegSlope(values []float64) (slope, rSquared float64) {
	n := len(values)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}

	rawSlope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - rawSlope*sumX) / fn

	// R² from explained vs total variance
	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, v := range values {
		predicted := intercept + rawSlope*float64(i)
		ssRes += (v - predicted) * (v - predicted)
		ssTot += (v - meanY) * (v - meanY)
	}
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	last := values[n-1]
	if last != 0 {
		slope = rawSlope / last
	}

	return slope, rSquared
}

// ============================================================================
// OBV (On-Balance Volume)
// ============================================================================

// CalculateOBV returns the cumulative On-Balance Volume series, oldest
// first: volume is added on up-closes and subtracted on down-closes.
func CalculateOBV(candles []market.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}

	series := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		series[i] = series[i-1]
		switch {
		case candles[i].Close > candles[i-1].Close:
			series[i] += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			series[i] -= candles[i].Volume
		}
	}

	return series
}

// ============================================================================
// PIVOT DETECTION
// ============================================================================

// PivotHighs returns the highs that are local maxima over lookback bars on
// each side, oldest first.
func PivotHighs(candles []market.Candle, lookback int) []float64 {
	if lookback <= 0 || len(candles) < 2*lookback+1 {
		return nil
	}

	var pivots []float64
	for i := lookback; i < len(candles)-lookback; i++ {
		isPivot := true
		for j := i - lookback; j <= i+lookback; j++ {
			if candles[j].High > candles[i].High {
				isPivot = false
				break
			}
		}
		if isPivot {
			pivots = append(pivots, candles[i].High)
		}
	}

	return pivots
}

// PivotLows returns the lows that are local minima over lookback bars on
// each side, oldest first.
func PivotLows(candles []market.Candle, lookback int) []float64 {
	if lookback <= 0 || len(candles) < 2*lookback+1 {
		return nil
	}

	var pivots []float64
	for i := lookback; i < len(candles)-lookback; i++ {
		isPivot := true
		for j := i - lookback; j <= i+lookback; j++ {
			if candles[j].Low < candles[i].Low {
				isPivot = false
				break
			}
		}
		if isPivot {
			pivots = append(pivots, candles[i].Low)
		}
	}

	return pivots
}

// Closes extracts the close prices from candles, oldest first.
func Closes(candles []market.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
