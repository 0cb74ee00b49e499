package indicators

import (
	"math"
	"testing"
	"time"

	"okx-trading-bot/internal/market"
)

func candlesFromCloses(closes ...float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   100,
		}
	}
	return candles
}

func TestCalculateRSIInsufficientData(t *testing.T) {
	candles := candlesFromCloses(100, 101, 102)

	rsi := CalculateRSI(candles, 14)
	if rsi != 50.0 {
		t.Errorf("expected neutral RSI 50 for short series, got %.2f", rsi)
	}
}

func TestCalculateRSIAllGains(t *testing.T) {
	// 15 strictly increasing closes: average loss is exactly zero
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := CalculateRSI(candlesFromCloses(closes...), 14)
	if rsi != 100.0 {
		t.Errorf("expected RSI 100 with no losses, got %.2f", rsi)
	}
}

func TestCalculateRSIBounds(t *testing.T) {
	cases := []struct {
		name   string
		closes []float64
	}{
		{"alternating", []float64{100, 102, 99, 103, 98, 104, 97, 105, 96, 106, 95, 107, 94, 108, 93, 109}},
		{"downtrend", []float64{115, 114, 113, 112, 111, 110, 109, 108, 107, 106, 105, 104, 103, 102, 101}},
		{"flat", []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rsi := CalculateRSI(candlesFromCloses(tc.closes...), 14)
			if rsi < 0 || rsi > 100 {
				t.Errorf("RSI %.2f outside [0,100]", rsi)
			}
		})
	}
}

func TestCalculateRSIAllLosses(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}

	rsi := CalculateRSI(candlesFromCloses(closes...), 14)
	if rsi != 0 {
		t.Errorf("expected RSI 0 with no gains, got %.2f", rsi)
	}
}

func TestCalculateRSIWilderSmoothing(t *testing.T) {
	// Reference values computed with the recursive Wilder update
	// avg = (avg*(period-1) + value) / period after a seeded mean.
	closes := []float64{
		100, 101, 102, 101, 103, 104, 103, 105, 106, 105,
		107, 108, 107, 109, 110, 109, 111, 110, 112, 111,
		113, 112, 114, 113, 115, 114, 116, 115, 117, 116,
	}
	candles := candlesFromCloses(closes...)

	rsi := CalculateRSI(candles, 14)
	if math.Abs(rsi-67.676588) > 1e-4 {
		t.Errorf("expected Wilder RSI 67.6766, got %.4f", rsi)
	}

	series := CalculateRSISeries(candles, 14)
	if len(series) != 16 {
		t.Fatalf("expected 16 RSI values for 30 closes, got %d", len(series))
	}

	want := []float64{77.777778, 73.387097, 76.272124, 72.065445}
	for i, w := range want {
		if math.Abs(series[i]-w) > 1e-4 {
			t.Errorf("series[%d] = %.4f, want %.4f", i, series[i], w)
		}
	}
	if series[len(series)-1] != rsi {
		t.Errorf("series tail %.4f disagrees with CalculateRSI %.4f", series[len(series)-1], rsi)
	}
}

func TestCalculateSMA(t *testing.T) {
	candles := candlesFromCloses(10, 20, 30, 40)

	sma := CalculateSMA(candles, 4)
	if sma != 25 {
		t.Errorf("expected SMA 25, got %.2f", sma)
	}

	if got := CalculateSMA(candles, 10); got != 0 {
		t.Errorf("expected 0 for insufficient data, got %.2f", got)
	}
}

func TestCalculateEMAConstantSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 50
	}

	ema := CalculateEMA(candlesFromCloses(closes...), 12)
	if math.Abs(ema-50) > 1e-9 {
		t.Errorf("EMA of constant series should equal the constant, got %.6f", ema)
	}
}

func TestCalculateEMATracksTrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes...)

	ema12 := CalculateEMA(candles, 12)
	ema26 := CalculateEMA(candles, 26)

	if ema12 <= ema26 {
		t.Errorf("fast EMA should lead in an uptrend: ema12=%.2f ema26=%.2f", ema12, ema26)
	}
	if ema12 >= closes[len(closes)-1] {
		t.Errorf("EMA should lag the last close in a trend: ema12=%.2f last=%.2f", ema12, closes[len(closes)-1])
	}
}

func TestCalculateATR(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 15)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     100,
			High:     102,
			Low:      98,
			Close:    100,
			Volume:   100,
		}
	}

	// Every bar: TR = high - low = 4
	atr := CalculateATR(candles, 14)
	if math.Abs(atr-4) > 1e-9 {
		t.Errorf("expected ATR 4, got %.4f", atr)
	}

	if got := CalculateATR(candles[:5], 14); got != 0 {
		t.Errorf("expected 0 ATR for insufficient data, got %.4f", got)
	}
}

func TestCalculateMACDInsufficientData(t *testing.T) {
	res := CalculateMACD(candlesFromCloses(100, 101, 102), 12, 26, 9)
	if res.MACD != 0 || res.Signal != 0 || res.Histogram != 0 {
		t.Errorf("expected zero MACD result for short series, got %+v", res)
	}
}

func TestCalculateMACDUptrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}

	res := CalculateMACD(candlesFromCloses(closes...), 12, 26, 9)
	if res.MACD <= 0 {
		t.Errorf("expected positive MACD in a steady uptrend, got %.4f", res.MACD)
	}
	if len(res.MACDSeries) != len(res.SignalSeries) || len(res.SignalSeries) != len(res.HistogramSeries) {
		t.Errorf("series misaligned: macd=%d signal=%d histogram=%d",
			len(res.MACDSeries), len(res.SignalSeries), len(res.HistogramSeries))
	}
}

func TestCalculateLinRegSlope(t *testing.T) {
	values := []float64{100, 101, 102, 103, 104, 105}

	slope, rSquared := CalculateLinRegSlope(values)
	if slope <= 0 {
		t.Errorf("expected positive slope, got %.6f", slope)
	}
	if math.Abs(rSquared-1) > 1e-9 {
		t.Errorf("perfect line should have R² 1, got %.6f", rSquared)
	}

	flatSlope, _ := CalculateLinRegSlope([]float64{50, 50, 50, 50})
	if flatSlope != 0 {
		t.Errorf("expected zero slope for flat series, got %.6f", flatSlope)
	}

	if s, r := CalculateLinRegSlope([]float64{1}); s != 0 || r != 0 {
		t.Errorf("expected (0,0) for single value, got (%.4f, %.4f)", s, r)
	}
}

func TestCalculateOBV(t *testing.T) {
	candles := candlesFromCloses(100, 102, 101, 103)

	obv := CalculateOBV(candles)
	if len(obv) != 4 {
		t.Fatalf("expected 4 OBV values, got %d", len(obv))
	}

	// +100 (up), -100 (down), +100 (up)
	expected := []float64{0, 100, 0, 100}
	for i, want := range expected {
		if obv[i] != want {
			t.Errorf("OBV[%d]: expected %.0f, got %.0f", i, want, obv[i])
		}
	}
}

func TestPivotDetection(t *testing.T) {
	closes := []float64{100, 101, 105, 101, 100, 99, 95, 99, 100, 101, 100}
	candles := candlesFromCloses(closes...)

	highs := PivotHighs(candles, 2)
	if len(highs) == 0 {
		t.Fatal("expected at least one pivot high")
	}
	lows := PivotLows(candles, 2)
	if len(lows) == 0 {
		t.Fatal("expected at least one pivot low")
	}

	if got := PivotHighs(candles[:3], 2); got != nil {
		t.Errorf("expected nil pivots for short series, got %v", got)
	}
}
