package confluence

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"okx-trading-bot/internal/market"
)

func testScorer(t *testing.T, cfg Config) *Scorer {
	t.Helper()
	s, err := NewScorer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func seriesCandles(closes []float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:     c * 0.999,
			High:     c * 1.002,
			Low:      c * 0.997,
			Close:    c,
			Volume:   100,
		}
	}
	return candles
}

func TestParamsForMode(t *testing.T) {
	cases := []struct {
		mode     Mode
		minScore float64
		minRR    float64
	}{
		{ModePrecision, 0.8, 2.0},
		{ModeAggressive, 0.6, 1.5},
		{ModeConservative, 0.9, 2.5},
		{Mode("unknown"), 0.8, 2.0},
	}

	for _, tc := range cases {
		params := ParamsForMode(tc.mode)
		if params.MinScore != tc.minScore {
			t.Errorf("%s: expected min score %.2f, got %.2f", tc.mode, tc.minScore, params.MinScore)
		}
		if params.MinRiskReward != tc.minRR {
			t.Errorf("%s: expected min RR %.2f, got %.2f", tc.mode, tc.minRR, params.MinRiskReward)
		}
	}
}

func TestSetWeightsValidation(t *testing.T) {
	s := testScorer(t, Config{Mode: ModePrecision})

	if err := s.SetWeights(map[string]float64{"rsi_ema": 1.0}); err == nil {
		t.Error("expected error for missing component weights")
	}

	bad := PrimaryWeights()
	bad["macd"] = 0.5
	if err := s.SetWeights(bad); err == nil {
		t.Error("expected error for weights not summing to 1")
	}

	if err := s.SetWeights(PrimaryWeights()); err != nil {
		t.Errorf("default weights should validate: %v", err)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	for name, weights := range map[string]map[string]float64{
		"primary":   PrimaryWeights(),
		"alternate": AlternateWeights(),
	} {
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("%s weights sum to %.4f", name, sum)
		}
	}
}

func TestEvaluateStrengthBounds(t *testing.T) {
	// Component scores live in [0,1] and weights sum to 1, so the
	// aggregate must stay inside [0,1] for any input series.
	shapes := [][]float64{
		trendingCloses(120, 1),
		trendingCloses(120, -1),
		flatSeries(120),
		sawtooth(120),
	}

	for _, scheme := range []WeightScheme{SchemePrimary, SchemeAlternate} {
		s := testScorer(t, Config{Mode: ModePrecision, Scheme: scheme})
		for i, closes := range shapes {
			result := s.Evaluate("BTC-USDT", seriesCandles(closes), time.Now())
			if result.Strength < 0 || result.Strength > 1 {
				t.Errorf("%s shape %d: strength %.4f outside [0,1]", scheme, i, result.Strength)
			}
			if result.Confidence < 0 || result.Confidence > 1 {
				t.Errorf("%s shape %d: confidence %.4f outside [0,1]", scheme, i, result.Confidence)
			}
		}
	}
}

func TestEvaluateEmptySeriesHolds(t *testing.T) {
	s := testScorer(t, Config{Mode: ModePrecision})

	result := s.Evaluate("BTC-USDT", nil, time.Now())
	if result.Signal != SignalHold {
		t.Errorf("expected hold on empty series, got %s", result.Signal)
	}
	if len(result.Reasons) == 0 {
		t.Error("expected a reason on the hold result")
	}
}

func TestEvaluateFlatSeriesHoldsWithReasons(t *testing.T) {
	s := testScorer(t, Config{Mode: ModePrecision})

	result := s.Evaluate("BTC-USDT", seriesCandles(flatSeries(120)), time.Now())
	if result.Signal != SignalHold {
		t.Fatalf("expected hold on flat series, got %s", result.Signal)
	}

	foundConsensus := false
	for _, reason := range result.Reasons {
		if strings.Contains(reason, "consensus") {
			foundConsensus = true
		}
	}
	if !foundConsensus {
		t.Errorf("expected a directional consensus reason, got %v", result.Reasons)
	}

	if len(result.Components) != 6 {
		t.Errorf("expected 6 component results, got %d", len(result.Components))
	}
}

func TestCooldownGate(t *testing.T) {
	s := testScorer(t, Config{Mode: ModePrecision, Cooldown: 15 * time.Minute})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, active := s.inCooldown("BTC-USDT", now); active {
		t.Fatal("no signal yet, cooldown must be inactive")
	}

	s.markSignal("BTC-USDT", now)

	remaining, active := s.inCooldown("BTC-USDT", now.Add(5*time.Minute))
	if !active {
		t.Fatal("expected cooldown active 5 minutes after a signal")
	}
	if remaining != 10*time.Minute {
		t.Errorf("expected 10m remaining, got %s", remaining)
	}

	if _, active := s.inCooldown("BTC-USDT", now.Add(15*time.Minute)); active {
		t.Error("cooldown must expire after the configured gap")
	}

	// Cooldowns are per symbol
	if _, active := s.inCooldown("ETH-USDT", now.Add(time.Minute)); active {
		t.Error("cooldown must not leak across symbols")
	}
}

func TestQualityTiers(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "VERY_STRONG"},
		{0.9, "VERY_STRONG"},
		{0.85, "STRONG"},
		{0.75, "MODERATE"},
		{0.5, "WEAK"},
	}

	for _, tc := range cases {
		if got := qualityTier(tc.score); got != tc.want {
			t.Errorf("qualityTier(%.2f): expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestRiskRewardFromStopTarget(t *testing.T) {
	s := testScorer(t, Config{Mode: ModeAggressive, StopPercent: 2, TargetPercent: 4})

	// A strong uptrend gives a bullish consensus in aggressive mode
	// often enough to exercise the price levels; even when held, the
	// entry must match the last close.
	candles := seriesCandles(trendingCloses(120, 1))
	result := s.Evaluate("BTC-USDT", candles, time.Now())

	lastClose := candles[len(candles)-1].Close
	if result.Entry != lastClose {
		t.Errorf("entry %.4f should equal last close %.4f", result.Entry, lastClose)
	}
	if result.StopLoss != 0 && result.RiskReward < 1.99 {
		t.Errorf("2%%/4%% stop/target implies RR 2.0, got %.2f", result.RiskReward)
	}
}

func trendingCloses(n int, direction float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + direction*float64(i)*0.5
	}
	return closes
}

func flatSeries(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
	}
	return closes
}

func sawtooth(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	return closes
}
