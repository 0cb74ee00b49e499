package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTrailing(cfg TrailingConfig) *TrailingManager {
	return NewTrailingManager(cfg, zerolog.Nop())
}

func TestTrailingActivationThreshold(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	now := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 1, 0, now)

	// Below 1.5% ROI nothing happens
	update, err := tm.UpdatePrice("t1", 101, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.State != StateEntry || update.NewStop != 0 {
		t.Errorf("expected ENTRY with no stop below activation, got state=%s stop=%.2f",
			update.State, update.NewStop)
	}

	// At 1.5% ROI trailing activates and the first stop is set
	update, err = tm.UpdatePrice("t1", 101.5, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.State != StateTrailingActive {
		t.Errorf("expected TRAILING_ACTIVE at activation ROI, got %s", update.State)
	}
	want := 101.5 * 0.98
	if math.Abs(update.NewStop-want) > 1e-9 {
		t.Errorf("expected stop %.4f, got %.4f", want, update.NewStop)
	}
}

func TestTrailingStopRatchetsLong(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	now := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 1, 0, now)

	prices := []float64{101.5, 103, 102.5, 104, 103.2, 104.5}
	prevStop := 0.0
	for _, price := range prices {
		update, err := tm.UpdatePrice("t1", price, now)
		if err != nil {
			t.Fatalf("unexpected error at price %.2f: %v", price, err)
		}
		if update.NewStop < prevStop {
			t.Fatalf("long stop moved down: %.4f -> %.4f at price %.2f",
				prevStop, update.NewStop, price)
		}
		prevStop = update.NewStop
	}

	// A pullback that does not hit the stop leaves it untouched
	update, err := tm.UpdatePrice("t1", 103, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.NewStop != prevStop {
		t.Errorf("pullback changed the stop: %.4f -> %.4f", prevStop, update.NewStop)
	}
}

func TestTrailingStopRatchetsShort(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	now := time.Now()
	tm.Track("s1", "ETH-USDT", "short", 100, 1, 0, now)

	update, err := tm.UpdatePrice("s1", 98.5, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 98.5 * 1.02
	if math.Abs(update.NewStop-want) > 1e-9 {
		t.Errorf("expected stop %.4f, got %.4f", want, update.NewStop)
	}
	prevStop := update.NewStop

	for _, price := range []float64{97, 97.5, 96, 96.8} {
		update, err = tm.UpdatePrice("s1", price, now)
		if err != nil {
			t.Fatalf("unexpected error at price %.2f: %v", price, err)
		}
		if update.NewStop > prevStop {
			t.Fatalf("short stop moved up: %.4f -> %.4f at price %.2f",
				prevStop, update.NewStop, price)
		}
		prevStop = update.NewStop
	}
}

func TestTrailingStateTransitions(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	now := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 1, 0, now)

	// Stop at 103*0.98=100.94 clears the 0.5% breakeven buffer
	update, _ := tm.UpdatePrice("t1", 103, now)
	if update.State != StateBreakeven {
		t.Errorf("expected BREAKEVEN at stop %.4f, got %s", update.NewStop, update.State)
	}

	// Stop at 106*0.98=103.88 clears the 3% profit zone level
	update, _ = tm.UpdatePrice("t1", 106, now)
	if update.State != StateProfitZone {
		t.Errorf("expected PROFIT_ZONE at stop %.4f, got %s", update.NewStop, update.State)
	}
}

func TestTrailingStopHitClosesPosition(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	entryTime := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 2, 0, entryTime)

	tm.UpdatePrice("t1", 106, entryTime) // stop ratchets to 103.88

	closeTime := entryTime.Add(time.Minute)
	update, err := tm.UpdatePrice("t1", 103, closeTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.State != StateClosed || update.Closed == nil {
		t.Fatalf("expected the position to close, got state=%s", update.State)
	}

	record := update.Closed
	if record.TradeID != "t1" || record.Symbol != "BTC-USDT" {
		t.Errorf("close record identity mismatch: %+v", record)
	}
	if record.TriggerPrice != 103 {
		t.Errorf("expected trigger price 103, got %.2f", record.TriggerPrice)
	}
	if math.Abs(record.FinalPnL-6) > 1e-9 { // (103-100) * 2
		t.Errorf("expected final pnl 6, got %.4f", record.FinalPnL)
	}
	if math.Abs(record.FinalROI-3) > 1e-9 {
		t.Errorf("expected final roi 3%%, got %.4f", record.FinalROI)
	}
	if !record.ClosedAt.Equal(closeTime) {
		t.Errorf("expected close time %v, got %v", closeTime, record.ClosedAt)
	}

	// The position is gone from the open set and in the closed set
	if _, err := tm.Position("t1"); !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("expected ErrUnknownPosition after close, got %v", err)
	}
	closed := tm.ClosedPositions()
	if len(closed) != 1 || closed[0].TradeID != "t1" {
		t.Errorf("expected one close record for t1, got %+v", closed)
	}
}

func TestTrailingATRMode(t *testing.T) {
	cfg := DefaultTrailingConfig()
	cfg.Mode = TrailATRBased
	tm := newTestTrailing(cfg)
	now := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 1, 1.0, now)

	// distance = 2.0 * ATR = 2
	update, err := tm.UpdatePrice("t1", 101.5, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(update.NewStop-99.5) > 1e-9 {
		t.Errorf("expected ATR stop 99.5, got %.4f", update.NewStop)
	}
}

func TestTrailingVolatilityAdaptiveTightensInProfit(t *testing.T) {
	cfg := DefaultTrailingConfig()
	cfg.Mode = TrailVolatilityAdaptive
	tm := newTestTrailing(cfg)
	now := time.Now()
	tm.Track("t1", "BTC-USDT", "long", 100, 1, 0, now)

	// ROI 6% > 5% tightens the trail by 0.8 right after entry:
	// distance = 106 * 2% * 0.8 = 1.696
	update, err := tm.UpdatePrice("t1", 106, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 106 - 106*0.02*0.8
	if math.Abs(update.NewStop-want) > 1e-6 {
		t.Errorf("expected tightened stop %.4f, got %.4f", want, update.NewStop)
	}
}

func TestUpdatePriceUnknownPosition(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())

	_, err := tm.UpdatePrice("missing", 100, time.Now())
	if !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("expected ErrUnknownPosition, got %v", err)
	}
}

func TestUpdateSymbolTouchesOnlyMatchingPositions(t *testing.T) {
	tm := newTestTrailing(DefaultTrailingConfig())
	now := time.Now()
	tm.Track("b1", "BTC-USDT", "long", 100, 1, 0, now)
	tm.Track("e1", "ETH-USDT", "long", 10, 1, 0, now)

	updates := tm.UpdateSymbol("BTC-USDT", 103, now)
	if len(updates) != 1 || updates[0].TradeID != "b1" {
		t.Fatalf("expected one update for b1, got %+v", updates)
	}

	eth, err := tm.Position("e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eth.TrailingStop != 0 || eth.State != StateEntry {
		t.Errorf("ETH position should be untouched, got %+v", eth)
	}
}
