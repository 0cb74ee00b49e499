package risk

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestProtection(balance float64) *Protection {
	return NewProtection(DefaultProtectionConfig(), balance, zerolog.Nop())
}

func TestConsecutiveLossesPauseTrading(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	for i := 0; i < 3; i++ {
		p.RecordTradeResult(-10, now)
	}

	assessment := p.EvaluateTradeRisk(now)
	if assessment.Allowed {
		t.Fatal("expected trading blocked after 3 consecutive losses")
	}
	if assessment.Action != ActionPauseTrading {
		t.Errorf("expected pause action, got %s", assessment.Action)
	}
	if !containsSubstring(assessment.Reasons, "consecutive losses") {
		t.Errorf("expected a consecutive losses reason, got %v", assessment.Reasons)
	}
	if assessment.Level != LevelCritical {
		t.Errorf("expected CRITICAL at the loss streak limit, got %s", assessment.Level)
	}

	// 3 losses pause for 3 * 2h; after the timer the pause lifts on its own
	later := p.EvaluateTradeRisk(now.Add(7 * time.Hour))
	if !later.Allowed {
		t.Fatalf("expected auto-resume after the pause window, got %v", later.Reasons)
	}

	status := p.Status()
	if status.TradingPaused {
		t.Error("pause flag should clear after auto-resume")
	}
}

func TestConsecutiveLossPauseIsCapped(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	// A 7-loss streak would pause 14h uncapped; the cap is 12h
	for i := 0; i < 7; i++ {
		p.RecordTradeResult(-10, now)
	}

	status := p.Status()
	if !status.TradingPaused {
		t.Fatal("expected trading paused")
	}
	want := now.Add(12 * time.Hour)
	if !status.PauseUntil.Equal(want) {
		t.Errorf("expected pause until %v, got %v", want, status.PauseUntil)
	}
}

func TestDailyLossCapPausesWithoutEmergency(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	// 12% daily loss trips the 10% cap, but the 12% drawdown stays under
	// the 20% emergency threshold. Two trades keeps the loss streak at 2.
	p.RecordTradeResult(-60, now)
	p.RecordTradeResult(-60, now)

	status := p.Status()
	if !status.TradingPaused {
		t.Fatal("expected trading paused at the daily loss cap")
	}
	if status.EmergencyStop {
		t.Error("daily loss cap must not trip the emergency stop")
	}
	if !strings.Contains(status.PauseReason, "daily loss") {
		t.Errorf("expected a daily loss pause reason, got %q", status.PauseReason)
	}

	// Still blocked inside the 24h window
	assessment := p.EvaluateTradeRisk(now.Add(time.Hour))
	if assessment.Allowed {
		t.Error("expected trading blocked inside the pause window")
	}

	// Auto-resumes after the window
	assessment = p.EvaluateTradeRisk(now.Add(25 * time.Hour))
	if !assessment.Allowed {
		t.Errorf("expected auto-resume after 24h, got %v", assessment.Reasons)
	}
}

func TestEmergencyStopRequiresManualReset(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	// 25% drawdown from peak trips the emergency stop
	p.RecordTradeResult(-250, now)

	status := p.Status()
	if !status.EmergencyStop {
		t.Fatal("expected emergency stop at 25% drawdown")
	}
	if status.Level != LevelEmergency {
		t.Errorf("expected EMERGENCY level, got %s", status.Level)
	}

	// No amount of elapsed time lifts it
	assessment := p.EvaluateTradeRisk(now.Add(100 * time.Hour))
	if assessment.Allowed {
		t.Fatal("emergency stop must not auto-resume")
	}
	if assessment.Action != ActionEmergencyStop {
		t.Errorf("expected emergency action, got %s", assessment.Action)
	}
	if !containsSubstring(assessment.Reasons, "manual reset") {
		t.Errorf("expected a manual reset reason, got %v", assessment.Reasons)
	}

	// ResumeTrading is not enough
	p.ResumeTrading()
	if assessment := p.EvaluateTradeRisk(now.Add(100 * time.Hour)); assessment.Allowed {
		t.Fatal("ResumeTrading must not clear an emergency stop")
	}

	// Only the explicit reset clears it
	p.ResetEmergencyStop()
	assessment = p.EvaluateTradeRisk(now.Add(100 * time.Hour))
	if !assessment.Allowed {
		t.Errorf("expected trading allowed after manual reset, got %v", assessment.Reasons)
	}
	if p.Status().ConsecutiveLosses != 0 {
		t.Error("manual reset should clear the loss streak")
	}
}

func TestPositionAdjustmentFactors(t *testing.T) {
	now := time.Now()

	// Two losses: WARNING halves the size, the streak scales by 0.7
	p := newTestProtection(1000)
	p.RecordTradeResult(-10, now)
	p.RecordTradeResult(-10, now)

	assessment := p.EvaluateTradeRisk(now)
	if !assessment.Allowed {
		t.Fatalf("expected trading allowed, got %v", assessment.Reasons)
	}
	if assessment.Action != ActionReduceSize {
		t.Errorf("expected reduce_size, got %s", assessment.Action)
	}
	if math.Abs(assessment.PositionAdjustment-0.35) > 1e-9 {
		t.Errorf("expected adjustment 0.35, got %.4f", assessment.PositionAdjustment)
	}

	// Drawdown past 10% of peak scales by 0.6 on top of the level factor
	p = newTestProtection(1000)
	p.RecordTradeResult(100, now)  // peak 1100
	p.RecordTradeResult(-160, now) // drawdown 14.5%

	assessment = p.EvaluateTradeRisk(now)
	if !assessment.Allowed {
		t.Fatalf("expected trading allowed, got %v", assessment.Reasons)
	}
	if math.Abs(assessment.PositionAdjustment-0.30) > 1e-9 {
		t.Errorf("expected adjustment 0.30, got %.4f", assessment.PositionAdjustment)
	}
}

func TestDailyTradeLimitBlocks(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	for i := 0; i < 15; i++ {
		p.RecordTradeResult(1, now)
	}

	assessment := p.EvaluateTradeRisk(now)
	if assessment.Allowed {
		t.Fatal("expected trading blocked at the daily trade limit")
	}
	if !containsSubstring(assessment.Reasons, "daily trade limit") {
		t.Errorf("expected a daily trade limit reason, got %v", assessment.Reasons)
	}
}

func TestOnPauseCallback(t *testing.T) {
	p := newTestProtection(1000)
	now := time.Now()

	called := make(chan string, 1)
	p.OnPause(func(reason string, until time.Time) {
		called <- reason
	})

	for i := 0; i < 3; i++ {
		p.RecordTradeResult(-10, now)
	}

	select {
	case reason := <-called:
		if !strings.Contains(reason, "consecutive losses") {
			t.Errorf("unexpected pause reason %q", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("pause callback not fired")
	}
}
