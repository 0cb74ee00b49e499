package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Trading.Mode != "precision" {
		t.Errorf("expected default mode precision, got %q", cfg.Trading.Mode)
	}
	if cfg.Trading.SignalCooldown != 15*time.Minute {
		t.Errorf("expected default cooldown 15m, got %v", cfg.Trading.SignalCooldown)
	}
	if cfg.Risk.MaxPositionValuePct != 0.80 {
		t.Errorf("expected default position value cap 0.80, got %v", cfg.Risk.MaxPositionValuePct)
	}
	if cfg.Protection.EmergencyDrawdown != 0.20 {
		t.Errorf("expected default emergency drawdown 0.20, got %v", cfg.Protection.EmergencyDrawdown)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADING_SYMBOLS", "SOL-USDT,DOGE-USDT")
	t.Setenv("TRADING_MODE", "aggressive")
	t.Setenv("TRADING_RISK_PERCENT", "1.5")
	t.Setenv("TRADING_POLL_INTERVAL", "45s")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("OKX_DEMO_MODE", "true")
	t.Setenv("RISK_MAX_TRADES_PER_DAY", "6")
	t.Setenv("TRAILING_ACTIVATION_PERCENT", "2.5")
	t.Setenv("PROTECTION_DAILY_LOSS_PAUSE", "12h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[0] != "SOL-USDT" {
		t.Errorf("unexpected symbols %v", cfg.Trading.Symbols)
	}
	if cfg.Trading.Mode != "aggressive" {
		t.Errorf("expected mode aggressive, got %q", cfg.Trading.Mode)
	}
	if cfg.Trading.RiskPercent != 1.5 {
		t.Errorf("expected risk percent 1.5, got %v", cfg.Trading.RiskPercent)
	}
	if cfg.Trading.PollInterval != 45*time.Second {
		t.Errorf("expected poll interval 45s, got %v", cfg.Trading.PollInterval)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Exchange.DemoMode {
		t.Error("expected demo mode enabled")
	}
	if cfg.Risk.MaxTradesPerDay != 6 {
		t.Errorf("expected max trades per day 6, got %d", cfg.Risk.MaxTradesPerDay)
	}
	if cfg.Trailing.ActivationPercent != 2.5 {
		t.Errorf("expected activation percent 2.5, got %v", cfg.Trailing.ActivationPercent)
	}
	if cfg.Protection.DailyLossPause != 12*time.Hour {
		t.Errorf("expected daily loss pause 12h, got %v", cfg.Protection.DailyLossPause)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("TRADING_RISK_PERCENT", "50")
	if _, err := Load(); err == nil {
		t.Error("expected rejection for risk percent above 10")
	}
}

func TestValidateRequiresJWTSecretWhenAuthEnabled(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected rejection when auth is enabled without a secret")
	}
}

func TestInvalidEnvValueFallsBackToDefault(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}
