package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration. Values come from
// config.json when present, then environment overrides.
type Config struct {
	Trading    TradingConfig    `json:"trading"`
	Risk       RiskConfig       `json:"risk"`
	Trailing   TrailingConfig   `json:"trailing"`
	Protection ProtectionConfig `json:"protection"`
	Exchange   ExchangeConfig   `json:"exchange"`
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Vault      VaultConfig      `json:"vault"`
	Auth       AuthConfig       `json:"auth"`
	Logging    LoggingConfig    `json:"logging"`
}

// TradingConfig drives the trading engine
type TradingConfig struct {
	Symbols         []string      `json:"symbols"`
	Interval        string        `json:"interval"`
	Mode            string        `json:"mode"`          // precision, aggressive, conservative
	WeightScheme    string        `json:"weight_scheme"` // primary, alternate
	RiskPercent     float64       `json:"risk_percent"`
	StopPercent     float64       `json:"stop_percent"`
	TargetPercent   float64       `json:"target_percent"`
	PollInterval    time.Duration `json:"poll_interval"`
	SignalCooldown  time.Duration `json:"signal_cooldown"`
	CandleLimit     int           `json:"candle_limit"`
	QuoteCurrency   string        `json:"quote_currency"`
	ExecuteOrders   bool          `json:"execute_orders"` // false = signal-only mode
	InitialBalance  float64       `json:"initial_balance"`
}

// RiskConfig holds position sizing and validation limits
type RiskConfig struct {
	MaxRiskPerTrade     float64 `json:"max_risk_per_trade"`
	MaxPositionValuePct float64 `json:"max_position_value_pct"`
	MaxTradesPerDay     int     `json:"max_trades_per_day"`
	MaxSymbolNotional   float64 `json:"max_symbol_notional"`
	MaxTradesPerHour    int     `json:"max_trades_per_hour"`
	WarnTradesPerHour   int     `json:"warn_trades_per_hour"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`
	MinNotional         float64 `json:"min_notional"`
}

// TrailingConfig holds trailing stop parameters
type TrailingConfig struct {
	Mode               string  `json:"mode"` // fixed_percent, atr_based, volatility_adaptive
	ActivationPercent  float64 `json:"activation_percent"`
	BreakevenBufferPct float64 `json:"breakeven_buffer_pct"`
	TrailPercent       float64 `json:"trail_percent"`
	ATRMultiplier      float64 `json:"atr_multiplier"`
}

// ProtectionConfig holds the account circuit breaker thresholds
type ProtectionConfig struct {
	DailyLossCap         float64       `json:"daily_loss_cap"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	MaxDailyTrades       int           `json:"max_daily_trades"`
	EmergencyDrawdown    float64       `json:"emergency_drawdown"`
	DailyLossPause       time.Duration `json:"daily_loss_pause"`
	ConsecutiveLossPause time.Duration `json:"consecutive_loss_pause"`
	MaxConsecutivePause  time.Duration `json:"max_consecutive_pause"`
	VolatilitySpikePause time.Duration `json:"volatility_spike_pause"`
}

// ExchangeConfig holds the OKX connection settings
type ExchangeConfig struct {
	BaseURL    string `json:"base_url"`
	WSURL      string `json:"ws_url"`
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
	DemoMode   bool   `json:"demo_mode"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	Enabled  bool   `json:"enabled"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// VaultConfig holds Vault connection settings
type VaultConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Mount   string `json:"mount"`
}

// AuthConfig holds dashboard authentication settings
type AuthConfig struct {
	Enabled        bool          `json:"enabled"`
	JWTSecret      string        `json:"jwt_secret"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	AdminUser      string        `json:"admin_user"`
	AdminPassHash  string        `json:"admin_pass_hash"` // bcrypt hash
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
}

// Load builds the configuration from defaults, an optional config.json
// and environment overrides, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if err := loadFromFile(cfg, "config.json"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbols:        []string{"BTC-USDT", "ETH-USDT"},
			Interval:       "15m",
			Mode:           "precision",
			WeightScheme:   "primary",
			RiskPercent:    2.0,
			StopPercent:    2.0,
			TargetPercent:  4.0,
			PollInterval:   30 * time.Second,
			SignalCooldown: 15 * time.Minute,
			CandleLimit:    100,
			QuoteCurrency:  "USDT",
			InitialBalance: 10000,
		},
		Risk: RiskConfig{
			MaxRiskPerTrade:     2.0,
			MaxPositionValuePct: 0.80,
			MaxTradesPerDay:     10,
			MaxSymbolNotional:   5000,
			MaxTradesPerHour:    5,
			WarnTradesPerHour:   3,
			MaxDailyLossPct:     0.05,
			MinNotional:         10,
		},
		Trailing: TrailingConfig{
			Mode:               "fixed_percent",
			ActivationPercent:  1.5,
			BreakevenBufferPct: 0.5,
			TrailPercent:       2.0,
			ATRMultiplier:      2.0,
		},
		Protection: ProtectionConfig{
			DailyLossCap:         0.10,
			MaxConsecutiveLosses: 3,
			MaxDailyTrades:       15,
			EmergencyDrawdown:    0.20,
			DailyLossPause:       24 * time.Hour,
			ConsecutiveLossPause: 2 * time.Hour,
			MaxConsecutivePause:  12 * time.Hour,
			VolatilitySpikePause: time.Hour,
		},
		Exchange: ExchangeConfig{
			BaseURL: "https://www.okx.com",
			WSURL:   "wss://ws.okx.com:8443/ws/v5/public",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "trading_bot",
			Password: "trading_bot_password",
			Database: "trading_bot",
			SSLMode:  "disable",
			Enabled:  true,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Enabled: true,
		},
		Vault: VaultConfig{
			Mount: "secret",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 15 * time.Minute,
			AdminUser:      "admin",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Trading
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = strings.Split(v, ",")
	}
	cfg.Trading.Interval = getEnvOrDefault("TRADING_INTERVAL", cfg.Trading.Interval)
	cfg.Trading.Mode = getEnvOrDefault("TRADING_MODE", cfg.Trading.Mode)
	cfg.Trading.WeightScheme = getEnvOrDefault("TRADING_WEIGHT_SCHEME", cfg.Trading.WeightScheme)
	cfg.Trading.RiskPercent = getEnvFloatOrDefault("TRADING_RISK_PERCENT", cfg.Trading.RiskPercent)
	cfg.Trading.StopPercent = getEnvFloatOrDefault("TRADING_STOP_PERCENT", cfg.Trading.StopPercent)
	cfg.Trading.TargetPercent = getEnvFloatOrDefault("TRADING_TARGET_PERCENT", cfg.Trading.TargetPercent)
	cfg.Trading.PollInterval = getEnvDurationOrDefault("TRADING_POLL_INTERVAL", cfg.Trading.PollInterval)
	cfg.Trading.SignalCooldown = getEnvDurationOrDefault("TRADING_SIGNAL_COOLDOWN", cfg.Trading.SignalCooldown)
	cfg.Trading.ExecuteOrders = getEnvBoolOrDefault("TRADING_EXECUTE_ORDERS", cfg.Trading.ExecuteOrders)
	cfg.Trading.InitialBalance = getEnvFloatOrDefault("TRADING_INITIAL_BALANCE", cfg.Trading.InitialBalance)

	// Risk
	cfg.Risk.MaxRiskPerTrade = getEnvFloatOrDefault("RISK_MAX_PER_TRADE", cfg.Risk.MaxRiskPerTrade)
	cfg.Risk.MaxPositionValuePct = getEnvFloatOrDefault("RISK_MAX_POSITION_VALUE_PCT", cfg.Risk.MaxPositionValuePct)
	cfg.Risk.MaxTradesPerDay = getEnvIntOrDefault("RISK_MAX_TRADES_PER_DAY", cfg.Risk.MaxTradesPerDay)
	cfg.Risk.MaxSymbolNotional = getEnvFloatOrDefault("RISK_MAX_SYMBOL_NOTIONAL", cfg.Risk.MaxSymbolNotional)
	cfg.Risk.MaxTradesPerHour = getEnvIntOrDefault("RISK_MAX_TRADES_PER_HOUR", cfg.Risk.MaxTradesPerHour)
	cfg.Risk.WarnTradesPerHour = getEnvIntOrDefault("RISK_WARN_TRADES_PER_HOUR", cfg.Risk.WarnTradesPerHour)
	cfg.Risk.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS_PCT", cfg.Risk.MaxDailyLossPct)
	cfg.Risk.MinNotional = getEnvFloatOrDefault("RISK_MIN_NOTIONAL", cfg.Risk.MinNotional)

	// Trailing
	cfg.Trailing.Mode = getEnvOrDefault("TRAILING_MODE", cfg.Trailing.Mode)
	cfg.Trailing.ActivationPercent = getEnvFloatOrDefault("TRAILING_ACTIVATION_PERCENT", cfg.Trailing.ActivationPercent)
	cfg.Trailing.BreakevenBufferPct = getEnvFloatOrDefault("TRAILING_BREAKEVEN_BUFFER_PCT", cfg.Trailing.BreakevenBufferPct)
	cfg.Trailing.TrailPercent = getEnvFloatOrDefault("TRAILING_TRAIL_PERCENT", cfg.Trailing.TrailPercent)
	cfg.Trailing.ATRMultiplier = getEnvFloatOrDefault("TRAILING_ATR_MULTIPLIER", cfg.Trailing.ATRMultiplier)

	// Protection
	cfg.Protection.DailyLossCap = getEnvFloatOrDefault("PROTECTION_DAILY_LOSS_CAP", cfg.Protection.DailyLossCap)
	cfg.Protection.MaxConsecutiveLosses = getEnvIntOrDefault("PROTECTION_MAX_CONSECUTIVE_LOSSES", cfg.Protection.MaxConsecutiveLosses)
	cfg.Protection.MaxDailyTrades = getEnvIntOrDefault("PROTECTION_MAX_DAILY_TRADES", cfg.Protection.MaxDailyTrades)
	cfg.Protection.EmergencyDrawdown = getEnvFloatOrDefault("PROTECTION_EMERGENCY_DRAWDOWN", cfg.Protection.EmergencyDrawdown)
	cfg.Protection.DailyLossPause = getEnvDurationOrDefault("PROTECTION_DAILY_LOSS_PAUSE", cfg.Protection.DailyLossPause)
	cfg.Protection.ConsecutiveLossPause = getEnvDurationOrDefault("PROTECTION_CONSECUTIVE_LOSS_PAUSE", cfg.Protection.ConsecutiveLossPause)
	cfg.Protection.MaxConsecutivePause = getEnvDurationOrDefault("PROTECTION_MAX_CONSECUTIVE_PAUSE", cfg.Protection.MaxConsecutivePause)
	cfg.Protection.VolatilitySpikePause = getEnvDurationOrDefault("PROTECTION_VOLATILITY_SPIKE_PAUSE", cfg.Protection.VolatilitySpikePause)

	// Exchange
	cfg.Exchange.BaseURL = getEnvOrDefault("OKX_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.WSURL = getEnvOrDefault("OKX_WS_URL", cfg.Exchange.WSURL)
	cfg.Exchange.APIKey = getEnvOrDefault("OKX_API_KEY", cfg.Exchange.APIKey)
	cfg.Exchange.SecretKey = getEnvOrDefault("OKX_SECRET_KEY", cfg.Exchange.SecretKey)
	cfg.Exchange.Passphrase = getEnvOrDefault("OKX_PASSPHRASE", cfg.Exchange.Passphrase)
	cfg.Exchange.DemoMode = getEnvBoolOrDefault("OKX_DEMO_MODE", cfg.Exchange.DemoMode)

	// Server
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.Server.ProductionMode)

	// Database
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.Database.Enabled)

	// Redis
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)

	// Vault
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.Mount = getEnvOrDefault("VAULT_MOUNT", cfg.Vault.Mount)

	// Auth
	cfg.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenTTL = getEnvDurationOrDefault("AUTH_TOKEN_TTL", cfg.Auth.AccessTokenTTL)
	cfg.Auth.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", cfg.Auth.AdminUser)
	cfg.Auth.AdminPassHash = getEnvOrDefault("AUTH_ADMIN_PASS_HASH", cfg.Auth.AdminPassHash)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
}

func (c *Config) validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("no trading symbols configured")
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 10 {
		return fmt.Errorf("risk percent %.2f outside (0, 10]", c.Trading.RiskPercent)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but AUTH_JWT_SECRET is empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
