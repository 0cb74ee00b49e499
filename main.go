package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"okx-trading-bot/config"
	"okx-trading-bot/internal/api"
	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/bot"
	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/confluence"
	"okx-trading-bot/internal/logging"
	"okx-trading-bot/internal/okx"
	"okx-trading-bot/internal/risk"
	"okx-trading-bot/internal/store"
	"okx-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{})
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	logger.Info().Msg("structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Credentials: env-seeded, Vault-backed when enabled
	vaultClient, err := vault.NewClient(vault.Config{
		Enabled: cfg.Vault.Enabled,
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		Mount:   cfg.Vault.Mount,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vault client")
	}
	vaultClient.SeedFromEnv("default", cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Passphrase)

	creds := okx.Credentials{
		APIKey:     cfg.Exchange.APIKey,
		SecretKey:  cfg.Exchange.SecretKey,
		Passphrase: cfg.Exchange.Passphrase,
	}
	if stored, err := vaultClient.GetCredentials(ctx, "default"); err == nil {
		creds = okx.Credentials{
			APIKey:     stored.APIKey,
			SecretKey:  stored.SecretKey,
			Passphrase: stored.Passphrase,
		}
	}

	okxClient := okx.NewClient(cfg.Exchange.BaseURL, creds, cfg.Exchange.DemoMode, logger)

	// Persistence
	var repo *store.Repository
	if cfg.Database.Enabled {
		db, err := store.NewDB(ctx, store.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		repo = store.NewRepository(db)
		logger.Info().Msg("database initialized")
	}

	// Snapshot cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	snapshots := cache.NewSnapshots(redisClient, logger)
	snapshots.StartProbe(ctx)

	// Risk stack
	riskManager := risk.NewManager(risk.ManagerConfig{
		MaxRiskPerTrade:     cfg.Risk.MaxRiskPerTrade,
		MaxPositionValuePct: cfg.Risk.MaxPositionValuePct,
		MaxTradesPerDay:     cfg.Risk.MaxTradesPerDay,
		MaxSymbolNotional:   cfg.Risk.MaxSymbolNotional,
		MaxTradesPerHour:    cfg.Risk.MaxTradesPerHour,
		WarnTradesPerHour:   cfg.Risk.WarnTradesPerHour,
		MaxDailyLossPct:     cfg.Risk.MaxDailyLossPct,
		MinNotional:         cfg.Risk.MinNotional,
	}, logger)

	trailing := risk.NewTrailingManager(risk.TrailingConfig{
		Mode:               risk.TrailingMode(cfg.Trailing.Mode),
		ActivationPercent:  cfg.Trailing.ActivationPercent,
		BreakevenBufferPct: cfg.Trailing.BreakevenBufferPct,
		TrailPercent:       cfg.Trailing.TrailPercent,
		ATRMultiplier:      cfg.Trailing.ATRMultiplier,
	}, logger)

	protection := risk.NewProtection(risk.ProtectionConfig{
		DailyLossCap:         cfg.Protection.DailyLossCap,
		MaxConsecutiveLosses: cfg.Protection.MaxConsecutiveLosses,
		MaxDailyTrades:       cfg.Protection.MaxDailyTrades,
		EmergencyDrawdown:    cfg.Protection.EmergencyDrawdown,
		DailyLossPause:       cfg.Protection.DailyLossPause,
		ConsecutiveLossPause: cfg.Protection.ConsecutiveLossPause,
		MaxConsecutivePause:  cfg.Protection.MaxConsecutivePause,
		VolatilitySpikePause: cfg.Protection.VolatilitySpikePause,
	}, cfg.Trading.InitialBalance, logger)

	// One parameterized strategy per symbol
	strategies := make([]bot.StrategyConfig, 0, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		strategies = append(strategies, bot.StrategyConfig{
			Symbol:        symbol,
			Interval:      cfg.Trading.Interval,
			Mode:          confluence.Mode(cfg.Trading.Mode),
			Scheme:        confluence.WeightScheme(cfg.Trading.WeightScheme),
			RiskPercent:   cfg.Trading.RiskPercent,
			StopPercent:   cfg.Trading.StopPercent,
			TargetPercent: cfg.Trading.TargetPercent,
			PollInterval:  cfg.Trading.PollInterval,
			Cooldown:      cfg.Trading.SignalCooldown,
			CandleLimit:   cfg.Trading.CandleLimit,
		})
	}

	engine, err := bot.NewEngine(bot.Deps{
		Data:          okxClient,
		Account:       okxClient,
		Executor:      okxClient,
		RiskManager:   riskManager,
		Trailing:      trailing,
		Protection:    protection,
		Repo:          repo,
		Snapshots:     snapshots,
		Logger:        logger,
		QuoteCurrency: cfg.Trading.QuoteCurrency,
		ExecuteOrders: cfg.Trading.ExecuteOrders,
	}, strategies)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build trading engine")
	}

	// Live price feed for trailing stops
	feed := okx.NewFeed(cfg.Exchange.WSURL, cfg.Trading.Symbols, logger)
	go feed.Run(ctx)

	engine.Start(ctx, feed.Ticks())

	// Dashboard API
	var authService *auth.Service
	if cfg.Auth.Enabled {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		authService = auth.NewService(jwtManager, cfg.Auth.AdminUser, cfg.Auth.AdminPassHash)
		logger.Info().Msg("dashboard authentication enabled")
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ProductionMode: cfg.Server.ProductionMode,
	}, engine, repo, authService, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server exited")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}

	cancel()
	engine.Stop()
	logger.Info().Msg("shutdown complete")
}
