package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"okx-trading-bot/internal/cache"
	"okx-trading-bot/internal/confluence"
	"okx-trading-bot/internal/indicators"
	"okx-trading-bot/internal/market"
	"okx-trading-bot/internal/okx"
	"okx-trading-bot/internal/risk"
	"okx-trading-bot/internal/store"
)

// StrategyConfig parameterizes the trading loop for one symbol. The
// variation between symbols is entirely data, not behavior.
type StrategyConfig struct {
	Symbol        string
	Interval      string
	Mode          confluence.Mode
	Scheme        confluence.WeightScheme
	RiskPercent   float64
	StopPercent   float64
	TargetPercent float64
	PollInterval  time.Duration
	Cooldown      time.Duration
	CandleLimit   int
}

// Deps are the capabilities injected into the engine
type Deps struct {
	Data          market.DataSource
	Account       market.AccountSource
	Executor      market.OrderExecutor
	RiskManager   *risk.Manager
	Trailing      *risk.TrailingManager
	Protection    *risk.Protection
	Repo          *store.Repository // nil disables persistence
	Snapshots     *cache.Snapshots  // nil disables caching
	Logger        zerolog.Logger
	QuoteCurrency string
	ExecuteOrders bool
}

// Engine drives the per-symbol polling loops and the tick-driven
// trailing stop updates.
type Engine struct {
	deps    Deps
	logger  zerolog.Logger
	scorers map[string]*confluence.Scorer
	configs map[string]StrategyConfig

	mu          sync.RWMutex
	lastResults map[string]*confluence.Result

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine builds the engine and one scorer per strategy
func NewEngine(deps Deps, strategies []StrategyConfig) (*Engine, error) {
	if deps.Data == nil || deps.RiskManager == nil || deps.Trailing == nil || deps.Protection == nil {
		return nil, fmt.Errorf("missing required engine dependencies")
	}

	e := &Engine{
		deps:        deps,
		logger:      deps.Logger.With().Str("component", "engine").Logger(),
		scorers:     make(map[string]*confluence.Scorer, len(strategies)),
		configs:     make(map[string]StrategyConfig, len(strategies)),
		lastResults: make(map[string]*confluence.Result),
		stopChan:    make(chan struct{}),
	}

	for _, cfg := range strategies {
		if cfg.Symbol == "" {
			return nil, fmt.Errorf("strategy with empty symbol")
		}
		if cfg.PollInterval <= 0 {
			cfg.PollInterval = 30 * time.Second
		}
		if cfg.CandleLimit <= 0 {
			cfg.CandleLimit = 100
		}

		scorer, err := confluence.NewScorer(confluence.Config{
			Mode:          cfg.Mode,
			Scheme:        cfg.Scheme,
			Cooldown:      cfg.Cooldown,
			StopPercent:   cfg.StopPercent,
			TargetPercent: cfg.TargetPercent,
		}, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("scorer for %s: %w", cfg.Symbol, err)
		}

		e.scorers[cfg.Symbol] = scorer
		e.configs[cfg.Symbol] = cfg
	}

	return e, nil
}

// Start launches one polling goroutine per strategy plus the tick
// consumer when a feed is provided.
func (e *Engine) Start(ctx context.Context, ticks <-chan okx.Tick) {
	for symbol := range e.configs {
		cfg := e.configs[symbol]
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runSymbol(ctx, cfg)
		}()
	}

	if ticks != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runTicks(ctx, ticks)
		}()
	}

	e.logger.Info().Int("strategies", len(e.configs)).Msg("trading engine started")
}

// Stop signals all loops to exit and waits for them
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
	e.logger.Info().Msg("trading engine stopped")
}

func (e *Engine) runSymbol(ctx context.Context, cfg StrategyConfig) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			if err := e.evaluateOnce(ctx, cfg); err != nil {
				e.logger.Error().Err(err).Str("symbol", cfg.Symbol).Msg("evaluation cycle failed")
			}
		}
	}
}

// evaluateOnce runs one full cycle: fetch, score, gate, size, execute
func (e *Engine) evaluateOnce(ctx context.Context, cfg StrategyConfig) error {
	candles, err := e.deps.Data.GetCandles(ctx, cfg.Symbol, cfg.Interval, cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("fetching candles: %w", err)
	}

	now := time.Now()
	result := e.scorers[cfg.Symbol].Evaluate(cfg.Symbol, candles, now)

	e.mu.Lock()
	e.lastResults[cfg.Symbol] = result
	e.mu.Unlock()

	e.persistSignal(ctx, result)

	if result.Signal == confluence.SignalHold {
		return nil
	}

	assessment := e.deps.Protection.EvaluateTradeRisk(now)
	if !assessment.Allowed {
		e.logger.Warn().
			Str("symbol", cfg.Symbol).
			Str("level", string(assessment.Level)).
			Strs("reasons", assessment.Reasons).
			Msg("trade blocked by risk protection")
		e.persistRiskEvent(ctx, assessment)
		return nil
	}

	balance := e.accountBalance(ctx)
	if balance <= 0 {
		return fmt.Errorf("no available balance")
	}

	size, err := e.deps.RiskManager.CalculatePositionSize(balance, cfg.RiskPercent, result.Entry, result.StopLoss)
	if err != nil {
		return fmt.Errorf("sizing position: %w", err)
	}
	size *= assessment.PositionAdjustment

	notional := size * result.Entry
	validation := e.deps.RiskManager.ValidateTrade(cfg.Symbol, notional, balance, now)
	for _, warning := range validation.Warnings {
		e.logger.Warn().Str("symbol", cfg.Symbol).Str("warning", warning).Msg("trade validation warning")
	}
	if !validation.Valid {
		e.logger.Warn().
			Str("symbol", cfg.Symbol).
			Strs("errors", validation.Errors).
			Msg("trade rejected by validation")
		return nil
	}

	return e.openPosition(ctx, cfg, result, candles, size, notional, now)
}

func (e *Engine) openPosition(ctx context.Context, cfg StrategyConfig, result *confluence.Result, candles []market.Candle, size, notional float64, now time.Time) error {
	side := "buy"
	positionSide := "long"
	if result.Signal == confluence.SignalSell {
		side = "sell"
		positionSide = "short"
	}

	fillPrice := result.Entry
	if e.deps.ExecuteOrders && e.deps.Executor != nil {
		order, err := e.deps.Executor.PlaceOrder(ctx, cfg.Symbol, side, "market", size, 0)
		if err != nil {
			return fmt.Errorf("placing order: %w", err)
		}
		if order.FilledPrice > 0 {
			fillPrice = order.FilledPrice
		}
	}

	tradeID := uuid.New().String()
	atr := indicators.CalculateATR(candles, 14)
	e.deps.Trailing.Track(tradeID, cfg.Symbol, positionSide, fillPrice, size, atr, now)
	e.deps.RiskManager.RecordTrade(cfg.Symbol, notional, now)

	e.logger.Info().
		Str("trade_id", tradeID).
		Str("symbol", cfg.Symbol).
		Str("side", positionSide).
		Float64("size", size).
		Float64("entry", fillPrice).
		Float64("stop", result.StopLoss).
		Msg("position opened")

	if e.deps.Repo != nil {
		if err := e.deps.Repo.SaveTrade(ctx, tradeID, cfg.Symbol, positionSide, fillPrice, size, result.StopLoss, result.TakeProfit, now); err != nil {
			e.logger.Error().Err(err).Str("trade_id", tradeID).Msg("persisting trade failed")
		}
	}

	return nil
}

func (e *Engine) runTicks(ctx context.Context, ticks <-chan okx.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			e.handleTick(ctx, tick)
		}
	}
}

func (e *Engine) handleTick(ctx context.Context, tick okx.Tick) {
	updates := e.deps.Trailing.UpdateSymbol(tick.Symbol, tick.Ticker.Last, tick.Time)
	for _, update := range updates {
		if update.Closed == nil {
			continue
		}
		e.handleClose(ctx, tick.Symbol, *update.Closed)
	}
}

func (e *Engine) handleClose(ctx context.Context, symbol string, record risk.CloseRecord) {
	notional := record.EntryPrice * record.Quantity
	e.deps.RiskManager.RecordClose(symbol, notional, record.FinalPnL, record.ClosedAt)
	e.deps.Protection.RecordTradeResult(record.FinalPnL, record.ClosedAt)

	e.logger.Info().
		Str("trade_id", record.TradeID).
		Str("symbol", symbol).
		Float64("pnl", record.FinalPnL).
		Float64("roi", record.FinalROI).
		Msg("position closed by trailing stop")

	if e.deps.Repo != nil {
		if err := e.deps.Repo.CloseTrade(ctx, record); err != nil {
			e.logger.Error().Err(err).Str("trade_id", record.TradeID).Msg("persisting close failed")
		}
	}

	e.cacheRiskStatus(ctx)
}

func (e *Engine) accountBalance(ctx context.Context) float64 {
	if e.deps.Account == nil {
		return 0
	}

	balance, err := e.deps.Account.GetBalance(ctx, e.deps.QuoteCurrency)
	if err != nil {
		e.logger.Error().Err(err).Msg("fetching balance failed")
		return 0
	}
	return balance.Available
}

func (e *Engine) persistSignal(ctx context.Context, result *confluence.Result) {
	if e.deps.Snapshots != nil {
		if err := e.deps.Snapshots.SetSignal(ctx, result); err != nil {
			e.logger.Debug().Err(err).Msg("caching signal failed")
		}
	}

	// Hold results with reasons are routine; persist only actionable signals
	if e.deps.Repo != nil && result.Signal != confluence.SignalHold {
		if err := e.deps.Repo.SaveSignal(ctx, result); err != nil {
			e.logger.Error().Err(err).Str("symbol", result.Symbol).Msg("persisting signal failed")
		}
	}
}

func (e *Engine) persistRiskEvent(ctx context.Context, assessment risk.RiskAssessment) {
	if e.deps.Repo == nil {
		return
	}

	status := e.deps.Protection.Status()
	reason := ""
	if len(assessment.Reasons) > 0 {
		reason = assessment.Reasons[0]
	}

	if err := e.deps.Repo.SaveRiskEvent(ctx, string(assessment.Level), string(assessment.Action), reason, status.DailyPnL, status.CurrentDrawdown); err != nil {
		e.logger.Error().Err(err).Msg("persisting risk event failed")
	}
}

func (e *Engine) cacheRiskStatus(ctx context.Context) {
	if e.deps.Snapshots == nil {
		return
	}
	if err := e.deps.Snapshots.SetRiskStatus(ctx, e.deps.Protection.Status()); err != nil {
		e.logger.Debug().Err(err).Msg("caching risk status failed")
	}
}

// LatestSignal returns the most recent evaluation for a symbol
func (e *Engine) LatestSignal(symbol string) *confluence.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResults[symbol]
}

// OpenPositions returns the currently trailed positions
func (e *Engine) OpenPositions() []risk.TrailedPosition {
	return e.deps.Trailing.OpenPositions()
}

// RiskStatus returns the current protection snapshot
func (e *Engine) RiskStatus() risk.ProtectionStatus {
	return e.deps.Protection.Status()
}

// PauseTrading pauses the protection layer for a duration
func (e *Engine) PauseTrading(reason string, duration time.Duration) {
	e.deps.Protection.PauseTrading(reason, duration, time.Now())
}

// ResumeTrading lifts a non-emergency pause
func (e *Engine) ResumeTrading() {
	e.deps.Protection.ResumeTrading()
}

// ResetEmergencyStop clears an emergency stop
func (e *Engine) ResetEmergencyStop() {
	e.deps.Protection.ResetEmergencyStop()
}

// Symbols returns the configured strategy symbols
func (e *Engine) Symbols() []string {
	symbols := make([]string, 0, len(e.configs))
	for s := range e.configs {
		symbols = append(symbols, s)
	}
	return symbols
}
