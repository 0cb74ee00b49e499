package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"okx-trading-bot/internal/auth"
	"okx-trading-bot/internal/confluence"
	"okx-trading-bot/internal/risk"
	"okx-trading-bot/internal/store"
)

// BotAPI is the surface the trading engine exposes to the dashboard
type BotAPI interface {
	LatestSignal(symbol string) *confluence.Result
	OpenPositions() []risk.TrailedPosition
	RiskStatus() risk.ProtectionStatus
	PauseTrading(reason string, duration time.Duration)
	ResumeTrading()
	ResetEmergencyStop()
	Symbols() []string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
}

// Server is the dashboard HTTP API
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	botAPI      BotAPI
	repo        *store.Repository // nil when persistence is disabled
	authService *auth.Service     // nil when auth is disabled
	logger      zerolog.Logger
}

// NewServer creates the API server and registers routes
func NewServer(config ServerConfig, botAPI BotAPI, repo *store.Repository, authService *auth.Service, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      config,
		botAPI:      botAPI,
		repo:        repo,
		authService: authService,
		logger:      logger.With().Str("component", "api").Logger(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/auth/login", s.handleLogin)

	api := s.router.Group("/api")
	if s.authService != nil {
		api.Use(s.authService.Middleware())
	}

	api.GET("/signals/:symbol", s.handleSignal)
	api.GET("/positions", s.handlePositions)
	api.GET("/risk/status", s.handleRiskStatus)
	api.POST("/risk/pause", s.handlePause)
	api.POST("/risk/resume", s.handleResume)
	api.POST("/risk/reset-emergency", s.handleResetEmergency)
	api.GET("/trades", s.handleTrades)
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.authService == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "authentication disabled"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

func (s *Server) handleSignal(c *gin.Context) {
	symbol := c.Param("symbol")

	result := s.botAPI.LatestSignal(symbol)
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no signal for %s yet", symbol)})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.botAPI.OpenPositions()})
}

func (s *Server) handleRiskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.RiskStatus())
}

type pauseRequest struct {
	Reason   string `json:"reason"`
	Duration string `json:"duration"` // Go duration string, default 1h
}

func (s *Server) handlePause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	duration := time.Hour
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
		duration = parsed
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual pause"
	}

	s.botAPI.PauseTrading(reason, duration)
	s.logger.Warn().Str("reason", reason).Dur("duration", duration).Msg("trading paused via api")
	c.JSON(http.StatusOK, s.botAPI.RiskStatus())
}

func (s *Server) handleResume(c *gin.Context) {
	s.botAPI.ResumeTrading()
	c.JSON(http.StatusOK, s.botAPI.RiskStatus())
}

func (s *Server) handleResetEmergency(c *gin.Context) {
	s.botAPI.ResetEmergencyStop()
	s.logger.Warn().Msg("emergency stop reset via api")
	c.JSON(http.StatusOK, s.botAPI.RiskStatus())
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []store.TradeRecord{}})
		return
	}

	trades, err := s.repo.RecentTrades(c.Request.Context(), 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("loading trades failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading trades failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": trades})
}
