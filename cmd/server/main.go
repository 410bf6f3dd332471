package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/auth"
	"github.com/ksred/tradedesk-api/internal/config"
	"github.com/ksred/tradedesk-api/internal/database"
	"github.com/ksred/tradedesk-api/internal/exchange"
	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/settlement"
	"github.com/ksred/tradedesk-api/internal/stream"
	"github.com/ksred/tradedesk-api/internal/trading"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/internal/wallet"
	"github.com/ksred/tradedesk-api/pkg/middleware"
)

// setupLogging configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
func setupLogging(cfg *config.Config) {
	if !cfg.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
}

type handlers struct {
	auth         *auth.GinHandlers
	accounts     *accounts.GinHandlers
	trading      *trading.GinHandlers
	settlement   *settlement.GinHandlers
	wallet       *wallet.GinHandlers
	notification *notification.GinHandlers
	stream       *stream.Handler
}

// main initializes and runs the trading API server with graceful shutdown support
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize services and handlers
	accountsService := accounts.NewService(db)
	admin, err := accountsService.EnsureUser(accounts.RegisterUserRequest{
		Email:     cfg.Bootstrap.AdminEmail,
		Name:      "Administrator",
		Role:      types.RoleAdmin,
		APIKey:    cfg.Bootstrap.AdminAPIKey,
		APISecret: cfg.Bootstrap.AdminAPISecret,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap admin user")
	}
	zlog.Info().Str("user_id", admin.UserID).Msg("Admin user ready")

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, accountsService)

	tradingService := trading.NewService(db, exchange.NewService(nil))

	resolver := settlement.NewResolver(nil)
	settlementService := settlement.NewService(db, resolver)

	h := handlers{
		auth:         auth.NewGinHandlers(authService),
		accounts:     accounts.NewGinHandlers(accountsService),
		trading:      trading.NewGinHandlers(tradingService),
		settlement:   settlement.NewGinHandlers(settlementService),
		wallet:       wallet.NewGinHandlers(wallet.NewService(db)),
		notification: notification.NewGinHandlers(notification.NewService(db)),
		stream:       stream.NewHandler(tradingService, cfg.Settlement.TickInterval, cfg.CORS.AllowedOrigins),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and start settlement processor
	settlementProcessor := settlement.NewProcessor(settlementService.GetDB(), resolver,
		cfg.Settlement.TickInterval, cfg.Settlement.BatchSize)
	go settlementProcessor.Start(ctx)

	rateLimiter := middleware.NewRateLimiter(nil, 5)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	// Initialize router
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	setupRoutes(router, authService, rateLimiter, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "Idempotency-Key")
	if len(cfg.CORS.AllowedOrigins) == 0 || cfg.CORS.AllowedOrigins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	return c
}

// setupRoutes configures all API endpoints and their handlers
// - Auth routes: public token exchange
// - User routes: protected by JWT authentication
// - Admin routes: JWT plus the admin role
//
// The rate limiter runs after JWTAuth so authenticated callers get their own
// buckets; the public auth routes are limited per client IP.
func setupRoutes(router *gin.Engine, validator middleware.TokenValidator, limiter *middleware.RateLimiter, h handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		authGroup.Use(limiter.Middleware())
		{
			authGroup.POST("/token", h.auth.GenerateTokenHandler())
		}

		me := v1.Group("/me")
		me.Use(middleware.JWTAuth(validator), limiter.Middleware())
		{
			me.GET("", h.accounts.GetProfileHandler())
			me.PUT("", h.accounts.UpdateProfileHandler())
			me.POST("/secret", h.accounts.RotateSecretHandler())
			me.GET("/autotrade", h.accounts.GetAutoTradeHandler())
			me.PUT("/autotrade", h.accounts.UpdateAutoTradeHandler())
		}

		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(validator), limiter.Middleware())
		{
			trades.POST("", h.trading.CreateTradeHandler())
			trades.GET("", h.trading.ListTradesHandler())
			trades.GET("/stream", h.stream.StreamHandler())
			trades.GET("/:trade_id", h.trading.GetTradeHandler())
			trades.GET("/:trade_id/countdown", h.trading.GetCountdownHandler())
			trades.POST("/:trade_id/cancel", h.trading.CancelTradeHandler())
			trades.POST("/:trade_id/expire", h.settlement.ExpireTradeHandler())
			trades.GET("/:trade_id/settlement", h.settlement.GetSettlementHandler())
		}

		walletGroup := v1.Group("/wallet")
		walletGroup.Use(middleware.JWTAuth(validator), limiter.Middleware())
		{
			walletGroup.GET("", h.wallet.GetWalletHandler())
			walletGroup.GET("/transactions", h.wallet.GetTransactionsHandler())
			walletGroup.POST("/deposit", h.wallet.DepositHandler())
			walletGroup.POST("/withdraw", h.wallet.WithdrawHandler())
		}

		notifications := v1.Group("/notifications")
		notifications.Use(middleware.JWTAuth(validator), limiter.Middleware())
		{
			notifications.GET("", h.notification.ListHandler())
			notifications.POST("/read", h.notification.MarkAllReadHandler())
			notifications.POST("/:notification_id/read", h.notification.MarkReadHandler())
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(validator), middleware.AdminOnly(), limiter.Middleware())
		{
			admin.POST("/users", h.accounts.RegisterUserHandler())
			admin.GET("/users", h.accounts.ListUsersHandler())
			admin.PUT("/users/:user_id/autotrade", h.accounts.AdminUpdateAutoTradeHandler())

			admin.POST("/trades", h.trading.CreateAdminTradeHandler())
			admin.GET("/trades", h.trading.ListAllTradesHandler())
			admin.DELETE("/trades/:trade_id", h.trading.DeleteTradeHandler())
			admin.POST("/trades/:trade_id/settle", h.settlement.SettleTradeHandler())

			admin.GET("/wallet/requests", h.wallet.PendingRequestsHandler())
			admin.POST("/wallet/requests/:transaction_id/review", h.wallet.ReviewRequestHandler())
		}
	}
}
