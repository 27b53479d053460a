package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/dca-api/internal/auth"
	"github.com/ksred/dca-api/internal/database"
	"github.com/ksred/dca-api/internal/executor"
	"github.com/ksred/dca-api/internal/ledger"
	"github.com/ksred/dca-api/internal/quote"
	"github.com/ksred/dca-api/internal/scheduler"
	"github.com/ksred/dca-api/internal/strategy"
	"github.com/ksred/dca-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the DCA engine API server with graceful shutdown
// support. It sets up the strategy store, ledger, quote provider, executor,
// and the relayer tick loop that drives due orders.
func main() {
	// Initialize database
	db, err := database.NewDatabase(envOr("DCA_DB_PATH", "dca.db"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := envOr("JWT_SECRET", "dca-secret-key")

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	ledgerDB := ledger.NewDatabase(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerDB)

	strategyService := strategy.NewService(db, ledgerDB)
	strategyHandlers := strategy.NewGinHandlers(strategyService)

	// Quote against a real aggregator when configured, otherwise the
	// simulated venue.
	var quoteProvider quote.Provider
	if apiURL := os.Getenv("QUOTE_API_URL"); apiURL != "" {
		quoteProvider = quote.NewHTTPProvider(apiURL, os.Getenv("QUOTE_API_KEY"))
	} else {
		quoteProvider = quote.NewSimulatedProvider()
	}

	executorService := executor.NewService(db, strategyService, ledgerDB, quoteProvider)
	executorService.SetQuoteTTL(time.Duration(envInt("DCA_QUOTE_TTL_SECONDS", 30)) * time.Second)
	executorHandlers := executor.NewGinHandlers(executorService.GetDB())

	// Create and start the relayer tick loop
	sched := scheduler.New(strategyService)
	relayer := scheduler.NewRelayer(sched, executorService, time.Duration(envInt("DCA_TICK_SECONDS", 5))*time.Second)
	relayerHandlers := scheduler.NewGinHandlers(relayer)

	relayerCtx, relayerCancel := context.WithCancel(context.Background())
	defer relayerCancel()

	go relayer.Start(relayerCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, jwtSecret, authHandlers, strategyHandlers, ledgerHandlers, relayerHandlers, executorHandlers)

	// Get port from env otherwise it's 8080
	port := envOr("PORT", "8080")

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the relayer before the server so no tick is mid-flight during
	// shutdown
	relayerCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Strategy and balance routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	strategyHandlers *strategy.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	relayerHandlers *scheduler.GinHandlers,
	executorHandlers *executor.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Strategy routes
		strategies := v1.Group("/strategies")
		strategies.Use(middleware.JWTAuth(jwtSecret))
		{
			strategies.POST("", strategyHandlers.CreateStrategyHandler())
			strategies.GET("", strategyHandlers.ListStrategiesHandler())
			strategies.GET("/:strategy_id", strategyHandlers.GetStrategyHandler())
			strategies.POST("/:strategy_id/cancel", strategyHandlers.CancelStrategyHandler())
		}

		// Balance routes
		balances := v1.Group("/balances")
		balances.Use(middleware.JWTAuth(jwtSecret))
		{
			balances.GET("/:token", ledgerHandlers.GetBalanceHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/tick", relayerHandlers.TickHandler())
			internal.GET("/reconciliations", executorHandlers.ListReconciliationsHandler())
			internal.POST("/reconciliations/:reconciliation_id/resolve", executorHandlers.ResolveReconciliationHandler())
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
