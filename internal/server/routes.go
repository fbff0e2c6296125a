package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/internal/config"
	"github.com/ksred/minimarbles/internal/metrics"
	"github.com/ksred/minimarbles/internal/settlement"
	"github.com/ksred/minimarbles/internal/trades"
	"github.com/ksred/minimarbles/internal/users"
	"github.com/ksred/minimarbles/pkg/middleware"
	"github.com/ksred/minimarbles/pkg/response"
	"gorm.io/gorm"
)

const greeting = "Hello, Minimarbles!"

// NewRouter builds the HTTP handler for the ledger: services, middleware, and routes
func NewRouter(db *gorm.DB, limits config.RateLimit) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), metrics.Middleware())
	if limits.Enabled {
		router.Use(middleware.RateLimit(middleware.NewLimiter(limits.WritesPerMinute, limits.ReadsPerMinute)))
	}

	userHandlers := users.NewGinHandlers(users.NewService(db))
	tradeHandlers := trades.NewGinHandlers(trades.NewService(db))
	settlementHandlers := settlement.NewGinHandlers(settlement.NewService(db))

	setupRoutes(router, db, userHandlers, tradeHandlers, settlementHandlers)
	return router
}

// setupRoutes configures all API endpoints and their handlers:
// - Service routes: greeting, health, metrics
// - User routes: registration and balances
// - Trade routes: opening, listing and settling both trade kinds
func setupRoutes(
	router *gin.Engine,
	db *gorm.DB,
	userHandlers *users.GinHandlers,
	tradeHandlers *trades.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, greeting)
	})
	router.GET("/health", healthHandler(db))
	router.GET("/metrics", metrics.Handler())

	userRoutes := router.Group("/users")
	{
		userRoutes.GET("", userHandlers.ListUsersHandler())
		userRoutes.POST("", userHandlers.CreateUserHandler())
		userRoutes.GET("/:user_id", userHandlers.GetUserHandler())
	}

	tradeRoutes := router.Group("/trades")
	{
		tradeRoutes.GET("", tradeHandlers.ListTradesHandler())

		binary := tradeRoutes.Group("/binary")
		binary.POST("", tradeHandlers.CreateBinaryTradeHandler())
		binary.GET("/:trade_id", tradeHandlers.GetBinaryTradeHandler())
		binary.POST("/:trade_id/settle", settlementHandlers.SettleBinaryTradeHandler())

		underlying := tradeRoutes.Group("/underlying")
		underlying.POST("", tradeHandlers.CreateUnderlyingTradeHandler())
		underlying.GET("/:trade_id", tradeHandlers.GetUnderlyingTradeHandler())
		underlying.POST("/:trade_id/settle", settlementHandlers.SettleUnderlyingTradeHandler())
	}
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Unavailable(c, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
