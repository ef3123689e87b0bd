package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/middleware"
)

// NewRouter wires every route. limiter runs after authentication and may
// be nil.
func NewRouter(h *Handler, log *logger.Logger, auth config.AuthConfig, limiter gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// API routes
	api := router.Group("/api", middleware.Auth(auth))
	if limiter != nil {
		api.Use(limiter)
	}
	{
		api.POST("/account", h.OpenAccount)
		api.GET("/portfolio", h.GetPortfolio)
		api.GET("/transactions", h.GetTransactions)

		// Trading endpoints
		api.POST("/trades/buy", h.BuyStock)
		api.POST("/trades/sell", h.SellStock)

		// Market data
		api.GET("/stocks/search", h.SearchStocks)
		api.GET("/stocks/:symbol/quote", h.GetQuote)
		api.GET("/stocks/:symbol/history", h.GetHistory)

		api.GET("/watchlist", h.GetWatchlist)
		api.POST("/watchlist", h.AddToWatchlist)
		api.DELETE("/watchlist/:symbol", h.RemoveFromWatchlist)
	}

	// WebSocket endpoint
	router.GET("/ws/prices", h.HandleWebSocket)

	// Health check
	router.GET("/health", h.Health)

	router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, apperr.New(apperr.CodeNotFound, "Route not found"))
	})

	return router
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
