package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/models"
)

// SearchStocks handles GET /api/stocks/search?q=
func (h *Handler) SearchStocks(c *gin.Context) {
	results, err := h.market.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetQuote handles GET /api/stocks/:symbol/quote
func (h *Handler) GetQuote(c *gin.Context) {
	quote, err := h.market.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// GetHistory handles GET /api/stocks/:symbol/history
func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.market.History(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": models.NormalizeSymbol(c.Param("symbol")), "history": history})
}
