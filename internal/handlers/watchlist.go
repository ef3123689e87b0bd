package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/models"
)

// GetWatchlist handles GET /api/watchlist
func (h *Handler) GetWatchlist(c *gin.Context) {
	items, err := h.watchlist.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AddToWatchlist handles POST /api/watchlist
func (h *Handler) AddToWatchlist(c *gin.Context) {
	var req models.WatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperr.Wrap(apperr.CodeValidation, "Invalid request: "+err.Error(), err))
		return
	}

	item, err := h.watchlist.Add(c.Request.Context(), middleware.UserID(c), req.Symbol)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// RemoveFromWatchlist handles DELETE /api/watchlist/:symbol
func (h *Handler) RemoveFromWatchlist(c *gin.Context) {
	if err := h.watchlist.Remove(c.Request.Context(), middleware.UserID(c), c.Param("symbol")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
