package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/ledger"
	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/models"
)

// OpenAccount handles POST /api/account
func (h *Handler) OpenAccount(c *gin.Context) {
	wallet, err := h.ledger.OpenAccount(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// BuyStock handles POST /api/trades/buy
func (h *Handler) BuyStock(c *gin.Context) {
	h.trade(c, models.TradeBuy)
}

// SellStock handles POST /api/trades/sell
func (h *Handler) SellStock(c *gin.Context) {
	h.trade(c, models.TradeSell)
}

func (h *Handler) trade(c *gin.Context, tradeType models.TradeType) {
	var req models.TradeRequest

	// Parse JSON request body
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperr.Wrap(apperr.CodeValidation, "Invalid request: "+err.Error(), err))
		return
	}

	receipt, err := h.trades.Submit(c.Request.Context(), models.TradeOrder{
		UserID:   middleware.UserID(c),
		Type:     tradeType,
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if errors.Is(err, ledger.ErrProcessorStopped) {
		err = apperr.Wrap(apperr.CodeInternal, "Trading is unavailable, try again later", err)
	}
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// GetPortfolio handles GET /api/portfolio
func (h *Handler) GetPortfolio(c *gin.Context) {
	portfolio, err := h.ledger.Portfolio(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// GetTransactions handles GET /api/transactions?limit=&skip=
func (h *Handler) GetTransactions(c *gin.Context) {
	var page models.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.AbortWithError(c, apperr.Wrap(apperr.CodeValidation, "limit and skip must be integers", err))
		return
	}

	result, err := h.ledger.Transactions(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
