package handlers

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/market"
	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/models"
)

const writeWait = 5 * time.Second

// Streamed when the client does not pick symbols.
var defaultStreamSymbols = []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (for development and demo)
	},
}

// HandleWebSocket handles GET /ws/prices?symbols=AAPL,MSFT. Each symbol
// starts at its current quote and then moves up to 2% per tick.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	symbols, err := h.streamSymbols(c.Query("symbols"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	prices := h.seedPrices(c.Request.Context(), symbols)

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("Client connected to WebSocket", zap.Strings("symbols", symbols))

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.stream.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("Client disconnected from WebSocket")
			return

		case <-ticker.C:
			update := tick(symbols, prices)

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				h.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) streamSymbols(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultStreamSymbols, nil
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		sym := models.NormalizeSymbol(part)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}

	if len(symbols) == 0 {
		return defaultStreamSymbols, nil
	}
	if limit := h.stream.MaxSymbols; limit > 0 && len(symbols) > limit {
		return nil, apperr.Newf(apperr.CodeValidation, "at most %d symbols can be streamed", limit)
	}
	return symbols, nil
}

// seedPrices starts every symbol at its quote, or the mock price when no
// quote is available.
func (h *Handler) seedPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		q, err := h.market.Quote(ctx, sym)
		if err != nil || q.Price <= 0 {
			h.logger.Debug("Seeding stream with mock price", zap.String("symbol", sym), zap.Error(err))
			prices[sym] = market.MockPrice(sym)
			continue
		}
		prices[sym] = q.Price
	}
	return prices
}

// tick moves one random symbol by -2% to +2%.
func tick(symbols []string, prices map[string]float64) models.PriceUpdate {
	symbol := symbols[rand.IntN(len(symbols))]

	changePercent := (rand.Float64() - 0.5) * 4
	newPrice := prices[symbol] * (1 + changePercent/100)
	prices[symbol] = newPrice

	return models.PriceUpdate{
		Symbol:    symbol,
		Price:     newPrice,
		Change:    changePercent,
		Timestamp: time.Now(),
	}
}
