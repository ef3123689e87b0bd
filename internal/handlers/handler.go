// Package handlers exposes the ledger, market data and watchlist over HTTP.
package handlers

import (
	"context"

	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/models"
)

// Ledger is the read side of the trade ledger plus account opening.
type Ledger interface {
	OpenAccount(ctx context.Context, userID string) (models.Wallet, error)
	Portfolio(ctx context.Context, userID string) (models.PortfolioResponse, error)
	Transactions(ctx context.Context, userID string, page models.PageRequest) (models.TransactionPage, error)
}

// TradeSubmitter executes trades, usually through the trade processor.
type TradeSubmitter interface {
	Submit(ctx context.Context, order models.TradeOrder) (models.TradeReceipt, error)
}

type MarketData interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	History(ctx context.Context, symbol string) ([]models.HistoryPoint, error)
}

type Watchlist interface {
	List(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	Add(ctx context.Context, userID, symbol string) (models.WatchlistItem, error)
	Remove(ctx context.Context, userID, symbol string) error
}

// Handler holds the dependencies of every route.
type Handler struct {
	ledger    Ledger
	trades    TradeSubmitter
	market    MarketData
	watchlist Watchlist
	logger    *logger.Logger
	stream    config.StreamConfig
	ping      func(ctx context.Context) error
}

func New(l Ledger, trades TradeSubmitter, m MarketData, w Watchlist, log *logger.Logger, stream config.StreamConfig) *Handler {
	return &Handler{
		ledger:    l,
		trades:    trades,
		market:    m,
		watchlist: w,
		logger:    log,
		stream:    stream,
	}
}

// WithHealthCheck makes /health report unhealthy when ping fails.
func (h *Handler) WithHealthCheck(ping func(ctx context.Context) error) *Handler {
	h.ping = ping
	return h
}
