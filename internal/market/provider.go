// Package market fetches quotes, daily history and symbol search results
// from a market-data provider, caching what it can.
package market

import (
	"context"
	"errors"

	"github.com/atharvakonge/papertrade/internal/models"
)

var (
	// ErrRateLimited means the provider refused the call because the API
	// key ran out of requests. Callers fall back to mock data.
	ErrRateLimited = errors.New("market data rate limit reached")

	// ErrSymbolNotFound means the provider has no data for the symbol.
	ErrSymbolNotFound = errors.New("stock not found")
)

// HistoryDays is the number of daily closes returned by History.
const HistoryDays = 30

// Provider is a source of market data
type Provider interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	// History returns up to HistoryDays daily closes, oldest first.
	History(ctx context.Context, symbol string) ([]models.HistoryPoint, error)
}
