package market

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/atharvakonge/papertrade/internal/models"
)

var _ Provider = (*Mock)(nil)

var mockListings = []models.SearchResult{
	{Symbol: "AAPL", Name: "Apple Inc.", Type: "Equity", Region: "United States", Currency: "USD"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Type: "Equity", Region: "United States", Currency: "USD"},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Type: "Equity", Region: "United States", Currency: "USD"},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Type: "Equity", Region: "United States", Currency: "USD"},
	{Symbol: "TSLA", Name: "Tesla Inc.", Type: "Equity", Region: "United States", Currency: "USD"},
}

// Mock produces plausible data without any network access. Quotes are a
// pure function of the symbol; history is a random walk around the quote.
type Mock struct {
	now func() time.Time
}

func NewMock() *Mock {
	return &Mock{now: time.Now}
}

// MockPrice maps a symbol to a whole-dollar price in [10, 1000).
// Only the shift is truncated to 32 bits; the accumulator is not.
func MockPrice(symbol string) float64 {
	var hash int64
	for _, c := range symbol {
		hash = int64(c) + int64(int32(hash)<<5) - hash
	}
	if hash < 0 {
		hash = -hash
	}
	return float64(10 + hash%990)
}

func (m *Mock) Search(_ context.Context, query string) ([]models.SearchResult, error) {
	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)

	results := make([]models.SearchResult, 0, len(mockListings))
	for _, s := range mockListings {
		if strings.Contains(s.Symbol, upper) || strings.Contains(strings.ToLower(s.Name), lower) {
			results = append(results, s)
		}
	}
	return results, nil
}

// Quote moves the price 2%, up when the price is even and down otherwise.
func (m *Mock) Quote(_ context.Context, symbol string) (models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	price := MockPrice(symbol)

	sign, percent := 1.0, "+2.00%"
	if int64(price)%2 != 0 {
		sign, percent = -1.0, "-2.00%"
	}

	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        round2(price * 0.02 * sign),
		ChangePercent: percent,
	}, nil
}

// History returns HistoryDays points ending today, each within 2.5% of the
// base price.
func (m *Mock) History(_ context.Context, symbol string) ([]models.HistoryPoint, error) {
	base := MockPrice(models.NormalizeSymbol(symbol))
	today := m.now().UTC()

	history := make([]models.HistoryPoint, HistoryDays)
	for i := 0; i < HistoryDays; i++ {
		date := today.AddDate(0, 0, -(HistoryDays - 1 - i))
		change := (rand.Float64() - 0.5) * base * 0.05
		history[i] = models.HistoryPoint{
			Date:  date.Format(time.DateOnly),
			Price: round2(base + change),
		}
	}
	return history, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
