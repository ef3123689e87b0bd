package market

import (
	"context"
	"fmt"
	"math"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	pmodels "github.com/polygon-io/client-go/rest/models"

	"github.com/atharvakonge/papertrade/internal/models"
)

const polygonSearchLimit = 10

var _ Provider = (*Polygon)(nil)

// Polygon reads market data from the polygon.io REST API.
type Polygon struct {
	client *polygon.Client
	now    func() time.Time
}

func NewPolygon(apiKey string) (*Polygon, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	return newPolygon(polygon.New(apiKey)), nil
}

func newPolygon(client *polygon.Client) *Polygon {
	return &Polygon{client: client, now: time.Now}
}

func (p *Polygon) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	params := pmodels.ListTickersParams{}.
		WithSearch(query).
		WithMarket(pmodels.AssetStocks).
		WithActive(true).
		WithLimit(polygonSearchLimit)

	iter := p.client.ListTickers(ctx, params)

	var results []models.SearchResult
	for iter.Next() {
		t := iter.Item()
		results = append(results, models.SearchResult{
			Symbol:   t.Ticker,
			Name:     t.Name,
			Type:     t.Type,
			Region:   string(t.Locale),
			Currency: t.CurrencyName,
		})
		if len(results) == polygonSearchLimit {
			break
		}
	}
	if iter.Err() != nil {
		return nil, fmt.Errorf("error iterating polygon tickers: %w", iter.Err())
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

// dailyCloses returns the daily closes of the last `days` calendar days,
// oldest first.
func (p *Polygon) dailyCloses(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	end := p.now().UTC()
	start := end.AddDate(0, 0, -days)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := pmodels.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   pmodels.Day,
		From:       pmodels.Millis(start),
		To:         pmodels.Millis(end),
	}.WithOrder(pmodels.Asc)

	iter := p.client.ListAggs(ctx, params)

	var points []models.HistoryPoint
	for iter.Next() {
		agg := iter.Item()
		points = append(points, models.HistoryPoint{
			Date:  time.Time(agg.Timestamp).UTC().Format(time.DateOnly),
			Price: agg.Close,
		})
	}
	if iter.Err() != nil {
		return nil, fmt.Errorf("error iterating polygon aggregates: %w", iter.Err())
	}
	return points, nil
}

// Quote derives the price and change from the two latest daily bars.
func (p *Polygon) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	// A week covers weekends and a holiday.
	points, err := p.dailyCloses(ctx, symbol, 7)
	if err != nil {
		return models.Quote{}, err
	}
	if len(points) == 0 {
		return models.Quote{}, ErrSymbolNotFound
	}

	last := points[len(points)-1]
	q := models.Quote{Symbol: symbol, Price: last.Price, ChangePercent: "0.0000%"}
	if len(points) > 1 {
		prev := points[len(points)-2].Price
		q.Change = round2(last.Price - prev)
		if prev != 0 {
			q.ChangePercent = formatPercent((last.Price - prev) / prev * 100)
		}
	}
	return q, nil
}

func (p *Polygon) History(ctx context.Context, symbol string) ([]models.HistoryPoint, error) {
	// Trading days only, so look back far enough to collect HistoryDays bars.
	points, err := p.dailyCloses(ctx, symbol, HistoryDays*2)
	if err != nil {
		return nil, err
	}
	if len(points) > HistoryDays {
		points = points[len(points)-HistoryDays:]
	}
	if points == nil {
		points = []models.HistoryPoint{}
	}
	return points, nil
}

// formatPercent renders a percentage the way Alpha Vantage does, e.g. "1.2345%".
func formatPercent(v float64) string {
	v = math.Round(v*10000) / 10000
	return fmt.Sprintf("%.4f%%", v)
}
