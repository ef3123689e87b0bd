package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/atharvakonge/papertrade/internal/models"
)

const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

var _ Provider = (*AlphaVantage)(nil)

// AlphaVantage talks to the Alpha Vantage query API.
type AlphaVantage struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewAlphaVantage(baseURL, apiKey string, timeout time.Duration) *AlphaVantage {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	return &AlphaVantage{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// avLimit is present in every response. Alpha Vantage answers 200 with a
// Note or Information message when the key is over its quota.
type avLimit struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (l avLimit) limited() bool {
	return l.Note != "" || l.Information != ""
}

type avSearchResponse struct {
	avLimit
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Type     string `json:"3. type"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

type avQuoteResponse struct {
	avLimit
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type avDailyResponse struct {
	avLimit
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
}

func (a *AlphaVantage) get(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("alpha vantage %s: %w", params.Get("function"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alpha vantage %s: unexpected status %d", params.Get("function"), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", params.Get("function"), err)
	}
	return nil
}

func (a *AlphaVantage) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	var body avSearchResponse
	err := a.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {query}}, &body)
	if err != nil {
		return nil, err
	}
	if body.limited() {
		return nil, ErrRateLimited
	}

	results := make([]models.SearchResult, 0, len(body.BestMatches))
	for _, m := range body.BestMatches {
		results = append(results, models.SearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Type:     m.Type,
			Region:   m.Region,
			Currency: m.Currency,
		})
	}
	return results, nil
}

func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var body avQuoteResponse
	err := a.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}, &body)
	if err != nil {
		return models.Quote{}, err
	}
	if body.limited() {
		return models.Quote{}, ErrRateLimited
	}

	q := body.GlobalQuote
	if q.Symbol == "" {
		return models.Quote{}, ErrSymbolNotFound
	}

	price, err := strconv.ParseFloat(q.Price, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse price %q: %w", q.Price, err)
	}
	change, err := strconv.ParseFloat(q.Change, 64)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse change %q: %w", q.Change, err)
	}

	return models.Quote{
		Symbol:        q.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: q.ChangePercent,
	}, nil
}

// History returns the most recent HistoryDays closes, oldest first. A
// response without a time series yields an empty history.
func (a *AlphaVantage) History(ctx context.Context, symbol string) ([]models.HistoryPoint, error) {
	var body avDailyResponse
	err := a.get(ctx, url.Values{"function": {"TIME_SERIES_DAILY"}, "symbol": {symbol}}, &body)
	if err != nil {
		return nil, err
	}
	if body.limited() {
		return nil, ErrRateLimited
	}

	dates := make([]string, 0, len(body.TimeSeries))
	for date := range body.TimeSeries {
		dates = append(dates, date)
	}
	// YYYY-MM-DD sorts chronologically as a string.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > HistoryDays {
		dates = dates[:HistoryDays]
	}

	history := make([]models.HistoryPoint, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- {
		raw := body.TimeSeries[dates[i]].Close
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q for %s: %w", raw, dates[i], err)
		}
		history = append(history, models.HistoryPoint{Date: dates[i], Price: price})
	}
	return history, nil
}
