package models

import "time"

// Quote is the current price snapshot for a symbol
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent string  `json:"change_percent"`
}

// HistoryPoint is one daily close
type HistoryPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Price float64 `json:"price"`
}

// SearchResult is one symbol search match
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Region   string `json:"region"`
	Currency string `json:"currency"`
}

// PriceUpdate represents a stock price tick pushed over the websocket
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	Timestamp time.Time `json:"timestamp"`
}

// WatchlistItem is a symbol a user follows
type WatchlistItem struct {
	ID      int64     `json:"id"`
	UserID  string    `json:"user_id"`
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"added_at"`
}

// WatchlistKey identifies one symbol on a user's watchlist
type WatchlistKey struct {
	UserID string `validate:"required"`
	Symbol string `validate:"required,max=16"`
}

// WatchlistRequest - body of POST /api/watchlist
type WatchlistRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}
