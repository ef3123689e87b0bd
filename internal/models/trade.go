package models

import "time"

// TradeType is BUY or SELL
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Wallet is a user's virtual cash balance
type Wallet struct {
	UserID    string    `json:"user_id"`
	Cash      float64   `json:"cash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Holding represents stocks owned by a user
type Holding struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Quantity  int64     `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is an immutable record of one executed buy or sell
type Transaction struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Type     TradeType `json:"type"`
	Symbol   string    `json:"symbol"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
	Total    float64   `json:"total"`
	Date     time.Time `json:"date"`
}

// TradeRequest - what client sends to buy or sell stocks
type TradeRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity int64   `json:"quantity" binding:"required,min=1"`
	Price    float64 `json:"price" binding:"required,gt=0"`
}

// TradeOrder is a validated trade for a specific user
type TradeOrder struct {
	UserID   string    `validate:"required"`
	Type     TradeType `validate:"required,oneof=BUY SELL"`
	Symbol   string    `validate:"required,max=16"`
	Quantity int64     `validate:"min=1"`
	Price    float64   `validate:"gt=0"`
}

// TradeReceipt - what we send back after a trade executes
type TradeReceipt struct {
	TransactionID string    `json:"transaction_id"`
	Type          TradeType `json:"type"`
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	Price         float64   `json:"price"`
	Total         float64   `json:"total"`
	Cash          float64   `json:"cash"`
}

// PortfolioResponse - holdings plus cash
type PortfolioResponse struct {
	Holdings []Holding `json:"holdings"`
	Cash     float64   `json:"cash"`
	Invested float64   `json:"invested"`
}

// TransactionPage is one page of a user's transaction history
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	TotalCount   int64         `json:"total_count"`
}

// PageRequest selects a page of transactions
type PageRequest struct {
	Limit int `form:"limit,default=10" validate:"min=1,max=100"`
	Skip  int `form:"skip,default=0" validate:"min=0"`
}
