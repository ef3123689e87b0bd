// Package ledger executes virtual trades against a user's cash balance and
// keeps the derived holdings and transaction history.
//
// Each mutation runs under a per-user lock and inside one store
// transaction, so it either happens completely or not at all:
//
//   - buy debits quantity*price, grows the holding and recomputes its
//     weighted average price, and appends a BUY transaction.
//   - sell shrinks or removes the holding (average price unchanged),
//     credits quantity*price, and appends a SELL transaction.
//
// A user without a wallet starts with the configured starting cash.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/models"
	"github.com/atharvakonge/papertrade/internal/store"
)

const (
	DefaultStartingCash = 10000.0
	DefaultPageLimit    = 10
	MaxPageLimit        = 100
)

// Ledger is the trade ledger
type Ledger struct {
	store        store.Store
	locks        *UserLocks
	logger       *logger.Logger
	startingCash decimal.Decimal
	now          func() time.Time
	newID        func() string
}

type Option func(*Ledger)

// WithStartingCash sets the balance of newly opened wallets.
func WithStartingCash(cash float64) Option {
	return func(l *Ledger) { l.startingCash = decimal.NewFromFloat(cash) }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(s store.Store, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:        s,
		locks:        NewUserLocks(),
		logger:       log,
		startingCash: decimal.NewFromFloat(DefaultStartingCash),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenAccount creates the user's wallet with the starting cash. Calling it
// again returns the existing wallet untouched.
func (l *Ledger) OpenAccount(ctx context.Context, userID string) (models.Wallet, error) {
	if userID == "" {
		return models.Wallet{}, apperr.New(apperr.CodeValidation, "user id is required")
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	var wallet models.Wallet
	err := l.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		wallet, err = l.ensureWallet(ctx, q, userID)
		return err
	})
	if err != nil {
		return models.Wallet{}, fmt.Errorf("open account: %w", err)
	}
	return wallet, nil
}

// Buy purchases quantity shares of symbol at price.
func (l *Ledger) Buy(ctx context.Context, userID, symbol string, quantity int64, price float64) (models.TradeReceipt, error) {
	return l.Execute(ctx, models.TradeOrder{
		UserID: userID, Type: models.TradeBuy, Symbol: symbol, Quantity: quantity, Price: price,
	})
}

// Sell disposes of quantity shares of symbol at price.
func (l *Ledger) Sell(ctx context.Context, userID, symbol string, quantity int64, price float64) (models.TradeReceipt, error) {
	return l.Execute(ctx, models.TradeOrder{
		UserID: userID, Type: models.TradeSell, Symbol: symbol, Quantity: quantity, Price: price,
	})
}

// Execute validates and applies a single order.
func (l *Ledger) Execute(ctx context.Context, order models.TradeOrder) (models.TradeReceipt, error) {
	order.Symbol = models.NormalizeSymbol(order.Symbol)
	if err := models.Validate(order); err != nil {
		return models.TradeReceipt{}, err
	}

	unlock := l.locks.Lock(order.UserID)
	defer unlock()

	var receipt models.TradeReceipt
	err := l.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		if order.Type == models.TradeBuy {
			receipt, err = l.buy(ctx, q, order)
		} else {
			receipt, err = l.sell(ctx, q, order)
		}
		return err
	})
	if err != nil {
		if apperr.GetCode(err) == apperr.CodeUnknown {
			l.logger.Error("Trade failed",
				zap.String("user_id", order.UserID),
				zap.String("type", string(order.Type)),
				zap.String("symbol", order.Symbol),
				zap.Error(err))
			return models.TradeReceipt{}, fmt.Errorf("%s %s: %w", order.Type, order.Symbol, err)
		}
		return models.TradeReceipt{}, err
	}

	l.logger.Info("Trade executed",
		zap.String("user_id", order.UserID),
		zap.String("type", string(order.Type)),
		zap.String("symbol", order.Symbol),
		zap.Int64("quantity", order.Quantity),
		zap.Float64("price", order.Price),
		zap.String("transaction_id", receipt.TransactionID))
	return receipt, nil
}

func (l *Ledger) buy(ctx context.Context, q store.Queries, order models.TradeOrder) (models.TradeReceipt, error) {
	now := l.now()
	qty := decimal.NewFromInt(order.Quantity)
	total := qty.Mul(decimal.NewFromFloat(order.Price))

	// 1. Check user has enough cash
	wallet, err := l.ensureWallet(ctx, q, order.UserID)
	if err != nil {
		return models.TradeReceipt{}, err
	}
	cash := decimal.NewFromFloat(wallet.Cash)
	if cash.LessThan(total) {
		l.logger.Debug("Buy rejected",
			zap.String("user_id", order.UserID),
			zap.String("cost", total.StringFixed(2)),
			zap.String("cash", cash.StringFixed(2)))
		return models.TradeReceipt{}, apperr.New(apperr.CodeInsufficientFunds, "Insufficient funds")
	}

	// 2. Deduct cash
	wallet.Cash = cash.Sub(total).InexactFloat64()
	wallet.UpdatedAt = now
	if err := q.UpdateWallet(ctx, wallet); err != nil {
		return models.TradeReceipt{}, fmt.Errorf("update wallet: %w", err)
	}

	// 3. Grow the holding, or open it
	holding, err := q.FindHolding(ctx, order.UserID, order.Symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, err = q.InsertHolding(ctx, models.Holding{
			UserID:    order.UserID,
			Symbol:    order.Symbol,
			Quantity:  order.Quantity,
			AvgPrice:  order.Price,
			UpdatedAt: now,
		})
		if err != nil {
			return models.TradeReceipt{}, fmt.Errorf("insert holding: %w", err)
		}
	case err != nil:
		return models.TradeReceipt{}, fmt.Errorf("find holding: %w", err)
	default:
		if holding.Quantity > math.MaxInt64-order.Quantity {
			return models.TradeReceipt{}, apperr.Newf(apperr.CodeValidation,
				"quantity would exceed the maximum holding of %d shares", int64(math.MaxInt64))
		}
		holding.AvgPrice = weightedAverage(holding.Quantity, holding.AvgPrice, order.Quantity, order.Price)
		holding.Quantity += order.Quantity
		holding.UpdatedAt = now
		if err := q.UpdateHolding(ctx, holding); err != nil {
			return models.TradeReceipt{}, fmt.Errorf("update holding: %w", err)
		}
	}

	// 4. Record trade
	tx, err := l.record(ctx, q, order, total, now)
	if err != nil {
		return models.TradeReceipt{}, err
	}
	return receiptFor(tx, wallet.Cash), nil
}

func (l *Ledger) sell(ctx context.Context, q store.Queries, order models.TradeOrder) (models.TradeReceipt, error) {
	now := l.now()
	total := decimal.NewFromInt(order.Quantity).Mul(decimal.NewFromFloat(order.Price))

	// 1. Check user owns enough shares
	holding, err := q.FindHolding(ctx, order.UserID, order.Symbol)
	if errors.Is(err, store.ErrNotFound) {
		return models.TradeReceipt{}, apperr.New(apperr.CodeInsufficientShares, "Insufficient shares")
	}
	if err != nil {
		return models.TradeReceipt{}, fmt.Errorf("find holding: %w", err)
	}
	if holding.Quantity < order.Quantity {
		l.logger.Debug("Sell rejected",
			zap.String("user_id", order.UserID),
			zap.Int64("owned", holding.Quantity),
			zap.Int64("requested", order.Quantity))
		return models.TradeReceipt{}, apperr.New(apperr.CodeInsufficientShares, "Insufficient shares")
	}

	// 2. Shrink the holding, removing it when sold out
	if holding.Quantity == order.Quantity {
		if err := q.DeleteHolding(ctx, order.UserID, order.Symbol); err != nil {
			return models.TradeReceipt{}, fmt.Errorf("delete holding: %w", err)
		}
	} else {
		holding.Quantity -= order.Quantity
		holding.UpdatedAt = now
		if err := q.UpdateHolding(ctx, holding); err != nil {
			return models.TradeReceipt{}, fmt.Errorf("update holding: %w", err)
		}
	}

	// 3. Add proceeds
	wallet, err := l.ensureWallet(ctx, q, order.UserID)
	if err != nil {
		return models.TradeReceipt{}, err
	}
	wallet.Cash = decimal.NewFromFloat(wallet.Cash).Add(total).InexactFloat64()
	wallet.UpdatedAt = now
	if err := q.UpdateWallet(ctx, wallet); err != nil {
		return models.TradeReceipt{}, fmt.Errorf("update wallet: %w", err)
	}

	// 4. Record trade
	tx, err := l.record(ctx, q, order, total, now)
	if err != nil {
		return models.TradeReceipt{}, err
	}
	return receiptFor(tx, wallet.Cash), nil
}

// ensureWallet returns the user's wallet, creating it with the starting
// cash when absent. This is the only place the default balance is applied
// on the write path.
func (l *Ledger) ensureWallet(ctx context.Context, q store.Queries, userID string) (models.Wallet, error) {
	wallet, err := q.FindWallet(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Wallet{}, fmt.Errorf("find wallet: %w", err)
	}

	now := l.now()
	wallet = models.Wallet{
		UserID:    userID,
		Cash:      l.startingCash.InexactFloat64(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.InsertWallet(ctx, wallet); err != nil {
		return models.Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	l.logger.Info("Wallet opened", zap.String("user_id", userID), zap.Float64("cash", wallet.Cash))
	return wallet, nil
}

func (l *Ledger) record(ctx context.Context, q store.Queries, order models.TradeOrder, total decimal.Decimal, now time.Time) (models.Transaction, error) {
	tx := models.Transaction{
		ID:       l.newID(),
		UserID:   order.UserID,
		Type:     order.Type,
		Symbol:   order.Symbol,
		Quantity: order.Quantity,
		Price:    order.Price,
		Total:    total.InexactFloat64(),
		Date:     now,
	}
	if err := q.InsertTransaction(ctx, tx); err != nil {
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func receiptFor(tx models.Transaction, cash float64) models.TradeReceipt {
	return models.TradeReceipt{
		TransactionID: tx.ID,
		Type:          tx.Type,
		Symbol:        tx.Symbol,
		Quantity:      tx.Quantity,
		Price:         tx.Price,
		Total:         tx.Total,
		Cash:          cash,
	}
}

// weightedAverage returns (oldQty*oldAvg + addQty*price) / (oldQty+addQty).
func weightedAverage(oldQty int64, oldAvg float64, addQty int64, price float64) float64 {
	oq := decimal.NewFromInt(oldQty)
	aq := decimal.NewFromInt(addQty)
	cost := oq.Mul(decimal.NewFromFloat(oldAvg)).Add(aq.Mul(decimal.NewFromFloat(price)))
	return cost.Div(oq.Add(aq)).InexactFloat64()
}

// Portfolio returns every holding plus the cash balance. A user who never
// opened an account is reported with the starting cash.
func (l *Ledger) Portfolio(ctx context.Context, userID string) (models.PortfolioResponse, error) {
	if userID == "" {
		return models.PortfolioResponse{}, apperr.New(apperr.CodeValidation, "user id is required")
	}

	holdings, err := l.store.FindHoldings(ctx, userID)
	if err != nil {
		return models.PortfolioResponse{}, fmt.Errorf("find holdings: %w", err)
	}

	cash := l.startingCash.InexactFloat64()
	wallet, err := l.store.FindWallet(ctx, userID)
	switch {
	case err == nil:
		cash = wallet.Cash
	case !errors.Is(err, store.ErrNotFound):
		return models.PortfolioResponse{}, fmt.Errorf("find wallet: %w", err)
	}

	invested := decimal.Zero
	for _, h := range holdings {
		invested = invested.Add(decimal.NewFromInt(h.Quantity).Mul(decimal.NewFromFloat(h.AvgPrice)))
	}

	return models.PortfolioResponse{
		Holdings: holdings,
		Cash:     cash,
		Invested: invested.InexactFloat64(),
	}, nil
}

// Transactions returns one page of the user's history, newest first, and
// the total number of transactions the user has.
func (l *Ledger) Transactions(ctx context.Context, userID string, page models.PageRequest) (models.TransactionPage, error) {
	if userID == "" {
		return models.TransactionPage{}, apperr.New(apperr.CodeValidation, "user id is required")
	}
	if err := models.Validate(page); err != nil {
		return models.TransactionPage{}, err
	}

	total, err := l.store.CountTransactions(ctx, userID)
	if err != nil {
		return models.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}

	transactions, err := l.store.FindTransactions(ctx, userID, page.Skip, page.Limit)
	if err != nil {
		return models.TransactionPage{}, fmt.Errorf("find transactions: %w", err)
	}

	return models.TransactionPage{
		Transactions: transactions,
		TotalCount:   total,
	}, nil
}
