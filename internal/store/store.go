// Package store is the data-access layer for wallets, holdings,
// transactions and watchlists.
//
// Callers receive a Store by injection. Reads may go straight through the
// Store; anything that must be atomic runs inside WithTx, which hands the
// callback a Queries bound to a single transaction. Inside WithTx the
// postgres backend locks the rows it reads (SELECT ... FOR UPDATE).
package store

import (
	"context"
	"errors"

	"github.com/atharvakonge/papertrade/internal/models"
)

var (
	// ErrNotFound is returned when a filter matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert violates a unique key.
	ErrDuplicate = errors.New("store: duplicate key")
)

// WalletQueries operates on the wallets collection.
type WalletQueries interface {
	FindWallet(ctx context.Context, userID string) (models.Wallet, error)
	InsertWallet(ctx context.Context, w models.Wallet) error
	UpdateWallet(ctx context.Context, w models.Wallet) error
}

// HoldingQueries operates on the portfolios collection.
type HoldingQueries interface {
	FindHolding(ctx context.Context, userID, symbol string) (models.Holding, error)
	FindHoldings(ctx context.Context, userID string) ([]models.Holding, error)
	InsertHolding(ctx context.Context, h models.Holding) (models.Holding, error)
	UpdateHolding(ctx context.Context, h models.Holding) error
	DeleteHolding(ctx context.Context, userID, symbol string) error
}

// TransactionQueries operates on the append-only transactions collection.
type TransactionQueries interface {
	InsertTransaction(ctx context.Context, t models.Transaction) error
	// FindTransactions returns the user's transactions newest first.
	FindTransactions(ctx context.Context, userID string, skip, limit int) ([]models.Transaction, error)
	CountTransactions(ctx context.Context, userID string) (int64, error)
}

// WatchlistQueries operates on the watchlists collection.
type WatchlistQueries interface {
	FindWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	FindWatchlistItem(ctx context.Context, userID, symbol string) (models.WatchlistItem, error)
	InsertWatchlistItem(ctx context.Context, item models.WatchlistItem) (models.WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, userID, symbol string) error
}

// Queries is every collection operation.
type Queries interface {
	WalletQueries
	HoldingQueries
	TransactionQueries
	WatchlistQueries
}

// Store is a Queries that can also run a function atomically.
type Store interface {
	Queries
	// WithTx runs fn inside one transaction. If fn returns an error nothing
	// fn did is persisted and that error is returned unchanged.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
