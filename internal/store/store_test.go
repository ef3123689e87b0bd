package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/papertrade/internal/models"
)

// runStoreContract exercises behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	t.Run("wallet roundtrip", func(t *testing.T) {
		s := newStore(t)

		_, err := s.FindWallet(ctx, "alice")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.InsertWallet(ctx, models.Wallet{UserID: "alice", Cash: 10000, CreatedAt: now, UpdatedAt: now}))
		assert.ErrorIs(t, s.InsertWallet(ctx, models.Wallet{UserID: "alice", Cash: 1}), ErrDuplicate)

		require.NoError(t, s.UpdateWallet(ctx, models.Wallet{UserID: "alice", Cash: 9000, UpdatedAt: now}))
		w, err := s.FindWallet(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 9000.0, w.Cash)

		assert.ErrorIs(t, s.UpdateWallet(ctx, models.Wallet{UserID: "bob", Cash: 1}), ErrNotFound)
	})

	t.Run("holdings", func(t *testing.T) {
		s := newStore(t)

		msft, err := s.InsertHolding(ctx, models.Holding{UserID: "alice", Symbol: "MSFT", Quantity: 3, AvgPrice: 300, UpdatedAt: now})
		require.NoError(t, err)
		assert.NotZero(t, msft.ID)

		_, err = s.InsertHolding(ctx, models.Holding{UserID: "alice", Symbol: "AAPL", Quantity: 10, AvgPrice: 100, UpdatedAt: now})
		require.NoError(t, err)
		_, err = s.InsertHolding(ctx, models.Holding{UserID: "bob", Symbol: "AAPL", Quantity: 1, AvgPrice: 100, UpdatedAt: now})
		require.NoError(t, err)

		_, err = s.InsertHolding(ctx, models.Holding{UserID: "alice", Symbol: "AAPL", Quantity: 1, AvgPrice: 1, UpdatedAt: now})
		assert.ErrorIs(t, err, ErrDuplicate)

		holdings, err := s.FindHoldings(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, holdings, 2)
		assert.Equal(t, "AAPL", holdings[0].Symbol)
		assert.Equal(t, "MSFT", holdings[1].Symbol)

		require.NoError(t, s.UpdateHolding(ctx, models.Holding{UserID: "alice", Symbol: "AAPL", Quantity: 20, AvgPrice: 150, UpdatedAt: now}))
		h, err := s.FindHolding(ctx, "alice", "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(20), h.Quantity)
		assert.Equal(t, 150.0, h.AvgPrice)

		require.NoError(t, s.DeleteHolding(ctx, "alice", "AAPL"))
		_, err = s.FindHolding(ctx, "alice", "AAPL")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteHolding(ctx, "alice", "AAPL"), ErrNotFound)

		empty, err := s.FindHoldings(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
		assert.NotNil(t, empty)
	})

	t.Run("transactions are paged newest first", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 25; i++ {
			require.NoError(t, s.InsertTransaction(ctx, models.Transaction{
				ID:       fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
				UserID:   "alice",
				Type:     models.TradeBuy,
				Symbol:   "AAPL",
				Quantity: 1,
				Price:    float64(100 + i),
				Total:    float64(100 + i),
				Date:     now.Add(time.Duration(i) * time.Minute),
			}))
		}
		require.NoError(t, s.InsertTransaction(ctx, models.Transaction{
			ID: "10000000-0000-0000-0000-000000000000", UserID: "bob", Type: models.TradeSell,
			Symbol: "AAPL", Quantity: 1, Price: 1, Total: 1, Date: now,
		}))

		total, err := s.CountTransactions(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)

		seen := make(map[string]bool)
		var last time.Time
		for skip := 0; skip < 30; skip += 10 {
			page, err := s.FindTransactions(ctx, "alice", skip, 10)
			require.NoError(t, err)
			for _, tx := range page {
				assert.False(t, seen[tx.ID], "transaction %s returned twice", tx.ID)
				seen[tx.ID] = true
				if !last.IsZero() {
					assert.False(t, tx.Date.After(last), "transactions not in descending order")
				}
				last = tx.Date
				assert.Equal(t, "alice", tx.UserID)
			}
		}
		assert.Len(t, seen, 25)

		beyond, err := s.FindTransactions(ctx, "alice", 100, 10)
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("watchlist", func(t *testing.T) {
		s := newStore(t)

		_, err := s.InsertWatchlistItem(ctx, models.WatchlistItem{UserID: "alice", Symbol: "TSLA", AddedAt: now})
		require.NoError(t, err)
		_, err = s.InsertWatchlistItem(ctx, models.WatchlistItem{UserID: "alice", Symbol: "AAPL", AddedAt: now.Add(time.Second)})
		require.NoError(t, err)
		_, err = s.InsertWatchlistItem(ctx, models.WatchlistItem{UserID: "alice", Symbol: "TSLA", AddedAt: now})
		assert.ErrorIs(t, err, ErrDuplicate)

		items, err := s.FindWatchlist(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "TSLA", items[0].Symbol)

		require.NoError(t, s.DeleteWatchlistItem(ctx, "alice", "TSLA"))
		_, err = s.FindWatchlistItem(ctx, "alice", "TSLA")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertWallet(ctx, models.Wallet{UserID: "alice", Cash: 100, CreatedAt: now, UpdatedAt: now}))

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(q Queries) error {
			if err := q.UpdateWallet(ctx, models.Wallet{UserID: "alice", Cash: 0, UpdatedAt: now}); err != nil {
				return err
			}
			if _, err := q.InsertHolding(ctx, models.Holding{UserID: "alice", Symbol: "AAPL", Quantity: 1, AvgPrice: 100, UpdatedAt: now}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		w, err := s.FindWallet(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 100.0, w.Cash)
		_, err = s.FindHolding(ctx, "alice", "AAPL")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("committed transaction is visible", func(t *testing.T) {
		s := newStore(t)

		err := s.WithTx(ctx, func(q Queries) error {
			return q.InsertWallet(ctx, models.Wallet{UserID: "carol", Cash: 42, CreatedAt: now, UpdatedAt: now})
		})
		require.NoError(t, err)

		w, err := s.FindWallet(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, 42.0, w.Cash)
	})
}
