package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atharvakonge/papertrade/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. WithTx mutates the live
// state under the write lock and records an undo step for every change;
// a failed callback replays them in reverse, so it leaves no trace.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	wallets  map[string]models.Wallet
	holdings map[holdingKey]models.Holding
	// transactions per user, in insertion order
	transactions map[string][]models.Transaction
	txIDs        map[string]struct{}
	watchlist    map[holdingKey]models.WatchlistItem
	nextID       int64
}

type holdingKey struct {
	userID string
	symbol string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		wallets:      make(map[string]models.Wallet),
		holdings:     make(map[holdingKey]models.Holding),
		transactions: make(map[string][]models.Transaction),
		txIDs:        make(map[string]struct{}),
		watchlist:    make(map[holdingKey]models.WatchlistItem),
	}}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	q := &memQueries{state: m.state, undo: []func(){}}
	if err := fn(q); err != nil {
		for i := len(q.undo) - 1; i >= 0; i-- {
			q.undo[i]()
		}
		return err
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// read runs fn under the read lock against the committed state.
func (m *MemoryStore) read(fn func(q *memQueries) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memQueries{state: m.state})
}

// write runs a single mutation as its own transaction.
func (m *MemoryStore) write(ctx context.Context, fn func(q *memQueries) error) error {
	return m.WithTx(ctx, func(q Queries) error { return fn(q.(*memQueries)) })
}

func (m *MemoryStore) FindWallet(ctx context.Context, userID string) (w models.Wallet, err error) {
	err = m.read(func(q *memQueries) error {
		w, err = q.FindWallet(ctx, userID)
		return err
	})
	return w, err
}

func (m *MemoryStore) InsertWallet(ctx context.Context, w models.Wallet) error {
	return m.write(ctx, func(q *memQueries) error { return q.InsertWallet(ctx, w) })
}

func (m *MemoryStore) UpdateWallet(ctx context.Context, w models.Wallet) error {
	return m.write(ctx, func(q *memQueries) error { return q.UpdateWallet(ctx, w) })
}

func (m *MemoryStore) FindHolding(ctx context.Context, userID, symbol string) (h models.Holding, err error) {
	err = m.read(func(q *memQueries) error {
		h, err = q.FindHolding(ctx, userID, symbol)
		return err
	})
	return h, err
}

func (m *MemoryStore) FindHoldings(ctx context.Context, userID string) (hs []models.Holding, err error) {
	err = m.read(func(q *memQueries) error {
		hs, err = q.FindHoldings(ctx, userID)
		return err
	})
	return hs, err
}

func (m *MemoryStore) InsertHolding(ctx context.Context, h models.Holding) (out models.Holding, err error) {
	err = m.write(ctx, func(q *memQueries) error {
		out, err = q.InsertHolding(ctx, h)
		return err
	})
	return out, err
}

func (m *MemoryStore) UpdateHolding(ctx context.Context, h models.Holding) error {
	return m.write(ctx, func(q *memQueries) error { return q.UpdateHolding(ctx, h) })
}

func (m *MemoryStore) DeleteHolding(ctx context.Context, userID, symbol string) error {
	return m.write(ctx, func(q *memQueries) error { return q.DeleteHolding(ctx, userID, symbol) })
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, t models.Transaction) error {
	return m.write(ctx, func(q *memQueries) error { return q.InsertTransaction(ctx, t) })
}

func (m *MemoryStore) FindTransactions(ctx context.Context, userID string, skip, limit int) (ts []models.Transaction, err error) {
	err = m.read(func(q *memQueries) error {
		ts, err = q.FindTransactions(ctx, userID, skip, limit)
		return err
	})
	return ts, err
}

func (m *MemoryStore) CountTransactions(ctx context.Context, userID string) (n int64, err error) {
	err = m.read(func(q *memQueries) error {
		n, err = q.CountTransactions(ctx, userID)
		return err
	})
	return n, err
}

func (m *MemoryStore) FindWatchlist(ctx context.Context, userID string) (items []models.WatchlistItem, err error) {
	err = m.read(func(q *memQueries) error {
		items, err = q.FindWatchlist(ctx, userID)
		return err
	})
	return items, err
}

func (m *MemoryStore) FindWatchlistItem(ctx context.Context, userID, symbol string) (item models.WatchlistItem, err error) {
	err = m.read(func(q *memQueries) error {
		item, err = q.FindWatchlistItem(ctx, userID, symbol)
		return err
	})
	return item, err
}

func (m *MemoryStore) InsertWatchlistItem(ctx context.Context, item models.WatchlistItem) (out models.WatchlistItem, err error) {
	err = m.write(ctx, func(q *memQueries) error {
		out, err = q.InsertWatchlistItem(ctx, item)
		return err
	})
	return out, err
}

func (m *MemoryStore) DeleteWatchlistItem(ctx context.Context, userID, symbol string) error {
	return m.write(ctx, func(q *memQueries) error { return q.DeleteWatchlistItem(ctx, userID, symbol) })
}

// memQueries operates on one memState without locking; the caller holds
// the appropriate MemoryStore lock. Reads run with a nil undo log and
// never mutate.
type memQueries struct {
	state *memState
	undo  []func()
}

func (q *memQueries) onRollback(fn func()) {
	q.undo = append(q.undo, fn)
}

func (q *memQueries) FindWallet(_ context.Context, userID string) (models.Wallet, error) {
	w, ok := q.state.wallets[userID]
	if !ok {
		return models.Wallet{}, ErrNotFound
	}
	return w, nil
}

func (q *memQueries) InsertWallet(_ context.Context, w models.Wallet) error {
	if _, ok := q.state.wallets[w.UserID]; ok {
		return ErrDuplicate
	}
	q.state.wallets[w.UserID] = w
	q.onRollback(func() { delete(q.state.wallets, w.UserID) })
	return nil
}

func (q *memQueries) UpdateWallet(_ context.Context, w models.Wallet) error {
	old, ok := q.state.wallets[w.UserID]
	if !ok {
		return ErrNotFound
	}
	q.state.wallets[w.UserID] = w
	q.onRollback(func() { q.state.wallets[w.UserID] = old })
	return nil
}

func (q *memQueries) FindHolding(_ context.Context, userID, symbol string) (models.Holding, error) {
	h, ok := q.state.holdings[holdingKey{userID, symbol}]
	if !ok {
		return models.Holding{}, ErrNotFound
	}
	return h, nil
}

func (q *memQueries) FindHoldings(_ context.Context, userID string) ([]models.Holding, error) {
	holdings := make([]models.Holding, 0)
	for k, h := range q.state.holdings {
		if k.userID == userID {
			holdings = append(holdings, h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

func (q *memQueries) InsertHolding(_ context.Context, h models.Holding) (models.Holding, error) {
	key := holdingKey{h.UserID, h.Symbol}
	if _, ok := q.state.holdings[key]; ok {
		return models.Holding{}, ErrDuplicate
	}
	prevID := q.state.nextID
	q.state.nextID++
	h.ID = q.state.nextID
	q.state.holdings[key] = h
	q.onRollback(func() {
		delete(q.state.holdings, key)
		q.state.nextID = prevID
	})
	return h, nil
}

func (q *memQueries) UpdateHolding(_ context.Context, h models.Holding) error {
	key := holdingKey{h.UserID, h.Symbol}
	old, ok := q.state.holdings[key]
	if !ok {
		return ErrNotFound
	}
	h.ID = old.ID
	q.state.holdings[key] = h
	q.onRollback(func() { q.state.holdings[key] = old })
	return nil
}

func (q *memQueries) DeleteHolding(_ context.Context, userID, symbol string) error {
	key := holdingKey{userID, symbol}
	old, ok := q.state.holdings[key]
	if !ok {
		return ErrNotFound
	}
	delete(q.state.holdings, key)
	q.onRollback(func() { q.state.holdings[key] = old })
	return nil
}

func (q *memQueries) InsertTransaction(_ context.Context, t models.Transaction) error {
	if _, ok := q.state.txIDs[t.ID]; ok {
		return ErrDuplicate
	}
	prev := q.state.transactions[t.UserID]
	q.state.transactions[t.UserID] = append(prev, t)
	q.state.txIDs[t.ID] = struct{}{}
	q.onRollback(func() {
		delete(q.state.txIDs, t.ID)
		if len(prev) == 0 {
			delete(q.state.transactions, t.UserID)
			return
		}
		q.state.transactions[t.UserID] = prev
	})
	return nil
}

func (q *memQueries) FindTransactions(_ context.Context, userID string, skip, limit int) ([]models.Transaction, error) {
	mine := append([]models.Transaction(nil), q.state.transactions[userID]...)
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].Date.Equal(mine[j].Date) {
			return mine[i].Date.After(mine[j].Date)
		}
		return mine[i].ID > mine[j].ID
	})

	page := make([]models.Transaction, 0)
	if skip >= len(mine) {
		return page, nil
	}
	end := len(mine)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return append(page, mine[skip:end]...), nil
}

func (q *memQueries) CountTransactions(_ context.Context, userID string) (int64, error) {
	return int64(len(q.state.transactions[userID])), nil
}

func (q *memQueries) FindWatchlist(_ context.Context, userID string) ([]models.WatchlistItem, error) {
	items := make([]models.WatchlistItem, 0)
	for k, item := range q.state.watchlist {
		if k.userID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (q *memQueries) FindWatchlistItem(_ context.Context, userID, symbol string) (models.WatchlistItem, error) {
	item, ok := q.state.watchlist[holdingKey{userID, symbol}]
	if !ok {
		return models.WatchlistItem{}, ErrNotFound
	}
	return item, nil
}

func (q *memQueries) InsertWatchlistItem(_ context.Context, item models.WatchlistItem) (models.WatchlistItem, error) {
	key := holdingKey{item.UserID, item.Symbol}
	if _, ok := q.state.watchlist[key]; ok {
		return models.WatchlistItem{}, ErrDuplicate
	}
	prevID := q.state.nextID
	q.state.nextID++
	item.ID = q.state.nextID
	q.state.watchlist[key] = item
	q.onRollback(func() {
		delete(q.state.watchlist, key)
		q.state.nextID = prevID
	})
	return item, nil
}

func (q *memQueries) DeleteWatchlistItem(_ context.Context, userID, symbol string) error {
	key := holdingKey{userID, symbol}
	old, ok := q.state.watchlist[key]
	if !ok {
		return ErrNotFound
	}
	delete(q.state.watchlist, key)
	q.onRollback(func() { q.state.watchlist[key] = old })
	return nil
}
