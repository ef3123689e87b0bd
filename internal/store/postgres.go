package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/lib/pq"

	"github.com/atharvakonge/papertrade/internal/models"
)

var _ Store = (*PostgresStore)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the collections in postgres tables wallets,
// portfolios, transactions and watchlists.
type PostgresStore struct {
	*pgQueries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		pgQueries: newPgQueries(db, false),
		db:        db,
	}
}

// WithTx runs fn in a serializable-safe transaction. crdb.ExecuteTx
// retries fn when postgres reports a serialization failure (40001), so fn
// must not have side effects outside the transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return crdb.ExecuteTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return fn(newPgQueries(tx, true))
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgQueries struct {
	run  runner
	sq   squirrel.StatementBuilderType
	lock bool // append FOR UPDATE to single-row reads
}

func newPgQueries(r runner, lock bool) *pgQueries {
	return &pgQueries{
		run:  r,
		sq:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		lock: lock,
	}
}

func (q *pgQueries) forUpdate(b squirrel.SelectBuilder) squirrel.SelectBuilder {
	if q.lock {
		return b.Suffix("FOR UPDATE")
	}
	return b
}

func (q *pgQueries) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	res, err := q.run.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// execOne is exec for statements that must touch exactly one row.
func (q *pgQueries) execOne(ctx context.Context, b squirrel.Sqlizer) error {
	res, err := q.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) queryRow(ctx context.Context, b squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return q.run.QueryRowContext(ctx, query, args...), nil
}

func (q *pgQueries) query(ctx context.Context, b squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.run.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// wallets

func (q *pgQueries) FindWallet(ctx context.Context, userID string) (models.Wallet, error) {
	row, err := q.queryRow(ctx, q.forUpdate(q.sq.
		Select("user_id", "cash", "created_at", "updated_at").
		From("wallets").
		Where(squirrel.Eq{"user_id": userID})))
	if err != nil {
		return models.Wallet{}, err
	}

	var w models.Wallet
	if err := row.Scan(&w.UserID, &w.Cash, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return models.Wallet{}, translate(err)
	}
	return w, nil
}

func (q *pgQueries) InsertWallet(ctx context.Context, w models.Wallet) error {
	_, err := q.exec(ctx, q.sq.
		Insert("wallets").
		Columns("user_id", "cash", "created_at", "updated_at").
		Values(w.UserID, w.Cash, w.CreatedAt, w.UpdatedAt))
	return err
}

func (q *pgQueries) UpdateWallet(ctx context.Context, w models.Wallet) error {
	return q.execOne(ctx, q.sq.
		Update("wallets").
		Set("cash", w.Cash).
		Set("updated_at", w.UpdatedAt).
		Where(squirrel.Eq{"user_id": w.UserID}))
}

// holdings

var holdingColumns = []string{"id", "user_id", "symbol", "quantity", "avg_price", "updated_at"}

func scanHolding(s interface{ Scan(...any) error }) (models.Holding, error) {
	var h models.Holding
	err := s.Scan(&h.ID, &h.UserID, &h.Symbol, &h.Quantity, &h.AvgPrice, &h.UpdatedAt)
	return h, err
}

func (q *pgQueries) FindHolding(ctx context.Context, userID, symbol string) (models.Holding, error) {
	row, err := q.queryRow(ctx, q.forUpdate(q.sq.
		Select(holdingColumns...).
		From("portfolios").
		Where(squirrel.Eq{"user_id": userID, "symbol": symbol})))
	if err != nil {
		return models.Holding{}, err
	}

	h, err := scanHolding(row)
	if err != nil {
		return models.Holding{}, translate(err)
	}
	return h, nil
}

func (q *pgQueries) FindHoldings(ctx context.Context, userID string) ([]models.Holding, error) {
	rows, err := q.query(ctx, q.sq.
		Select(holdingColumns...).
		From("portfolios").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("symbol"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (q *pgQueries) InsertHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	row, err := q.queryRow(ctx, q.sq.
		Insert("portfolios").
		Columns("user_id", "symbol", "quantity", "avg_price", "updated_at").
		Values(h.UserID, h.Symbol, h.Quantity, h.AvgPrice, h.UpdatedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return models.Holding{}, err
	}
	if err := row.Scan(&h.ID); err != nil {
		return models.Holding{}, translate(err)
	}
	return h, nil
}

func (q *pgQueries) UpdateHolding(ctx context.Context, h models.Holding) error {
	return q.execOne(ctx, q.sq.
		Update("portfolios").
		Set("quantity", h.Quantity).
		Set("avg_price", h.AvgPrice).
		Set("updated_at", h.UpdatedAt).
		Where(squirrel.Eq{"user_id": h.UserID, "symbol": h.Symbol}))
}

func (q *pgQueries) DeleteHolding(ctx context.Context, userID, symbol string) error {
	return q.execOne(ctx, q.sq.
		Delete("portfolios").
		Where(squirrel.Eq{"user_id": userID, "symbol": symbol}))
}

// transactions

func (q *pgQueries) InsertTransaction(ctx context.Context, t models.Transaction) error {
	_, err := q.exec(ctx, q.sq.
		Insert("transactions").
		Columns("id", "user_id", "type", "symbol", "quantity", "price", "total", "created_at").
		Values(t.ID, t.UserID, string(t.Type), t.Symbol, t.Quantity, t.Price, t.Total, t.Date))
	return err
}

func (q *pgQueries) FindTransactions(ctx context.Context, userID string, skip, limit int) ([]models.Transaction, error) {
	b := q.sq.
		Select("id", "user_id", "type", "symbol", "quantity", "price", "total", "created_at").
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(skip))
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := q.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		var tradeType string
		if err := rows.Scan(&t.ID, &t.UserID, &tradeType, &t.Symbol, &t.Quantity, &t.Price, &t.Total, &t.Date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = models.TradeType(tradeType)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (q *pgQueries) CountTransactions(ctx context.Context, userID string) (int64, error) {
	row, err := q.queryRow(ctx, q.sq.
		Select("COUNT(*)").
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}))
	if err != nil {
		return 0, err
	}

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// watchlists

func (q *pgQueries) FindWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	rows, err := q.query(ctx, q.sq.
		Select("id", "user_id", "symbol", "added_at").
		From("watchlists").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("added_at", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.WatchlistItem, 0)
	for rows.Next() {
		var item models.WatchlistItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Symbol, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *pgQueries) FindWatchlistItem(ctx context.Context, userID, symbol string) (models.WatchlistItem, error) {
	row, err := q.queryRow(ctx, q.forUpdate(q.sq.
		Select("id", "user_id", "symbol", "added_at").
		From("watchlists").
		Where(squirrel.Eq{"user_id": userID, "symbol": symbol})))
	if err != nil {
		return models.WatchlistItem{}, err
	}

	var item models.WatchlistItem
	if err := row.Scan(&item.ID, &item.UserID, &item.Symbol, &item.AddedAt); err != nil {
		return models.WatchlistItem{}, translate(err)
	}
	return item, nil
}

func (q *pgQueries) InsertWatchlistItem(ctx context.Context, item models.WatchlistItem) (models.WatchlistItem, error) {
	row, err := q.queryRow(ctx, q.sq.
		Insert("watchlists").
		Columns("user_id", "symbol", "added_at").
		Values(item.UserID, item.Symbol, item.AddedAt).
		Suffix("RETURNING id"))
	if err != nil {
		return models.WatchlistItem{}, err
	}
	if err := row.Scan(&item.ID); err != nil {
		return models.WatchlistItem{}, translate(err)
	}
	return item, nil
}

func (q *pgQueries) DeleteWatchlistItem(ctx context.Context, userID, symbol string) error {
	return q.execOne(ctx, q.sq.
		Delete("watchlists").
		Where(squirrel.Eq{"user_id": userID, "symbol": symbol}))
}
