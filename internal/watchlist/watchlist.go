// Package watchlist keeps the symbols each user follows.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/models"
	"github.com/atharvakonge/papertrade/internal/store"
)

type Service struct {
	store  store.WatchlistQueries
	logger *logger.Logger
	now    func() time.Time
}

func NewService(s store.WatchlistQueries, log *logger.Logger) *Service {
	return &Service{
		store:  s,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the user's watchlist in the order symbols were added.
func (s *Service) List(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeValidation, "user id is required")
	}
	items, err := s.store.FindWatchlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find watchlist: %w", err)
	}
	return items, nil
}

// Add follows symbol. Adding a symbol twice is a conflict.
func (s *Service) Add(ctx context.Context, userID, symbol string) (models.WatchlistItem, error) {
	symbol = models.NormalizeSymbol(symbol)
	if err := models.Validate(models.WatchlistKey{UserID: userID, Symbol: symbol}); err != nil {
		return models.WatchlistItem{}, err
	}

	_, err := s.store.FindWatchlistItem(ctx, userID, symbol)
	if err == nil {
		return models.WatchlistItem{}, errAlreadyWatched()
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.WatchlistItem{}, fmt.Errorf("find watchlist item: %w", err)
	}

	item, err := s.store.InsertWatchlistItem(ctx, models.WatchlistItem{
		UserID:  userID,
		Symbol:  symbol,
		AddedAt: s.now(),
	})
	// Lost a race with a concurrent add.
	if errors.Is(err, store.ErrDuplicate) {
		return models.WatchlistItem{}, errAlreadyWatched()
	}
	if err != nil {
		return models.WatchlistItem{}, fmt.Errorf("insert watchlist item: %w", err)
	}

	s.logger.Info("Added to watchlist", zap.String("user_id", userID), zap.String("symbol", symbol))
	return item, nil
}

// Remove unfollows symbol. Removing a symbol that is not watched succeeds.
func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if err := models.Validate(models.WatchlistKey{UserID: userID, Symbol: symbol}); err != nil {
		return err
	}

	err := s.store.DeleteWatchlistItem(ctx, userID, symbol)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete watchlist item: %w", err)
	}
	return nil
}

func errAlreadyWatched() error {
	return apperr.New(apperr.CodeConflict, "Stock already in watchlist")
}
