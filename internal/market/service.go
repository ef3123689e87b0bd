package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/models"
)

const (
	DefaultQuoteTTL   = 5 * time.Minute
	DefaultHistoryTTL = 24 * time.Hour
)

// Service is the market-data entry point used by the HTTP layer. It caches
// quotes and history, and answers with mock data while the provider is
// rate limited.
type Service struct {
	provider   Provider
	fallback   Provider
	cache      Cache
	logger     *logger.Logger
	quoteTTL   time.Duration
	historyTTL time.Duration
}

type ServiceOption func(*Service)

func WithTTL(quote, history time.Duration) ServiceOption {
	return func(s *Service) {
		if quote > 0 {
			s.quoteTTL = quote
		}
		if history > 0 {
			s.historyTTL = history
		}
	}
}

// WithFallback replaces the Mock used while the provider is rate limited.
func WithFallback(p Provider) ServiceOption {
	return func(s *Service) { s.fallback = p }
}

// NewService builds a Service. A nil cache disables caching.
func NewService(provider Provider, cache Cache, log *logger.Logger, opts ...ServiceOption) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	s := &Service{
		provider:   provider,
		fallback:   NewMock(),
		cache:      cache,
		logger:     log,
		quoteTTL:   DefaultQuoteTTL,
		historyTTL: DefaultHistoryTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search is never cached.
func (s *Service) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.CodeValidation, "query is required")
	}

	results, err := s.provider.Search(ctx, query)
	if errors.Is(err, ErrRateLimited) {
		s.logger.Warn("API limit reached, returning mock search results", zap.String("query", query))
		results, err = s.fallback.Search(ctx, query)
	}
	if err != nil {
		return nil, s.upstream("search", query, err)
	}
	return results, nil
}

func (s *Service) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return models.Quote{}, apperr.New(apperr.CodeValidation, "symbol is required")
	}

	key := "quote:" + symbol
	var cached models.Quote
	if s.cacheGet(ctx, key, &cached) {
		s.logger.Debug("Quote cache hit", zap.String("symbol", symbol))
		return cached, nil
	}

	quote, err := s.provider.Quote(ctx, symbol)
	if errors.Is(err, ErrRateLimited) {
		s.logger.Warn("API limit reached, using mock quote", zap.String("symbol", symbol))
		quote, err = s.fallback.Quote(ctx, symbol)
	}
	if err != nil {
		return models.Quote{}, s.upstream("quote", symbol, err)
	}

	s.cacheSet(ctx, key, quote, s.quoteTTL)
	return quote, nil
}

func (s *Service) History(ctx context.Context, symbol string) ([]models.HistoryPoint, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperr.New(apperr.CodeValidation, "symbol is required")
	}

	key := "history:" + symbol
	var cached []models.HistoryPoint
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	history, err := s.provider.History(ctx, symbol)
	if errors.Is(err, ErrRateLimited) {
		s.logger.Warn("API limit reached, using mock history", zap.String("symbol", symbol))
		history, err = s.fallback.History(ctx, symbol)
	}
	if err != nil {
		return nil, s.upstream("history", symbol, err)
	}
	if history == nil {
		history = []models.HistoryPoint{}
	}

	s.cacheSet(ctx, key, history, s.historyTTL)
	return history, nil
}

func (s *Service) upstream(op, subject string, err error) error {
	if errors.Is(err, ErrSymbolNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, "Stock not found", err)
	}
	s.logger.Error("Market data request failed",
		zap.String("op", op),
		zap.String("subject", subject),
		zap.Error(err))
	return apperr.Wrap(apperr.CodeUpstream, "Market data unavailable", err)
}

// Cache failures only cost a provider round trip, so they are logged and
// otherwise ignored.
func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
