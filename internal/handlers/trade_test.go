package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/atharvakonge/papertrade/internal/apperr"
	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/ledger"
	"github.com/atharvakonge/papertrade/internal/logger"
	"github.com/atharvakonge/papertrade/internal/market"
	"github.com/atharvakonge/papertrade/internal/middleware"
	"github.com/atharvakonge/papertrade/internal/mocks"
	"github.com/atharvakonge/papertrade/internal/models"
	"github.com/atharvakonge/papertrade/internal/store"
	"github.com/atharvakonge/papertrade/internal/watchlist"
)

const testSecret = "handlers-test-secret"

var testAuth = config.AuthConfig{JWTSecret: testSecret}

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	handler   *Handler
	store     *store.MemoryStore
	processor *ledger.TradeProcessor
}

type serverOption func(*serverConfig)

type serverConfig struct {
	provider market.Provider
	limiter  gin.HandlerFunc
	stream   config.StreamConfig
}

func withProvider(p market.Provider) serverOption {
	return func(c *serverConfig) { c.provider = p }
}

func withLimiter(l gin.HandlerFunc) serverOption {
	return func(c *serverConfig) { c.limiter = l }
}

func withStream(s config.StreamConfig) serverOption {
	return func(c *serverConfig) { c.stream = s }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	cfg := serverConfig{
		provider: market.NewMock(),
		stream:   config.StreamConfig{Interval: 10 * time.Millisecond, MaxSymbols: 5},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.Nop()
	s := store.NewMemoryStore()
	l := ledger.New(s, log)
	tp := ledger.NewProcessor(l, 5, 100, log)
	tp.Start()
	t.Cleanup(tp.Stop)

	h := New(l, tp, market.NewService(cfg.provider, nil, log), watchlist.NewService(s, log), log, cfg.stream)
	return &testServer{
		router:    NewRouter(h, log, testAuth, cfg.limiter),
		handler:   h,
		store:     s,
		processor: tp,
	}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code apperr.Code) middleware.ErrorResponse {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	body := decode[middleware.ErrorResponse](t, w)
	assert.Equal(t, code, body.Code)
	return body
}

func TestRequiresAuthentication(t *testing.T) {
	ts := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/portfolio"},
		{http.MethodPost, "/api/trades/buy"},
		{http.MethodGet, "/api/transactions"},
		{http.MethodGet, "/api/stocks/AAPL/quote"},
		{http.MethodGet, "/api/watchlist"},
	} {
		w := ts.do(t, route.method, route.path, "", nil)
		assertError(t, w, http.StatusUnauthorized, apperr.CodeUnauthorized)
	}
}

func TestOpenAccount(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/account", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	wallet := decode[models.Wallet](t, w)
	assert.Equal(t, "alice", wallet.UserID)
	assert.Equal(t, 10000.0, wallet.Cash)
}

func TestBuySellFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/trades/buy", "alice", models.TradeRequest{Symbol: "aapl", Quantity: 10, Price: 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[models.TradeReceipt](t, w)
	assert.Equal(t, "AAPL", receipt.Symbol)
	assert.Equal(t, 9000.0, receipt.Cash)
	assert.NotEmpty(t, receipt.TransactionID)

	w = ts.do(t, http.MethodPost, "/api/trades/buy", "alice", models.TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 200})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/portfolio", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	portfolio := decode[models.PortfolioResponse](t, w)
	require.Len(t, portfolio.Holdings, 1)
	assert.Equal(t, int64(20), portfolio.Holdings[0].Quantity)
	assert.Equal(t, 150.0, portfolio.Holdings[0].AvgPrice)
	assert.Equal(t, 7000.0, portfolio.Cash)

	w = ts.do(t, http.MethodPost, "/api/trades/sell", "alice", models.TradeRequest{Symbol: "AAPL", Quantity: 20, Price: 180})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10600.0, decode[models.TradeReceipt](t, w).Cash)

	w = ts.do(t, http.MethodGet, "/api/portfolio", "alice", nil)
	portfolio = decode[models.PortfolioResponse](t, w)
	assert.Empty(t, portfolio.Holdings)
	assert.Equal(t, 10600.0, portfolio.Cash)

	// Other users are unaffected.
	w = ts.do(t, http.MethodGet, "/api/portfolio", "bob", nil)
	assert.Equal(t, 10000.0, decode[models.PortfolioResponse](t, w).Cash)
}

func TestBuyStock_InsufficientFunds(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/trades/buy", "pooruser", models.TradeRequest{Symbol: "AAPL", Quantity: 1000, Price: 150})
	body := assertError(t, w, http.StatusBadRequest, apperr.CodeInsufficientFunds)
	assert.Equal(t, "Insufficient funds", body.Error)

	w = ts.do(t, http.MethodGet, "/api/portfolio", "pooruser", nil)
	assert.Equal(t, 10000.0, decode[models.PortfolioResponse](t, w).Cash)
}

func TestSellStock_InsufficientShares(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/trades/buy", "seller", models.TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 100})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/trades/sell", "seller", models.TradeRequest{Symbol: "AAPL", Quantity: 6, Price: 100})
	body := assertError(t, w, http.StatusBadRequest, apperr.CodeInsufficientShares)
	assert.Equal(t, "Insufficient shares", body.Error)

	w = ts.do(t, http.MethodPost, "/api/trades/sell", "seller", models.TradeRequest{Symbol: "MSFT", Quantity: 1, Price: 100})
	assertError(t, w, http.StatusBadRequest, apperr.CodeInsufficientShares)
}

func TestTrade_InvalidRequest(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"symbol":`},
		{"missing symbol", map[string]any{"quantity": 1, "price": 10}},
		{"zero quantity", map[string]any{"symbol": "AAPL", "quantity": 0, "price": 10}},
		{"negative price", map[string]any{"symbol": "AAPL", "quantity": 1, "price": -5}},
		{"fractional quantity", `{"symbol":"AAPL","quantity":1.5,"price":10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/trades/buy", "alice", tt.body)
			assertError(t, w, http.StatusBadRequest, apperr.CodeValidation)
		})
	}
}

func TestGetTransactions(t *testing.T) {
	ts := newTestServer(t)

	for i := 1; i <= 12; i++ {
		w := ts.do(t, http.MethodPost, "/api/trades/buy", "trader", models.TradeRequest{Symbol: "AAPL", Quantity: int64(i), Price: 1})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/transactions", "trader", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.TransactionPage](t, w)
	assert.Equal(t, int64(12), page.TotalCount)
	assert.Len(t, page.Transactions, ledger.DefaultPageLimit)

	w = ts.do(t, http.MethodGet, "/api/transactions?limit=5&skip=10", "trader", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[models.TransactionPage](t, w)
	assert.Len(t, page.Transactions, 2)

	for _, q := range []string{"limit=0", "limit=101", "skip=-1", "limit=abc"} {
		w = ts.do(t, http.MethodGet, "/api/transactions?"+q, "trader", nil)
		assertError(t, w, http.StatusBadRequest, apperr.CodeValidation)
	}
}

func TestConcurrentBuying_SameUser(t *testing.T) {
	ts := newTestServer(t)

	numTrades := 10
	var wg sync.WaitGroup
	codes := make(chan int, numTrades)

	for i := 0; i < numTrades; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ts.do(t, http.MethodPost, "/api/trades/buy", "concurrent_user", models.TradeRequest{Symbol: "AAPL", Quantity: 1, Price: 100})
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	w := ts.do(t, http.MethodGet, "/api/portfolio", "concurrent_user", nil)
	portfolio := decode[models.PortfolioResponse](t, w)
	assert.Equal(t, 10000.0-100.0*float64(numTrades), portfolio.Cash, "race condition detected")
	require.Len(t, portfolio.Holdings, 1)
	assert.Equal(t, int64(numTrades), portfolio.Holdings[0].Quantity)
}

func TestTrade_ProcessorStopped(t *testing.T) {
	ts := newTestServer(t)
	ts.processor.Stop()

	w := ts.do(t, http.MethodPost, "/api/trades/buy", "alice", models.TradeRequest{Symbol: "AAPL", Quantity: 1, Price: 1})
	assertError(t, w, http.StatusInternalServerError, apperr.CodeInternal)
}

func TestStocks_MockProvider(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/stocks/aapl/quote", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	quote := decode[models.Quote](t, w)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, market.MockPrice("AAPL"), quote.Price)

	w = ts.do(t, http.MethodGet, "/api/stocks/msft/history", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Symbol  string                `json:"symbol"`
		History []models.HistoryPoint `json:"history"`
	}](t, w)
	assert.Equal(t, "MSFT", history.Symbol)
	assert.Len(t, history.History, market.HistoryDays)

	w = ts.do(t, http.MethodGet, "/api/stocks/search?q=tesla", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	search := decode[struct {
		Results []models.SearchResult `json:"results"`
	}](t, w)
	require.Len(t, search.Results, 1)
	assert.Equal(t, "TSLA", search.Results[0].Symbol)

	w = ts.do(t, http.MethodGet, "/api/stocks/search", "alice", nil)
	assertError(t, w, http.StatusBadRequest, apperr.CodeValidation)
}

func TestStocks_ProviderErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	ts := newTestServer(t, withProvider(provider))

	provider.EXPECT().Quote(gomock.Any(), "NOPE").Return(models.Quote{}, market.ErrSymbolNotFound)
	provider.EXPECT().Quote(gomock.Any(), "IBM").Return(models.Quote{}, errors.New("dial tcp: timeout"))

	w := ts.do(t, http.MethodGet, "/api/stocks/nope/quote", "alice", nil)
	body := assertError(t, w, http.StatusNotFound, apperr.CodeNotFound)
	assert.Equal(t, "Stock not found", body.Error)

	w = ts.do(t, http.MethodGet, "/api/stocks/IBM/quote", "alice", nil)
	body = assertError(t, w, http.StatusBadGateway, apperr.CodeUpstream)
	assert.NotContains(t, body.Error, "dial tcp")
}

func TestWatchlist(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/watchlist", "alice", models.WatchlistRequest{Symbol: "aapl"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "AAPL", decode[models.WatchlistItem](t, w).Symbol)

	w = ts.do(t, http.MethodPost, "/api/watchlist", "alice", models.WatchlistRequest{Symbol: "AAPL"})
	body := assertError(t, w, http.StatusConflict, apperr.CodeConflict)
	assert.Equal(t, "Stock already in watchlist", body.Error)

	w = ts.do(t, http.MethodPost, "/api/watchlist", "alice", map[string]string{})
	assertError(t, w, http.StatusBadRequest, apperr.CodeValidation)

	w = ts.do(t, http.MethodPost, "/api/watchlist", "alice", models.WatchlistRequest{Symbol: "TSLA"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/watchlist", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items []models.WatchlistItem `json:"items"`
	}](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "AAPL", list.Items[0].Symbol)
	assert.Equal(t, "TSLA", list.Items[1].Symbol)

	w = ts.do(t, http.MethodDelete, "/api/watchlist/aapl", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/watchlist/aapl", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/watchlist", "alice", nil)
	list = decode[struct {
		Items []models.WatchlistItem `json:"items"`
	}](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "TSLA", list.Items[0].Symbol)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.handler.WithHealthCheck(func(context.Context) error { return errors.New("db down") })
	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNoRoute(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/nope", "", nil)
	assertError(t, w, http.StatusNotFound, apperr.CodeNotFound)
}

func TestRateLimitedRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	limiter := middleware.RateLimit(rdb, config.RateLimitConfig{Limit: 2, Window: time.Minute}, logger.Nop())
	ts := newTestServer(t, withLimiter(limiter))

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/portfolio", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/portfolio", "alice", nil).Code)
	assertError(t, ts.do(t, http.MethodGet, "/api/portfolio", "alice", nil), http.StatusTooManyRequests, apperr.CodeRateLimited)

	assert.True(t, mr.Exists("ratelimit:user:alice"))
}

func TestWebSocketPrices(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/prices?symbols=aapl"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	base := market.MockPrice("AAPL")
	prev := base
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var update models.PriceUpdate
		require.NoError(t, conn.ReadJSON(&update))

		assert.Equal(t, "AAPL", update.Symbol)
		assert.InDelta(t, prev, update.Price, prev*0.02+1e-9)
		assert.LessOrEqual(t, update.Change, 2.0)
		assert.GreaterOrEqual(t, update.Change, -2.0)
		prev = update.Price
	}
}

func TestWebSocketPrices_TooManySymbols(t *testing.T) {
	ts := newTestServer(t, withStream(config.StreamConfig{Interval: time.Second, MaxSymbols: 2}))

	w := ts.do(t, http.MethodGet, "/ws/prices?symbols=A,B,C", "", nil)
	assertError(t, w, http.StatusBadRequest, apperr.CodeValidation)
}

func TestStreamSymbols(t *testing.T) {
	h := &Handler{stream: config.StreamConfig{MaxSymbols: 3}}

	got, err := h.streamSymbols("")
	require.NoError(t, err)
	assert.Equal(t, defaultStreamSymbols, got)

	got, err = h.streamSymbols(" msft, aapl ,MSFT,, ")
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT", "AAPL"}, got)

	_, err = h.streamSymbols(fmt.Sprintf("%s,%s,%s,%s", "A", "B", "C", "D"))
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
