package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price_alert_backend/models"
	"price_alert_backend/services/marketdata"
)

type stubFetcher struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  []string
}

func (s *stubFetcher) Fetch(ctx context.Context, symbol string, class models.AssetClass) (*marketdata.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, string(class)+":"+symbol)
	if err, ok := s.errs[symbol]; ok {
		return nil, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrSymbolNotFound, symbol)
	}
	return &marketdata.Quote{Symbol: symbol, AssetClass: class, Price: price, Source: "binance"}, nil
}

func newMarketRouter(fetcher PriceFetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	mc := NewMarketController(fetcher)
	router.GET("/price/:symbol", mc.GetPrice)
	router.POST("/prices", mc.GetPrices)
	router.GET("/validate/:symbol", mc.ValidateSymbol)
	return router
}

func doRequest(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetPrice(t *testing.T) {
	fetcher := &stubFetcher{
		prices: map[string]decimal.Decimal{"BTC": decimal.RequireFromString("42350.75")},
		errs:   map[string]error{"ETH": fmt.Errorf("%w: timeout", marketdata.ErrSourceUnavailable)},
	}
	router := newMarketRouter(fetcher)

	tests := []struct {
		name   string
		target string
		status int
		error  string
	}{
		{"found", "/price/btc?asset_type=crypto", http.StatusOK, ""},
		{"equity alias", "/price/btc?asset_type=equity", http.StatusOK, ""},
		{"unknown symbol", "/price/NOPE?asset_type=crypto", http.StatusNotFound, "symbol_not_found"},
		{"source down", "/price/ETH?asset_type=crypto", http.StatusServiceUnavailable, "price_source_unavailable"},
		{"bad asset type", "/price/BTC?asset_type=forex", http.StatusBadRequest, "invalid_asset_type"},
		{"missing asset type", "/price/BTC", http.StatusBadRequest, "invalid_asset_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.error != "" {
				assert.Equal(t, tt.error, body["error"])
				return
			}
			assert.Equal(t, "BTC", body["symbol"])
			assert.Equal(t, "42350.75", body["price"])
			assert.Equal(t, "binance", body["source"])
		})
	}
}

func TestGetPrices(t *testing.T) {
	fetcher := &stubFetcher{
		prices: map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(42000),
			"ETH": decimal.NewFromInt(2500),
		},
		errs: map[string]error{"SOL": marketdata.ErrSourceUnavailable},
	}
	router := newMarketRouter(fetcher)

	w := doRequest(router, http.MethodPost, "/prices",
		`{"symbols":["btc","ETH","BTC","sol","doge"],"asset_type":"crypto"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Prices []marketdata.Quote `json:"prices"`
		Errors map[string]string  `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	require.Len(t, body.Prices, 2)
	assert.Equal(t, "BTC", body.Prices[0].Symbol)
	assert.Equal(t, "ETH", body.Prices[1].Symbol)
	assert.Equal(t, map[string]string{
		"SOL":  "price_source_unavailable",
		"DOGE": "symbol_not_found",
	}, body.Errors)
	assert.Len(t, fetcher.calls, 4)
}

func TestGetPricesRejectsBadRequests(t *testing.T) {
	router := newMarketRouter(&stubFetcher{})

	w := doRequest(router, http.MethodPost, "/prices", `{"symbols":[],"asset_type":"crypto"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/prices", `{"symbols":["BTC"],"asset_type":"bond"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/prices", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateSymbol(t *testing.T) {
	fetcher := &stubFetcher{
		prices: map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(190)},
		errs:   map[string]error{"MSFT": marketdata.ErrSourceUnavailable},
	}
	router := newMarketRouter(fetcher)

	w := doRequest(router, http.MethodGet, "/validate/aapl?asset_type=stock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"symbol":"AAPL","asset_type":"stock","valid":true}`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/validate/ZZZZ?asset_type=stock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"symbol":"ZZZZ","asset_type":"stock","valid":false}`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/validate/MSFT?asset_type=stock", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func jsonDecode(resp *http.Response, out interface{}) error {
	return json.NewDecoder(resp.Body).Decode(out)
}
