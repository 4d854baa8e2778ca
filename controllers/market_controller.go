package controllers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"price_alert_backend/models"
	"price_alert_backend/services/marketdata"
)

// maxBatchSymbols caps POST /market/prices
const maxBatchSymbols = 50

// PriceFetcher resolves current prices
type PriceFetcher interface {
	Fetch(ctx context.Context, symbol string, class models.AssetClass) (*marketdata.Quote, error)
}

// MarketController serves direct price lookups
type MarketController struct {
	prices PriceFetcher
}

// NewMarketController creates a new market controller
func NewMarketController(prices PriceFetcher) *MarketController {
	return &MarketController{prices: prices}
}

// BatchPriceRequest is the body of POST /market/prices
type BatchPriceRequest struct {
	Symbols   []string `json:"symbols" binding:"required,min=1,max=50,dive,required"`
	AssetType string   `json:"asset_type" binding:"required"`
}

// GetPrice returns the current price of a symbol
// GET /api/v1/market/price/:symbol?asset_type=crypto
func (mc *MarketController) GetPrice(c *gin.Context) {
	class, ok := models.ParseAssetClass(c.Query("asset_type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_asset_type",
			"message": "asset_type must be stock or crypto",
		})
		return
	}

	symbol := models.CanonicalSymbol(c.Param("symbol"))
	quote, err := mc.prices.Fetch(c.Request.Context(), symbol, class)
	if err != nil {
		status, code := priceErrorStatus(err)
		c.JSON(status, gin.H{
			"error":   code,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, quote)
}

// GetPrices returns current prices for several symbols of one asset class.
// Symbols that cannot be priced are listed under "errors".
// POST /api/v1/market/prices
func (mc *MarketController) GetPrices(c *gin.Context) {
	var req BatchPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	class, ok := models.ParseAssetClass(req.AssetType)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_asset_type",
			"message": "asset_type must be stock or crypto",
		})
		return
	}

	symbols := uniqueSymbols(req.Symbols)
	quotes := make([]*marketdata.Quote, len(symbols))
	errs := make([]error, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			quotes[i], errs[i] = mc.prices.Fetch(c.Request.Context(), symbol, class)
		}(i, symbol)
	}
	wg.Wait()

	prices := make([]*marketdata.Quote, 0, len(symbols))
	failed := gin.H{}
	for i, symbol := range symbols {
		if errs[i] != nil {
			_, code := priceErrorStatus(errs[i])
			failed[symbol] = code
			continue
		}
		prices = append(prices, quotes[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"prices": prices,
		"errors": failed,
	})
}

// ValidateSymbol reports whether any provider knows the symbol
// GET /api/v1/market/validate/:symbol?asset_type=stock
func (mc *MarketController) ValidateSymbol(c *gin.Context) {
	class, ok := models.ParseAssetClass(c.Query("asset_type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_asset_type",
			"message": "asset_type must be stock or crypto",
		})
		return
	}

	symbol := models.CanonicalSymbol(c.Param("symbol"))
	_, err := mc.prices.Fetch(c.Request.Context(), symbol, class)
	if err != nil && !errors.Is(err, marketdata.ErrSymbolNotFound) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "price_source_unavailable",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"asset_type": class,
		"valid":      err == nil,
	})
}

func priceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, marketdata.ErrSymbolNotFound):
		return http.StatusNotFound, "symbol_not_found"
	case errors.Is(err, marketdata.ErrUnsupportedAssetClass):
		return http.StatusBadRequest, "invalid_asset_type"
	default:
		return http.StatusServiceUnavailable, "price_source_unavailable"
	}
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = models.CanonicalSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) > maxBatchSymbols {
		out = out[:maxBatchSymbols]
	}
	return out
}
