// Package marketdata fetches current prices from upstream providers with ordered
// fallback and a short-lived cache in front of them.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"price_alert_backend/models"
)

// SourceCache tags quotes served from the price cache
const SourceCache = "cache"

var (
	// ErrSymbolNotFound means no provider recognizes the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrSourceUnavailable means every provider errored or timed out
	ErrSourceUnavailable = errors.New("price source unavailable")
	// ErrUnsupportedAssetClass means no provider chain serves the asset class
	ErrUnsupportedAssetClass = errors.New("unsupported asset class")
)

// Quote is a single price observation from a named source at a point in time
type Quote struct {
	Symbol     string            `json:"symbol"`
	AssetClass models.AssetClass `json:"asset_type"`
	Price      decimal.Decimal   `json:"price"`
	Source     string            `json:"source"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Provider fetches a current price for one symbol from one upstream.
// Implementations return ErrSymbolNotFound when the upstream does not know the symbol.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (*Quote, error)
}
