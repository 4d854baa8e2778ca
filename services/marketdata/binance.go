package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// binanceInvalidSymbol is the API error code for an unknown trading pair
const binanceInvalidSymbol = -1121

// BinanceProvider reads the spot ticker of the <SYMBOL>USDT pair
type BinanceProvider struct {
	client *binance.Client
	quote  string
}

// NewBinanceProvider creates a provider on the public endpoints.
// An empty baseURL keeps the library default.
func NewBinanceProvider(baseURL string) *BinanceProvider {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	client.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	return &BinanceProvider{client: client, quote: "USDT"}
}

func (p *BinanceProvider) Name() string { return "binance" }

func (p *BinanceProvider) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	pair := symbol + p.quote
	prices, err := p.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, pair)
		}
		return nil, fmt.Errorf("binance ticker %s: %w", pair, err)
	}

	for _, item := range prices {
		if item.Symbol != pair {
			continue
		}
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("binance ticker %s: bad price %q: %w", pair, item.Price, err)
		}
		return &Quote{
			Symbol:    symbol,
			Price:     price,
			Source:    p.Name(),
			Timestamp: time.Now().UTC(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, pair)
}
