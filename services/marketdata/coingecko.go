package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// coinGeckoIDs maps ticker symbols to CoinGecko coin ids
var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"ADA":  "cardano",
	"SOL":  "solana",
	"DOT":  "polkadot",
	"DOGE": "dogecoin",
	"XRP":  "ripple",
}

// CoinGeckoProvider reads the simple price endpoint in USD
type CoinGeckoProvider struct {
	baseURL string
	client  *http.Client
}

func NewCoinGeckoProvider(baseURL string) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

func (p *CoinGeckoProvider) Name() string { return "coingecko" }

func (p *CoinGeckoProvider) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	coinID, ok := coinGeckoIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no coingecko id for %s", ErrSymbolNotFound, symbol)
	}

	query := url.Values{}
	query.Set("ids", coinID)
	query.Set("vs_currencies", "usd")

	var body map[string]map[string]decimal.Decimal
	if err := getJSON(ctx, p.client, p.baseURL+"/simple/price?"+query.Encode(), &body); err != nil {
		return nil, fmt.Errorf("coingecko %s: %w", coinID, err)
	}

	price, ok := body[coinID]["usd"]
	if !ok {
		return nil, fmt.Errorf("%w: coingecko has no usd price for %s", ErrSymbolNotFound, coinID)
	}
	return &Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    p.Name(),
		Timestamp: time.Now().UTC(),
	}, nil
}
