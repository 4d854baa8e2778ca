package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"price_alert_backend/metrics"
	"price_alert_backend/models"
)

// Default gateway settings
const (
	DefaultCacheTTL     = 5 * time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// GatewayConfig holds the gateway tunables
type GatewayConfig struct {
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// Gateway resolves a current price for (symbol, asset class) through the cache and
// then the ordered provider chain of that asset class.
type Gateway struct {
	chains map[models.AssetClass][]Provider
	cache  Cache
	cfg    GatewayConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewGateway creates a gateway. A nil cache disables caching.
func NewGateway(chains map[models.AssetClass][]Provider, cache Cache, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		chains: chains,
		cache:  cache,
		cfg:    cfg,
		logger: logger.Named("gateway"),
		now:    time.Now,
	}
}

// Fetch returns the current quote for a symbol.
// Providers are tried strictly in order and the first success wins.
func (g *Gateway) Fetch(ctx context.Context, symbol string, class models.AssetClass) (*Quote, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrSymbolNotFound)
	}

	chain, ok := g.chains[class]
	if !ok || len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAssetClass, class)
	}

	if quote := g.fromCache(ctx, symbol, class); quote != nil {
		return quote, nil
	}

	var errs []error
	notFound := 0
	for _, provider := range chain {
		quote, err := g.fetchFrom(ctx, provider, symbol)
		if err == nil {
			quote.Symbol = symbol
			quote.AssetClass = class
			g.toCache(ctx, quote)
			return quote, nil
		}

		if errors.Is(err, ErrSymbolNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		g.logger.Debug("provider_fetch_failed",
			zap.String("provider", provider.Name()),
			zap.String("symbol", symbol),
			zap.Error(err),
		)

		// The caller gave up; do not burn the rest of the chain
		if ctx.Err() != nil {
			break
		}
	}

	if notFound == len(chain) {
		return nil, fmt.Errorf("%w: %s %s", ErrSymbolNotFound, class, symbol)
	}
	return nil, fmt.Errorf("%w: %s %s: %w", ErrSourceUnavailable, class, symbol, errors.Join(errs...))
}

// fetchFrom bounds a single provider call by the per-fetch timeout
func (g *Gateway) fetchFrom(ctx context.Context, provider Provider, symbol string) (*Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	quote, err := provider.Fetch(fetchCtx, symbol)
	metrics.PriceProviderRequestDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.PriceProviderRequestsTotal.WithLabelValues(provider.Name(), "error").Inc()
		return nil, err
	case quote == nil || !quote.Price.IsPositive():
		metrics.PriceProviderRequestsTotal.WithLabelValues(provider.Name(), "empty").Inc()
		return nil, fmt.Errorf("%w: empty price", ErrSymbolNotFound)
	}

	metrics.PriceProviderRequestsTotal.WithLabelValues(provider.Name(), "ok").Inc()
	if quote.Source == "" {
		quote.Source = provider.Name()
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = g.now().UTC()
	}
	return quote, nil
}

func (g *Gateway) fromCache(ctx context.Context, symbol string, class models.AssetClass) *Quote {
	if g.cache == nil {
		return nil
	}

	price, ok, err := g.cache.Get(ctx, class, symbol)
	if err != nil {
		metrics.PriceCacheLookups.WithLabelValues("error").Inc()
		g.logger.Warn("cache_read_error", zap.String("symbol", symbol), zap.Error(err))
		return nil
	}
	if !ok {
		metrics.PriceCacheLookups.WithLabelValues("miss").Inc()
		return nil
	}

	metrics.PriceCacheLookups.WithLabelValues("hit").Inc()
	return &Quote{
		Symbol:     symbol,
		AssetClass: class,
		Price:      price,
		Source:     SourceCache,
		Timestamp:  g.now().UTC(),
	}
}

func (g *Gateway) toCache(ctx context.Context, quote *Quote) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, quote.AssetClass, quote.Symbol, quote.Price, g.cfg.CacheTTL); err != nil {
		g.logger.Warn("cache_write_error", zap.String("symbol", quote.Symbol), zap.Error(err))
	}
}
