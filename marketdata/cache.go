package marketdata

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"
)

const (
	priceTTL   = 30 * time.Second
	companyTTL = time.Hour
)

// CachedProvider decorates a Provider with a short-lived ristretto cache for
// the hot read paths. History and dividends pass through uncached: their
// queries are range-dependent and rare.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps a provider with caching.
func NewCachedProvider(inner Provider) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (c *CachedProvider) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "price:" + symbol
	if v, ok := c.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}
	price, err := c.inner.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetWithTTL(key, price, 1, priceTTL)
	return price, nil
}

func (c *CachedProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	return c.inner.HistoricalBars(ctx, symbol, start, end)
}

func (c *CachedProvider) Dividends(ctx context.Context, symbol string) ([]Dividend, error) {
	return c.inner.Dividends(ctx, symbol)
}

func (c *CachedProvider) IndexLevel(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := "index:" + symbol
	if v, ok := c.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}
	level, err := c.inner.IndexLevel(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetWithTTL(key, level, 1, priceTTL)
	return level, nil
}

func (c *CachedProvider) CompanyInfo(ctx context.Context, symbol string) (*Company, error) {
	key := "company:" + symbol
	if v, ok := c.cache.Get(key); ok {
		return v.(*Company), nil
	}
	company, err := c.inner.CompanyInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, company, 1, companyTTL)
	return company, nil
}

// Close releases the cache resources.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
