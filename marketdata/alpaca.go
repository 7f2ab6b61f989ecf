package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// indexProxies maps market index symbols to the ETF tracking them. Alpaca
// serves equities only, so index levels are read from the tracker.
var indexProxies = map[string]string{
	"^GSPC": "SPY",
	"^DJI":  "DIA",
	"^IXIC": "QQQ",
	"SPX":   "SPY",
	"DJIA":  "DIA",
	"COMP":  "QQQ",
}

// dividendLookback bounds the dividend history query.
const dividendLookback = 5 * 365 * 24 * time.Hour

// AlpacaProvider implements Provider on the Alpaca market-data and trading
// APIs. Credentials come from the APCA_* environment variables.
type AlpacaProvider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

var _ Provider = (*AlpacaProvider)(nil)

// NewAlpacaProvider returns a new Alpaca-backed provider.
func NewAlpacaProvider() *AlpacaProvider {
	return &AlpacaProvider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
	}
}

// LatestPrice returns the latest trade price for a ticker.
func (p *AlpacaProvider) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest trade for %s: %w", symbol, err)
	}
	if trade == nil {
		return decimal.Zero, fmt.Errorf("no recent trading data for %s", symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// HistoricalBars returns daily bars for the range, oldest first.
func (p *AlpacaProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	bars, err := p.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("bars for %s: %w", symbol, err)
	}

	result := make([]Bar, 0, len(bars))
	for _, b := range bars {
		result = append(result, Bar{
			Time:   b.Timestamp,
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: int64(b.Volume),
		})
	}
	return result, nil
}

// Dividends returns cash dividends over the trailing five years.
func (p *AlpacaProvider) Dividends(ctx context.Context, symbol string) ([]Dividend, error) {
	now := time.Now()
	actions, err := p.mdClient.GetCorporateActions(marketdata.GetCorporateActionsRequest{
		Symbols: []string{symbol},
		Types:   []string{"cash_dividend"},
		Start:   civil.DateOf(now.Add(-dividendLookback)),
		End:     civil.DateOf(now),
	})
	if err != nil {
		return nil, fmt.Errorf("corporate actions for %s: %w", symbol, err)
	}

	result := make([]Dividend, 0, len(actions.CashDividends))
	for _, d := range actions.CashDividends {
		result = append(result, Dividend{
			ExDate: d.ExDate.In(time.UTC),
			Rate:   decimal.NewFromFloat(d.Rate),
		})
	}
	return result, nil
}

// IndexLevel resolves an index symbol through its ETF proxy.
func (p *AlpacaProvider) IndexLevel(ctx context.Context, symbol string) (decimal.Decimal, error) {
	proxy, ok := indexProxies[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown index symbol %q", symbol)
	}
	return p.LatestPrice(ctx, proxy)
}

// CompanyInfo returns asset metadata for a ticker.
func (p *AlpacaProvider) CompanyInfo(ctx context.Context, symbol string) (*Company, error) {
	asset, err := p.tradeClient.GetAsset(symbol)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", symbol, err)
	}
	return &Company{
		Symbol:   asset.Symbol,
		Name:     asset.Name,
		Exchange: asset.Exchange,
		Class:    string(asset.Class),
		Status:   string(asset.Status),
		Tradable: asset.Tradable,
	}, nil
}
