// Package marketdata provides the external market-data providers backing
// the agent's tool capabilities.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one day of price history.
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Dividend is one cash dividend payment.
type Dividend struct {
	ExDate time.Time       `json:"ex_date"`
	Rate   decimal.Decimal `json:"rate"`
}

// Company is descriptive metadata for a listed company.
type Company struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Class    string `json:"class"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

// Provider fetches equity and index data. Implementations must be safe for
// concurrent use; failures are reported as errors and translated into tool
// error results at the capability boundary.
type Provider interface {
	// LatestPrice returns the latest trade price for a ticker.
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// HistoricalBars returns daily bars for the date range, oldest first.
	HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)

	// Dividends returns the cash dividend history, oldest first.
	Dividends(ctx context.Context, symbol string) ([]Dividend, error)

	// IndexLevel returns the latest level for a market index symbol
	// (e.g. ^GSPC, ^DJI, ^IXIC).
	IndexLevel(ctx context.Context, symbol string) (decimal.Decimal, error)

	// CompanyInfo returns descriptive metadata for a ticker.
	CompanyInfo(ctx context.Context, symbol string) (*Company, error)
}

// RateSource fetches currency exchange rates.
type RateSource interface {
	// Rate returns the latest from→to exchange rate.
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}
