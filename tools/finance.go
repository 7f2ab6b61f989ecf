package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/finbotlabs/finbot/core"
	"github.com/finbotlabs/finbot/marketdata"
)

const dateLayout = "2006-01-02"

// MarketTools creates the equity and index capabilities over the given
// provider.
func MarketTools(provider marketdata.Provider) []core.Tool {
	return []core.Tool{
		&stockPriceTool{provider: provider},
		&historicalPricesTool{provider: provider},
		&dividendsTool{provider: provider},
		&marketIndexTool{provider: provider},
		&companyInfoTool{provider: provider},
	}
}

// CurrencyTool creates the exchange-rate capability over the given source.
func CurrencyTool(rates marketdata.RateSource) core.Tool {
	return &currencyRateTool{rates: rates}
}

// --- get_stock_price ---

type stockPriceTool struct {
	provider marketdata.Provider
}

func (t *stockPriceTool) Name() string { return "get_stock_price" }

func (t *stockPriceTool) Description() string {
	return "Fetch the current stock price for a given ticker symbol."
}

func (t *stockPriceTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"ticker": StringProperty("Ticker symbol (e.g. AAPL)"),
	}, "ticker")
}

func (t *stockPriceTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	ticker := normalizeSymbol(input.Ticker)
	if ticker == "" {
		return core.Fail("ticker is required"), nil
	}

	price, err := t.provider.LatestPrice(ctx, ticker)
	if err != nil {
		return core.Fail(fmt.Sprintf("no recent trading data for %s: %v", ticker, err)), nil
	}
	return core.Succeed(map[string]interface{}{
		"ticker":        ticker,
		"current_price": price,
	}), nil
}

// --- get_historical_prices ---

type historicalPricesTool struct {
	provider marketdata.Provider
}

func (t *historicalPricesTool) Name() string { return "get_historical_prices" }

func (t *historicalPricesTool) Description() string {
	return "Fetch daily historical prices for a ticker over a date range."
}

func (t *historicalPricesTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"ticker":     StringProperty("Ticker symbol (e.g. AAPL)"),
		"start_date": StringProperty("Range start, YYYY-MM-DD"),
		"end_date":   StringProperty("Range end, YYYY-MM-DD"),
	}, "ticker", "start_date", "end_date")
}

func (t *historicalPricesTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		Ticker    string `json:"ticker"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	ticker := normalizeSymbol(input.Ticker)
	if ticker == "" {
		return core.Fail("ticker is required"), nil
	}
	start, err := time.Parse(dateLayout, input.StartDate)
	if err != nil {
		return core.Fail(fmt.Sprintf("invalid start_date %q: expected YYYY-MM-DD", input.StartDate)), nil
	}
	end, err := time.Parse(dateLayout, input.EndDate)
	if err != nil {
		return core.Fail(fmt.Sprintf("invalid end_date %q: expected YYYY-MM-DD", input.EndDate)), nil
	}
	if end.Before(start) {
		return core.Fail("end_date must not be before start_date"), nil
	}

	bars, err := t.provider.HistoricalBars(ctx, ticker, start, end)
	if err != nil {
		return core.Fail(fmt.Sprintf("no historical data for %s: %v", ticker, err)), nil
	}
	if len(bars) == 0 {
		return core.Fail(fmt.Sprintf("no historical data for %s in %s..%s", ticker, input.StartDate, input.EndDate)), nil
	}
	return core.Succeed(map[string]interface{}{
		"ticker": ticker,
		"bars":   bars,
	}), nil
}

// --- get_dividends ---

type dividendsTool struct {
	provider marketdata.Provider
}

func (t *dividendsTool) Name() string { return "get_dividends" }

func (t *dividendsTool) Description() string {
	return "Fetch the cash dividend history for a ticker."
}

func (t *dividendsTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"ticker": StringProperty("Ticker symbol (e.g. AAPL)"),
	}, "ticker")
}

func (t *dividendsTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	ticker := normalizeSymbol(input.Ticker)
	if ticker == "" {
		return core.Fail("ticker is required"), nil
	}

	dividends, err := t.provider.Dividends(ctx, ticker)
	if err != nil {
		return core.Fail(fmt.Sprintf("no dividend records for %s: %v", ticker, err)), nil
	}
	if len(dividends) == 0 {
		return core.Fail(fmt.Sprintf("no dividend records for %s", ticker)), nil
	}
	return core.Succeed(map[string]interface{}{
		"ticker":    ticker,
		"dividends": dividends,
	}), nil
}

// --- get_market_index ---

type marketIndexTool struct {
	provider marketdata.Provider
}

func (t *marketIndexTool) Name() string { return "get_market_index" }

func (t *marketIndexTool) Description() string {
	return "Fetch the latest level of a market index such as ^GSPC (S&P 500), ^DJI (Dow Jones), or ^IXIC (NASDAQ)."
}

func (t *marketIndexTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"index": StringProperty("Index symbol (e.g. ^GSPC, ^DJI, ^IXIC)"),
	}, "index")
}

func (t *marketIndexTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		Index string `json:"index"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	index := normalizeSymbol(input.Index)
	if index == "" {
		return core.Fail("index is required"), nil
	}

	level, err := t.provider.IndexLevel(ctx, index)
	if err != nil {
		return core.Fail(fmt.Sprintf("index %s unresolvable: %v", index, err)), nil
	}
	return core.Succeed(map[string]interface{}{
		"index": index,
		"level": level,
	}), nil
}

// --- get_currency_rate ---

type currencyRateTool struct {
	rates marketdata.RateSource
}

func (t *currencyRateTool) Name() string { return "get_currency_rate" }

func (t *currencyRateTool) Description() string {
	return "Fetch the exchange rate between two currencies."
}

func (t *currencyRateTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"from_currency": StringProperty("ISO currency code to convert from (e.g. USD)"),
		"to_currency":   StringProperty("ISO currency code to convert to (e.g. EUR)"),
	}, "from_currency", "to_currency")
}

func (t *currencyRateTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		FromCurrency string `json:"from_currency"`
		ToCurrency   string `json:"to_currency"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}

	rate, err := t.rates.Rate(ctx, input.FromCurrency, input.ToCurrency)
	if err != nil {
		return core.Fail(fmt.Sprintf("pair %s/%s unresolvable: %v", input.FromCurrency, input.ToCurrency, err)), nil
	}
	return core.Succeed(map[string]interface{}{
		"from_currency": strings.ToUpper(strings.TrimSpace(input.FromCurrency)),
		"to_currency":   strings.ToUpper(strings.TrimSpace(input.ToCurrency)),
		"rate":          rate,
	}), nil
}

// --- get_company_info ---

type companyInfoTool struct {
	provider marketdata.Provider
}

func (t *companyInfoTool) Name() string { return "get_company_info" }

func (t *companyInfoTool) Description() string {
	return "Fetch descriptive company information for a ticker symbol."
}

func (t *companyInfoTool) Schema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"ticker": StringProperty("Ticker symbol (e.g. AAPL)"),
	}, "ticker")
}

func (t *companyInfoTool) Execute(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
	var input struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(params.Input, &input); err != nil {
		return core.Fail(fmt.Sprintf("invalid input: %v", err)), nil
	}
	ticker := normalizeSymbol(input.Ticker)
	if ticker == "" {
		return core.Fail("ticker is required"), nil
	}

	company, err := t.provider.CompanyInfo(ctx, ticker)
	if err != nil {
		return core.Fail(fmt.Sprintf("no metadata available for %s: %v", ticker, err)), nil
	}
	return core.Succeed(map[string]interface{}{
		"ticker":       ticker,
		"company_info": company,
	}), nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
