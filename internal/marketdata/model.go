package marketdata

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("financial data not found")
	ErrRateLimited = errors.New("rate_limit_exceeded")
)

// RateLimitMessage is shown when the upstream provider refuses more calls.
const RateLimitMessage = "Out of requests for the day. Please try again tomorrow."

// FinancialData is the headline metrics of one company.
type FinancialData struct {
	ID      string   `json:"id"`
	Company string   `json:"company"`
	Ticker  string   `json:"ticker"`
	Period  string   `json:"period"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Metrics are in billions for revenue and market cap and in percent for
// growth, margin and yield.
type Metrics struct {
	Revenue       float64 `json:"revenue"`
	RevenueGrowth float64 `json:"revenue_growth"`
	EPS           float64 `json:"eps"`
	EPSGrowth     float64 `json:"eps_growth"`
	GrossMargin   float64 `json:"gross_margin"`
	PERatio       float64 `json:"pe_ratio"`
	DividendYield float64 `json:"dividend_yield"`
	MarketCap     float64 `json:"market_cap"`
}

// CompanyProfile describes a listed company.
type CompanyProfile struct {
	Ticker    string  `json:"ticker"`
	ShortName string  `json:"shortName"`
	LongName  string  `json:"longName"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	Website   string  `json:"website"`
	MarketCap float64 `json:"marketCap"`
}

// TickerInfo pairs a ticker with its company name.
type TickerInfo struct {
	Ticker  string `json:"ticker"`
	Company string `json:"company"`
}

// Source serves financial data for tickers.
type Source interface {
	// Lookup returns data for one ticker or ErrNotFound.
	Lookup(ctx context.Context, ticker string) (FinancialData, error)
	// All returns data for every ticker the source covers by default.
	All(ctx context.Context) ([]FinancialData, error)
	Profile(ctx context.Context, ticker string) (CompanyProfile, error)
}

// DefaultTickers are listed by the forecasting endpoints.
var DefaultTickers = []TickerInfo{
	{Ticker: "AAPL", Company: "Apple Inc."},
	{Ticker: "MSFT", Company: "Microsoft Corporation"},
	{Ticker: "GOOGL", Company: "Alphabet Inc."},
	{Ticker: "AMZN", Company: "Amazon.com, Inc."},
	{Ticker: "META", Company: "Meta Platforms, Inc."},
	{Ticker: "TSLA", Company: "Tesla, Inc."},
	{Ticker: "NVDA", Company: "NVIDIA Corporation"},
	{Ticker: "JPM", Company: "JPMorgan Chase & Co."},
}

// ProviderTickers are fetched from a live provider when no ticker is given.
var ProviderTickers = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "JPM", "V", "WMT"}
