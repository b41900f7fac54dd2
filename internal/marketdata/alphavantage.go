package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"financial-reporter/internal/shared/metrics"
	"financial-reporter/internal/shared/telemetry"
)

const (
	functionOverview = "OVERVIEW"
	functionIncome   = "INCOME_STATEMENT"

	defaultAlphaVantageURL = "https://www.alphavantage.co/query"
	maxProviderBody        = 4 << 20
)

// errNoData marks a ticker the provider knows nothing about.
var errNoData = errors.New("no data from provider")

// AlphaVantage fetches company data from the Alpha Vantage query API.
type AlphaVantage struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cache   *ttlCache
}

// AlphaVantageOption customizes an AlphaVantage client.
type AlphaVantageOption func(*AlphaVantage)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) AlphaVantageOption {
	return func(a *AlphaVantage) { a.http = c }
}

// WithClock sets the clock used for cache expiry.
func WithClock(now func() time.Time) AlphaVantageOption {
	return func(a *AlphaVantage) { a.cache.now = now }
}

// NewAlphaVantage builds a client that spends at most perMinute upstream calls
// per minute and caches responses for cacheTTL.
func NewAlphaVantage(baseURL, apiKey string, cacheTTL time.Duration, perMinute int, opts ...AlphaVantageOption) *AlphaVantage {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultAlphaVantageURL
	}
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	a := &AlphaVantage{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		cache:   newTTLCache(cacheTTL, time.Now),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type overview map[string]any

type incomeStatement struct {
	AnnualReports []struct {
		FiscalDateEnding string `json:"fiscalDateEnding"`
		TotalRevenue     string `json:"totalRevenue"`
	} `json:"annualReports"`
}

// Lookup fetches the overview and income statement concurrently.
func (a *AlphaVantage) Lookup(ctx context.Context, ticker string) (FinancialData, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return FinancialData{}, ErrNotFound
	}

	var ov overview
	var income incomeStatement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ov, err = a.overview(gctx, ticker)
		return err
	})
	g.Go(func() error {
		return a.query(gctx, functionIncome, ticker, &income)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, errNoData) {
			return FinancialData{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
		}
		return FinancialData{}, err
	}
	if len(income.AnnualReports) == 0 {
		return FinancialData{}, fmt.Errorf("%w: %s has no annual reports", ErrNotFound, ticker)
	}
	return formatFinancialData(ticker, ov, income), nil
}

// All fetches every provider ticker in turn and stops at the first rate limit.
func (a *AlphaVantage) All(ctx context.Context) ([]FinancialData, error) {
	out := make([]FinancialData, 0, len(ProviderTickers))
	for _, ticker := range ProviderTickers {
		data, err := a.Lookup(ctx, ticker)
		switch {
		case err == nil:
			out = append(out, data)
		case errors.Is(err, ErrRateLimited), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return out, err
		default:
			telemetry.Warn("marketdata.ticker_failed", map[string]any{"ticker": ticker, "error": err.Error()})
		}
	}
	return out, nil
}

// Profile returns the company profile from the overview.
func (a *AlphaVantage) Profile(ctx context.Context, ticker string) (CompanyProfile, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	ov, err := a.overview(ctx, ticker)
	if err != nil {
		if errors.Is(err, errNoData) {
			return CompanyProfile{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
		}
		return CompanyProfile{}, err
	}
	name := ov.str("Name", ticker)
	return CompanyProfile{
		Ticker:    ticker,
		ShortName: name,
		LongName:  name,
		Sector:    ov.str("Sector", ""),
		Industry:  ov.str("Industry", ""),
		Website:   ov.str("OfficialSite", ""),
		MarketCap: ov.num("MarketCapitalization"),
	}, nil
}

func (a *AlphaVantage) overview(ctx context.Context, ticker string) (overview, error) {
	var ov overview
	if err := a.query(ctx, functionOverview, ticker, &ov); err != nil {
		return nil, err
	}
	return ov, nil
}

// query performs one cached, rate limited provider call and decodes the JSON body into out.
func (a *AlphaVantage) query(ctx context.Context, function, symbol string, out any) error {
	cacheKey := function + ":" + symbol
	if body, ok := a.cache.get(cacheKey); ok {
		return json.Unmarshal(body, out)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		metrics.IncMarketUpstream(function, "throttled")
		return fmt.Errorf("%w: local call budget exhausted: %v", ErrRateLimited, err)
	}

	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		metrics.IncMarketUpstream(function, "error")
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("alphavantage %s %s: %w", function, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		metrics.IncMarketUpstream(function, "error")
		return fmt.Errorf("alphavantage %s %s: read body: %w", function, symbol, err)
	}
	if bytes.Contains(body, []byte("Note")) && bytes.Contains(body, []byte("API call frequency")) {
		metrics.IncMarketUpstream(function, "rate_limited")
		telemetry.Warn("marketdata.rate_limited", map[string]any{"function": function, "ticker": symbol})
		return fmt.Errorf("%w: %s", ErrRateLimited, RateLimitMessage)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.IncMarketUpstream(function, "error")
		return fmt.Errorf("alphavantage %s %s: status %d", function, symbol, resp.StatusCode)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		metrics.IncMarketUpstream(function, "error")
		return fmt.Errorf("alphavantage %s %s: decode: %w", function, symbol, err)
	}
	if _, failed := probe["Error Message"]; failed || len(probe) == 0 {
		metrics.IncMarketUpstream(function, "empty")
		return errNoData
	}
	if function == functionIncome {
		if _, ok := probe["annualReports"]; !ok {
			metrics.IncMarketUpstream(function, "empty")
			return errNoData
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.IncMarketUpstream(function, "error")
		return fmt.Errorf("alphavantage %s %s: decode: %w", function, symbol, err)
	}

	metrics.IncMarketUpstream(function, "ok")
	a.cache.set(cacheKey, body)
	return nil
}

func formatFinancialData(ticker string, ov overview, income incomeStatement) FinancialData {
	latest := income.AnnualReports[0]
	revenue := parseNumber(latest.TotalRevenue) / 1e9
	growth := 0.0
	if len(income.AnnualReports) > 1 {
		prev := parseNumber(income.AnnualReports[1].TotalRevenue) / 1e9
		if prev != 0 {
			growth = (revenue - prev) / prev * 100
		}
	}
	period := latest.FiscalDateEnding
	if period == "" {
		period = "Unknown"
	}

	return FinancialData{
		ID:      ov.str("Symbol", ticker),
		Company: ov.str("Name", "Unknown ("+ticker+")"),
		Ticker:  ticker,
		Period:  period,
		Metrics: &Metrics{
			Revenue:       round2(revenue),
			RevenueGrowth: round2(growth),
			EPS:           round2(ov.num("EPS")),
			EPSGrowth:     ov.num("EPSGrowth"),
			GrossMargin:   ov.num("GrossProfitMargin") * 100,
			PERatio:       ov.num("PERatio"),
			DividendYield: ov.num("DividendYield") * 100,
			MarketCap:     ov.num("MarketCapitalization") / 1e9,
		},
	}
}

func (o overview) str(key, def string) string {
	if v, ok := o[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func (o overview) num(key string) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case string:
		return parseNumber(v)
	default:
		return 0
	}
}

// parseNumber reads provider numbers, which arrive as strings and use "None" or "-" for missing.
func parseNumber(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ Source = (*AlphaVantage)(nil)
