package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultForecastPeriods = 4
	MaxForecastPeriods     = 12
)

// ErrInvalidPeriods rejects a forecast horizon outside 1..MaxForecastPeriods.
var ErrInvalidPeriods = errors.New("periods must be between 1 and 12")

// Query filters financial data. Ticker wins over Company when both are set.
type Query struct {
	Ticker  string
	Company string
}

// ForecastPoint is one projected quarter.
type ForecastPoint struct {
	Period  string  `json:"period"`
	Revenue float64 `json:"revenue"`
}

// Forecast projects quarterly revenue from the latest reported figures.
type Forecast struct {
	Ticker      string          `json:"ticker"`
	Company     string          `json:"company"`
	BasePeriod  string          `json:"base_period"`
	BaseRevenue float64         `json:"base_revenue"`
	GrowthRate  float64         `json:"growth_rate"`
	Periods     int             `json:"periods"`
	Forecast    []ForecastPoint `json:"forecast"`
}

// Service answers financial data and forecasting queries from a Source.
type Service struct {
	Source Source
}

// NewService constructs a Service. A nil source serves the mock dataset.
func NewService(src Source) *Service {
	if src == nil {
		src = MockSource{}
	}
	return &Service{Source: src}
}

// Find returns the items matching the query.
func (s *Service) Find(ctx context.Context, q Query) ([]FinancialData, error) {
	ticker := strings.TrimSpace(q.Ticker)
	if ticker != "" {
		data, err := s.Source.Lookup(ctx, ticker)
		if errors.Is(err, ErrNotFound) {
			return []FinancialData{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []FinancialData{data}, nil
	}

	all, err := s.Source.All(ctx)
	if err != nil {
		return nil, err
	}
	company := strings.ToLower(strings.TrimSpace(q.Company))
	if company == "" {
		return all, nil
	}
	out := make([]FinancialData, 0, len(all))
	for _, item := range all {
		if strings.Contains(strings.ToLower(item.Company), company) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Get returns one item by id, which is the ticker.
func (s *Service) Get(ctx context.Context, id string) (FinancialData, error) {
	if strings.TrimSpace(id) == "" {
		return FinancialData{}, ErrNotFound
	}
	return s.Source.Lookup(ctx, id)
}

// Tickers lists the tickers offered for forecasting.
func (s *Service) Tickers() []TickerInfo {
	out := make([]TickerInfo, len(DefaultTickers))
	copy(out, DefaultTickers)
	return out
}

// Company returns the profile for a ticker.
func (s *Service) Company(ctx context.Context, ticker string) (CompanyProfile, error) {
	if strings.TrimSpace(ticker) == "" {
		return CompanyProfile{}, ErrNotFound
	}
	return s.Source.Profile(ctx, ticker)
}

// Forecast compounds the annual revenue growth rate quarterly over the given
// number of periods. Zero periods means DefaultForecastPeriods.
func (s *Service) Forecast(ctx context.Context, ticker string, periods int) (Forecast, error) {
	if periods == 0 {
		periods = DefaultForecastPeriods
	}
	if periods < 1 || periods > MaxForecastPeriods {
		return Forecast{}, ErrInvalidPeriods
	}
	data, err := s.Get(ctx, ticker)
	if err != nil {
		return Forecast{}, err
	}
	if data.Metrics == nil {
		return Forecast{}, fmt.Errorf("%w: %s has no metrics", ErrNotFound, ticker)
	}

	base := data.Metrics.Revenue
	growth := data.Metrics.RevenueGrowth / 100
	labels := nextQuarters(data.Period, periods)
	points := make([]ForecastPoint, periods)
	for k := 1; k <= periods; k++ {
		projected := base * math.Pow(1+growth, float64(k)/4)
		points[k-1] = ForecastPoint{Period: labels[k-1], Revenue: round2(projected)}
	}

	return Forecast{
		Ticker:      data.Ticker,
		Company:     data.Company,
		BasePeriod:  data.Period,
		BaseRevenue: base,
		GrowthRate:  data.Metrics.RevenueGrowth,
		Periods:     periods,
		Forecast:    points,
	}, nil
}

var quarterLabel = regexp.MustCompile(`^Q([1-4])\s+(\d{4})$`)

// nextQuarters labels the n quarters after period, which is either "Qn YYYY"
// or a YYYY-MM-DD fiscal date. Unknown formats get relative labels.
func nextQuarters(period string, n int) []string {
	quarter, year, ok := parseQuarter(strings.TrimSpace(period))
	out := make([]string, n)
	for i := range out {
		if !ok {
			out[i] = "Q+" + strconv.Itoa(i+1)
			continue
		}
		quarter++
		if quarter > 4 {
			quarter = 1
			year++
		}
		out[i] = fmt.Sprintf("Q%d %d", quarter, year)
	}
	return out
}

func parseQuarter(period string) (int, int, bool) {
	if m := quarterLabel.FindStringSubmatch(period); m != nil {
		q, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return q, y, true
	}
	if t, err := time.Parse(time.DateOnly, period); err == nil {
		return (int(t.Month())-1)/3 + 1, t.Year(), true
	}
	return 0, 0, false
}
