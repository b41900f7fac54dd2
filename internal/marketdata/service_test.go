package marketdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	MockSource
	allErr error
}

func (s stubSource) All(ctx context.Context) ([]FinancialData, error) {
	if s.allErr != nil {
		return nil, s.allErr
	}
	return s.MockSource.All(ctx)
}

func TestFindFilters(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	all, err := svc.Find(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, len(mockCompanies))

	byTicker, err := svc.Find(ctx, Query{Ticker: "aapl"})
	require.NoError(t, err)
	require.Len(t, byTicker, 1)
	assert.Equal(t, "Apple Inc.", byTicker[0].Company)

	unknown, err := svc.Find(ctx, Query{Ticker: "ZZZZ"})
	require.NoError(t, err)
	assert.Empty(t, unknown)

	byCompany, err := svc.Find(ctx, Query{Company: "CORP"})
	require.NoError(t, err)
	var tickers []string
	for _, item := range byCompany {
		tickers = append(tickers, item.Ticker)
	}
	assert.ElementsMatch(t, []string{"MSFT", "NVDA"}, tickers)
}

func TestFindPropagatesRateLimit(t *testing.T) {
	svc := NewService(stubSource{allErr: ErrRateLimited})
	_, err := svc.Find(context.Background(), Query{Company: "apple"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetIsCaseInsensitive(t *testing.T) {
	svc := NewService(nil)
	data, err := svc.Get(context.Background(), "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", data.ID)

	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), " ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockReturnsCopies(t *testing.T) {
	svc := NewService(nil)
	data, err := svc.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	data.Metrics.Revenue = 0

	again, err := svc.Get(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 81.8, again.Metrics.Revenue)
}

func TestCompanyProfile(t *testing.T) {
	svc := NewService(nil)
	profile, err := svc.Company(context.Background(), "nvda")
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA Corporation", profile.ShortName)
	assert.Equal(t, "Semiconductors", profile.Industry)
	assert.InDelta(t, 2.2e12, profile.MarketCap, 1)

	_, err = svc.Company(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTickersReturnsCopy(t *testing.T) {
	svc := NewService(nil)
	tickers := svc.Tickers()
	require.Len(t, tickers, 8)
	tickers[0].Ticker = "XXX"
	assert.Equal(t, "AAPL", DefaultTickers[0].Ticker)
}

func TestForecastCompoundsQuarterly(t *testing.T) {
	svc := NewService(nil)
	fc, err := svc.Forecast(context.Background(), "AAPL", 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultForecastPeriods, fc.Periods)
	require.Len(t, fc.Forecast, 4)
	assert.Equal(t, "Q4 2023", fc.Forecast[0].Period)
	assert.Equal(t, "Q1 2024", fc.Forecast[1].Period)
	assert.Equal(t, "Q3 2024", fc.Forecast[3].Period)
	// four quarters compound to one full year of growth
	assert.InDelta(t, 81.8*1.031, fc.Forecast[3].Revenue, 0.01)
	assert.Greater(t, fc.Forecast[1].Revenue, fc.Forecast[0].Revenue)
}

func TestForecastPeriodsBounds(t *testing.T) {
	svc := NewService(nil)
	for _, periods := range []int{-1, 13} {
		_, err := svc.Forecast(context.Background(), "AAPL", periods)
		assert.ErrorIs(t, err, ErrInvalidPeriods, "periods=%d", periods)
	}
	fc, err := svc.Forecast(context.Background(), "AAPL", 12)
	require.NoError(t, err)
	assert.Len(t, fc.Forecast, 12)

	_, err = svc.Forecast(context.Background(), "ZZZZ", 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextQuarters(t *testing.T) {
	assert.Equal(t, []string{"Q1 2024", "Q2 2024"}, nextQuarters("Q4 2023", 2))
	assert.Equal(t, []string{"Q4 2023", "Q1 2024"}, nextQuarters("2023-09-30", 2))
	assert.Equal(t, []string{"Q+1", "Q+2"}, nextQuarters("Unknown", 2))
}
