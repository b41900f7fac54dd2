package marketdata

import (
	"context"
	"strings"
)

type mockCompany struct {
	data     FinancialData
	sector   string
	industry string
	website  string
}

var mockCompanies = []mockCompany{
	{
		data: FinancialData{ID: "AAPL", Company: "Apple Inc.", Ticker: "AAPL", Period: "Q3 2023", Metrics: &Metrics{
			Revenue: 81.8, RevenueGrowth: 3.1, EPS: 1.26, GrossMargin: 44.5, PERatio: 28.5, DividendYield: 0.5, MarketCap: 2800.0,
		}},
		sector: "Technology", industry: "Consumer Electronics", website: "https://www.apple.com",
	},
	{
		data: FinancialData{ID: "MSFT", Company: "Microsoft Corporation", Ticker: "MSFT", Period: "Q4 2023", Metrics: &Metrics{
			Revenue: 56.2, RevenueGrowth: 7.0, EPS: 2.69, GrossMargin: 70.1, PERatio: 32.1, DividendYield: 0.8, MarketCap: 2500.0,
		}},
		sector: "Technology", industry: "Software", website: "https://www.microsoft.com",
	},
	{
		data: FinancialData{ID: "GOOGL", Company: "Alphabet Inc.", Ticker: "GOOGL", Period: "Q4 2023", Metrics: &Metrics{
			Revenue: 74.6, RevenueGrowth: 14.2, EPS: 1.44, GrossMargin: 56.2, PERatio: 25.8, DividendYield: 0.0, MarketCap: 1800.0,
		}},
		sector: "Communication Services", industry: "Internet Content & Information", website: "https://abc.xyz",
	},
	{
		data: FinancialData{ID: "META", Company: "Meta Platforms Inc.", Ticker: "META", Period: "Q4 2023", Metrics: &Metrics{
			Revenue: 40.1, RevenueGrowth: 22.2, EPS: 4.39, GrossMargin: 80.5, PERatio: 30.2, DividendYield: 0.0, MarketCap: 1200.0,
		}},
		sector: "Communication Services", industry: "Internet Content & Information", website: "https://about.meta.com",
	},
	{
		data: FinancialData{ID: "NVDA", Company: "NVIDIA Corporation", Ticker: "NVDA", Period: "Q1 2024", Metrics: &Metrics{
			Revenue: 24.9, RevenueGrowth: 125.8, EPS: 5.16, GrossMargin: 72.3, PERatio: 75.4, DividendYield: 0.1, MarketCap: 2200.0,
		}},
		sector: "Technology", industry: "Semiconductors", website: "https://www.nvidia.com",
	},
	{
		data: FinancialData{ID: "JPM", Company: "JPMorgan Chase & Co.", Ticker: "JPM", Period: "Q4 2023", Metrics: &Metrics{
			Revenue: 38.6, RevenueGrowth: 22.9, EPS: 3.97, GrossMargin: 0.0, PERatio: 12.1, DividendYield: 2.4, MarketCap: 550.0,
		}},
		sector: "Financial Services", industry: "Banks", website: "https://www.jpmorganchase.com",
	},
}

// MockSource serves a fixed six-company dataset.
type MockSource struct{}

func (MockSource) Lookup(ctx context.Context, ticker string) (FinancialData, error) {
	c, ok := findMock(ticker)
	if !ok {
		return FinancialData{}, ErrNotFound
	}
	return copyData(c.data), nil
}

func (MockSource) All(ctx context.Context) ([]FinancialData, error) {
	out := make([]FinancialData, 0, len(mockCompanies))
	for _, c := range mockCompanies {
		out = append(out, copyData(c.data))
	}
	return out, nil
}

func (MockSource) Profile(ctx context.Context, ticker string) (CompanyProfile, error) {
	c, ok := findMock(ticker)
	if !ok {
		return CompanyProfile{}, ErrNotFound
	}
	return CompanyProfile{
		Ticker:    c.data.Ticker,
		ShortName: c.data.Company,
		LongName:  c.data.Company,
		Sector:    c.sector,
		Industry:  c.industry,
		Website:   c.website,
		MarketCap: c.data.Metrics.MarketCap * 1e9,
	}, nil
}

func findMock(ticker string) (mockCompany, bool) {
	for _, c := range mockCompanies {
		if strings.EqualFold(c.data.ID, strings.TrimSpace(ticker)) {
			return c, true
		}
	}
	return mockCompany{}, false
}

func copyData(d FinancialData) FinancialData {
	if d.Metrics != nil {
		m := *d.Metrics
		d.Metrics = &m
	}
	return d
}

var _ Source = MockSource{}
