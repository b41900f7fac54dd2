package llm

import (
	"context"
	"encoding/json"
)

// MockAnalysis is the canned analysis returned when no provider is configured.
const MockAnalysis = `{
  "summary": "This is a mock analysis of a financial document. It contains quarterly financial results with revenue growth and profit margins discussion.",
  "key_points": [
    "Revenue increased by 15% year-over-year",
    "Operating margin improved to 28.5%",
    "New product line contributed 12% to total revenue",
    "International expansion continues in Asian markets",
    "Board approved $500M share repurchase program"
  ],
  "sentiment": {
    "overall": "positive",
    "confidence": 0.85,
    "breakdown": {"positive": 65, "neutral": 30, "negative": 5}
  },
  "topics": [
    {"name": "Revenue Growth", "sentiment": "positive", "mentions": 12},
    {"name": "Profit Margins", "sentiment": "positive", "mentions": 8},
    {"name": "Market Expansion", "sentiment": "neutral", "mentions": 6},
    {"name": "Supply Chain", "sentiment": "negative", "mentions": 3}
  ],
  "quotes": [
    {"text": "Our strategic investments in technology have yielded significant returns this quarter.", "speaker": "CEO", "sentiment": "positive"},
    {"text": "While supply chain challenges persist, we've implemented mitigation strategies that have reduced their impact.", "speaker": "COO", "sentiment": "neutral"}
  ]
}`

// MockClient returns MockAnalysis for every report.
type MockClient struct{}

func (MockClient) AnalyzeReport(ctx context.Context, input AnalyzeInput) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.RawMessage(MockAnalysis), nil
}

var _ Client = MockClient{}
