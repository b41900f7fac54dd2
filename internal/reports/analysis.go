package reports

import (
	"encoding/json"
	"fmt"
	"strings"

	"financial-reporter/internal/llm"
)

// Analysis is the structured AI output stored on a completed report.
type Analysis struct {
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"key_points"`
	Sentiment Sentiment `json:"sentiment"`
	Topics    []Topic   `json:"topics"`
	Quotes    []Quote   `json:"quotes"`
}

type Sentiment struct {
	Overall    string    `json:"overall"`
	Confidence float64   `json:"confidence"`
	Breakdown  Breakdown `json:"breakdown"`
}

type Breakdown struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type Topic struct {
	Name      string  `json:"name"`
	Sentiment string  `json:"sentiment"`
	Mentions  float64 `json:"mentions"`
}

type Quote struct {
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
	Sentiment string `json:"sentiment"`
}

// ParseAnalysis decodes a model reply into an Analysis. The reply may carry
// prose or code fences around the JSON object. summary is required; missing
// lists become empty and a missing sentiment becomes neutral.
func ParseAnalysis(reply []byte) (*Analysis, error) {
	raw, err := llm.ExtractJSON(string(reply))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Summary   string     `json:"summary"`
		KeyPoints []string   `json:"key_points"`
		Sentiment *Sentiment `json:"sentiment"`
		Topics    []Topic    `json:"topics"`
		Quotes    []Quote    `json:"quotes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", llm.ErrInvalidOutput)
	}

	out := &Analysis{
		Summary:   strings.TrimSpace(parsed.Summary),
		KeyPoints: parsed.KeyPoints,
		Topics:    parsed.Topics,
		Quotes:    parsed.Quotes,
	}
	if out.KeyPoints == nil {
		out.KeyPoints = []string{}
	}
	if out.Topics == nil {
		out.Topics = []Topic{}
	}
	if out.Quotes == nil {
		out.Quotes = []Quote{}
	}

	if parsed.Sentiment != nil {
		out.Sentiment = *parsed.Sentiment
	}
	out.Sentiment.Overall = normalizeSentiment(out.Sentiment.Overall)
	out.Sentiment.Confidence = clamp(out.Sentiment.Confidence, 0, 1)
	for i := range out.Topics {
		out.Topics[i].Sentiment = normalizeSentiment(out.Topics[i].Sentiment)
	}
	for i := range out.Quotes {
		out.Quotes[i].Sentiment = normalizeSentiment(out.Quotes[i].Sentiment)
	}
	return out, nil
}

func normalizeSentiment(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "neutral"
	}
	return label
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
