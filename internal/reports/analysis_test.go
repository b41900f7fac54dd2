package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financial-reporter/internal/llm"
)

func TestParseAnalysisCannedReply(t *testing.T) {
	got, err := ParseAnalysis([]byte(llm.MockAnalysis))
	require.NoError(t, err)

	assert.Contains(t, got.Summary, "mock analysis")
	assert.Len(t, got.KeyPoints, 5)
	assert.Equal(t, "positive", got.Sentiment.Overall)
	assert.Equal(t, 0.85, got.Sentiment.Confidence)
	assert.Equal(t, 65.0, got.Sentiment.Breakdown.Positive)
	require.Len(t, got.Topics, 4)
	assert.Equal(t, "Supply Chain", got.Topics[3].Name)
	assert.Equal(t, 3.0, got.Topics[3].Mentions)
	require.Len(t, got.Quotes, 2)
	assert.Equal(t, "CEO", got.Quotes[0].Speaker)
}

func TestParseAnalysisDefaults(t *testing.T) {
	got, err := ParseAnalysis([]byte("Here you go:\n```json\n{\"summary\": \"  Flat quarter. \"}\n```"))
	require.NoError(t, err)

	assert.Equal(t, "Flat quarter.", got.Summary)
	assert.Equal(t, []string{}, got.KeyPoints)
	assert.Equal(t, []Topic{}, got.Topics)
	assert.Equal(t, []Quote{}, got.Quotes)
	assert.Equal(t, "neutral", got.Sentiment.Overall)
	assert.Zero(t, got.Sentiment.Confidence)
}

func TestParseAnalysisNormalizesSentiment(t *testing.T) {
	got, err := ParseAnalysis([]byte(`{
		"summary": "s",
		"sentiment": {"overall": " Negative ", "confidence": -2},
		"topics": [{"name": "Debt", "sentiment": "NEGATIVE", "mentions": 2}],
		"quotes": [{"text": "q", "speaker": "CFO"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "negative", got.Sentiment.Overall)
	assert.Equal(t, 0.0, got.Sentiment.Confidence)
	assert.Equal(t, "negative", got.Topics[0].Sentiment)
	assert.Equal(t, "neutral", got.Quotes[0].Sentiment)
}

func TestParseAnalysisRejects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "no json", reply: "I cannot help with that"},
		{name: "missing summary", reply: `{"key_points": ["a"]}`},
		{name: "blank summary", reply: `{"summary": "   "}`},
		{name: "wrong types", reply: `{"summary": "s", "key_points": "a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnalysis([]byte(tt.reply))
			assert.ErrorIs(t, err, llm.ErrInvalidOutput)
		})
	}
}
