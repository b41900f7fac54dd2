package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage("report-123", JobAnalyze, "request-456", time.Date(2026, 1, 30, 22, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-01-30T22:00:00Z", msg.EnqueuedAt)
	assert.Equal(t, MessageVersion, msg.Version)

	payload, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeMessageDefaultsJob(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"reportId":"r-1","version":1}`))
	require.NoError(t, err)
	assert.Equal(t, JobExtract, got.Job)
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	_, err := DecodeMessage([]byte(`{`))
	assert.Error(t, err)
}
