package reports

import (
	"context"
	"encoding/json"
	"time"

	"financial-reporter/internal/llm"
	"financial-reporter/internal/shared/telemetry"
)

const llmRetryDelay = 300 * time.Millisecond

// retryingLLM retries a provider call once after a short pause when the
// failure looks transient.
type retryingLLM struct {
	base      llm.Client
	reportID  string
	requestID string
	delay     time.Duration
}

func newRetryingLLM(base llm.Client, reportID, requestID string, delay time.Duration) llm.Client {
	if base == nil {
		return nil
	}
	if delay <= 0 {
		delay = llmRetryDelay
	}
	return retryingLLM{base: base, reportID: reportID, requestID: requestID, delay: delay}
}

func (r retryingLLM) AnalyzeReport(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	resp, err := r.base.AnalyzeReport(ctx, input)
	if err == nil || !llm.IsTransient(err) {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt":    1,
		"request_id": r.requestID,
		"report_id":  r.reportID,
		"error":      sanitizeError(err),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.base.AnalyzeReport(ctx, input)
}
