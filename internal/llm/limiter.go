package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited spaces provider calls to a requests-per-minute budget.
type Limited struct {
	Next    Client
	limiter *rate.Limiter
}

// WithRateLimit wraps next so that at most perMinute calls start each minute.
// A non-positive budget returns next unchanged.
func WithRateLimit(next Client, perMinute int) Client {
	if perMinute <= 0 {
		return next
	}
	every := time.Minute / time.Duration(perMinute)
	return &Limited{Next: next, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

func (l *Limited) AnalyzeReport(ctx context.Context, input AnalyzeInput) (json.RawMessage, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit wait: %w", err)
	}
	return l.Next.AnalyzeReport(ctx, input)
}
