package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidJob = errors.New("invalid job")

// Client publishes report jobs to a broker. SQSClient and AMQPClient
// implement it; without one, jobs run in-process.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueue checks the step and publishes it for reportID.
func Enqueue(ctx context.Context, c Client, reportID, job, requestID string, now time.Time) error {
	if c == nil {
		return errors.New("queue not configured")
	}
	if strings.TrimSpace(reportID) == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidJob)
	}
	switch job {
	case JobExtract, JobAnalyze:
	default:
		return fmt.Errorf("%w: unknown job %q", ErrInvalidJob, job)
	}
	return c.Send(ctx, NewMessage(reportID, job, requestID, now))
}
