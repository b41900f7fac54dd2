package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"financial-reporter/internal/queue"
	"financial-reporter/internal/reports"
)

var testNow = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

type fakeProcessor map[string]error

func (f fakeProcessor) Process(ctx context.Context, reportID, job string) error {
	return f[reportID]
}

func record(t *testing.T, id, reportID string) events.SQSMessage {
	t.Helper()
	body, err := queue.EncodeMessage(queue.NewMessage(reportID, queue.JobExtract, "", testNow))
	assert.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestHandleBatchReportsOnlyRetryableFailures(t *testing.T) {
	proc := fakeProcessor{
		"flaky": errors.New("timeout"),
		"gone":  reports.ErrNotFound,
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m1", "ok"),
		record(t, "m2", "flaky"),
		record(t, "m3", "gone"),
		{MessageId: "m4", Body: "{bad"},
	}}

	resp := handleBatch(context.Background(), proc, event)

	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m2"}}, resp.BatchItemFailures)
}
