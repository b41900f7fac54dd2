package workerproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financial-reporter/internal/queue"
	"financial-reporter/internal/reports"
)

type call struct {
	reportID  string
	job       string
	requestID string
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeProcessor) Process(ctx context.Context, reportID, job string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{reportID: reportID, job: job, requestID: reports.RequestIDFromContext(ctx)})
	return f.err
}

type fakeSQS struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	require.NoError(t, err)
	return string(body)
}

func sqsMessage(id, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("receipt-" + id),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestParseMessage(t *testing.T) {
	_, _, err := ParseMessage("  ")
	assert.IsType(t, ErrEmptyBody{}, err)

	_, meta, err := ParseMessage("{bad")
	var decodeErr ErrDecode
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 4, meta.BodyLen)
	assert.Len(t, meta.BodySHA, 64)

	_, _, err = ParseMessage(`{"job":"extract","requestId":"req-1"}`)
	var missing ErrMissingReportID
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "req-1", missing.RequestID)

	msg, _, err := ParseMessage(`{"reportId":"r-1"}`)
	require.NoError(t, err)
	assert.Equal(t, queue.JobExtract, msg.Job)
}

func TestHandleMessagePassesRequestID(t *testing.T) {
	proc := &fakeProcessor{}
	body := encode(t, queue.Message{ReportID: "r-1", Job: queue.JobAnalyze, RequestID: "req-9"})

	require.NoError(t, HandleMessage(context.Background(), proc, body))
	require.Len(t, proc.calls, 1)
	assert.Equal(t, call{reportID: "r-1", job: queue.JobAnalyze, requestID: "req-9"}, proc.calls[0])
}

func TestHandleMessageWrapsProcessError(t *testing.T) {
	boom := errors.New("boom")
	proc := &fakeProcessor{err: boom}
	body := encode(t, queue.Message{ReportID: "r-1", Job: queue.JobExtract})

	err := HandleMessage(context.Background(), proc, body)
	var procErr ErrProcess
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "r-1", procErr.ReportID)
	assert.ErrorIs(t, err, boom)
	assert.False(t, Unrecoverable(err))
}

func TestUnrecoverable(t *testing.T) {
	assert.True(t, Unrecoverable(ErrEmptyBody{}))
	assert.True(t, Unrecoverable(ErrDecode{Err: errors.New("x")}))
	assert.True(t, Unrecoverable(ErrProcess{Err: reports.ErrNotFound}))
	assert.True(t, Unrecoverable(ErrProcess{Err: fmt.Errorf("%w: unknown job", reports.ErrInvalidInput)}))
	assert.False(t, Unrecoverable(ErrProcess{Err: context.DeadlineExceeded}))
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	w := &SQSWorker{Client: client, QueueURL: "queue", Processor: &fakeProcessor{}}

	w.HandleMessage(context.Background(), sqsMessage("m1", encode(t, queue.Message{ReportID: "r-1", Job: queue.JobExtract})))

	assert.Equal(t, []string{"receipt-m1"}, client.deleted)
}

func TestWorkerKeepsMessageOnFailure(t *testing.T) {
	client := &fakeSQS{}
	w := &SQSWorker{Client: client, QueueURL: "queue", Processor: &fakeProcessor{err: errors.New("boom")}}

	w.HandleMessage(context.Background(), sqsMessage("m2", encode(t, queue.Message{ReportID: "r-2"})))

	assert.Empty(t, client.deleted)
}

func TestWorkerDeletesUnrecoverableMessages(t *testing.T) {
	client := &fakeSQS{}
	w := &SQSWorker{Client: client, QueueURL: "queue", Processor: &fakeProcessor{err: reports.ErrNotFound}}

	w.HandleMessage(context.Background(), sqsMessage("m3", "{bad-json"))
	w.HandleMessage(context.Background(), sqsMessage("m4", encode(t, queue.Message{ReportID: "gone"})))

	assert.Equal(t, []string{"receipt-m3", "receipt-m4"}, client.deleted)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &SQSWorker{Client: &fakeSQS{}, QueueURL: "queue", Processor: &fakeProcessor{}}
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestAMQPHandlerMarksUnrecoverable(t *testing.T) {
	handle := AMQPHandler(&fakeProcessor{})
	err := handle(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, queue.ErrUnrecoverable)

	handle = AMQPHandler(&fakeProcessor{err: errors.New("flaky")})
	err = handle(context.Background(), []byte(`{"reportId":"r-1"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrUnrecoverable)
}
