package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"financial-reporter/internal/queue"
	"financial-reporter/internal/reports"
	"financial-reporter/internal/shared/metrics"
	"financial-reporter/internal/shared/telemetry"
)

// Processor runs one workflow step for a report.
type Processor interface {
	Process(ctx context.Context, reportID, job string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingReportID indicates a message without a report id.
type ErrMissingReportID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingReportID) Error() string { return "missing report id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	ReportID  string
	Job       string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.Job
	}
	return "process " + e.Job + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.ReportID) == "" {
		return msg, meta, ErrMissingReportID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Unrecoverable reports whether retrying the message can never succeed.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingReportID
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &decode), errors.As(err, &missing):
		return true
	case errors.Is(err, reports.ErrNotFound), errors.Is(err, reports.ErrInvalidInput):
		return true
	default:
		return false
	}
}

// HandleMessage parses, validates and processes a message payload.
func HandleMessage(ctx context.Context, proc Processor, body string) error {
	if proc == nil {
		return errors.New("report processor not configured")
	}
	msg, meta, err := ParseMessage(body)
	if err != nil {
		fields := map[string]any{"body_len": meta.BodyLen, "error": err.Error()}
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		telemetry.Error("worker.message.invalid", fields)
		metrics.IncJob("deleted_unrecoverable")
		return err
	}
	return Run(ctx, proc, msg)
}

// Run processes an already decoded message.
func Run(ctx context.Context, proc Processor, msg queue.Message) error {
	fields := map[string]any{"report_id": msg.ReportID, "job": msg.Job}
	if msg.RequestID != "" {
		fields["request_id"] = msg.RequestID
	}
	metrics.IncJob("received")
	telemetry.Info("worker.job.received", fields)

	ctx = reports.WithRequestID(ctx, msg.RequestID)
	if err := proc.Process(ctx, msg.ReportID, msg.Job); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		metrics.IncJob("failed")
		return ErrProcess{ReportID: msg.ReportID, Job: msg.Job, RequestID: msg.RequestID, Err: err}
	}
	telemetry.Info("worker.job.completed", fields)
	metrics.IncJob("completed")
	return nil
}

// AMQPHandler adapts HandleMessage for an AMQP consumer, marking messages
// that can never succeed so they are dropped.
func AMQPHandler(proc Processor) queue.DeliveryHandler {
	return func(ctx context.Context, body []byte) error {
		err := HandleMessage(ctx, proc, string(body))
		if err != nil && Unrecoverable(err) {
			return fmt.Errorf("%w: %w", queue.ErrUnrecoverable, err)
		}
		return err
	}
}
