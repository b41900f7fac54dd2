package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"financial-reporter/internal/extract"
	"financial-reporter/internal/llm"
	"financial-reporter/internal/queue"
	"financial-reporter/internal/shared/metrics"
	"financial-reporter/internal/shared/storage/object"
	"financial-reporter/internal/shared/telemetry"
	"financial-reporter/internal/shared/util"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultListLimit      = 20
	MaxListLimit          = 100

	// Extracted text longer than this is kept on the record only as a summary.
	maxStoredTextChars = 900000
	textSummaryEdge    = 1000
	truncationMarker   = "\n\n... [TEXT TRUNCATED DUE TO SIZE] ...\n\n"
)

var (
	errExtraction = errors.New("extraction failed")
	errStorage    = errors.New("storage error")
)

// Service runs the report workflow: upload, extract, analyze.
type Service struct {
	Repo      Repo
	Store     object.ObjectStore
	LLM       llm.Client
	Extractor extract.Extractor
	// Queue is optional. Without it workflow steps run in a goroutine.
	Queue          queue.Client
	MaxUploadBytes int64
	DownloadURLTTL time.Duration

	now        func() time.Time
	retryDelay time.Duration
}

// UploadInput is one file submitted for analysis.
type UploadInput struct {
	UserID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Patch is a manual update of a report.
type Patch struct {
	Status   string
	Analysis json.RawMessage
	Error    *string
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

// Upload validates and stores a PDF, records it as uploaded and schedules extraction.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Report, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return Report{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if in.Body == nil || strings.TrimSpace(in.FileName) == "" {
		return Report{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if !strings.EqualFold(path.Ext(in.FileName), ".pdf") {
		return Report{}, ErrUnsupportedFileType
	}
	if !acceptedContentType(in.ContentType) {
		return Report{}, ErrUnsupportedFileType
	}
	limit := s.maxUpload()
	if in.Size > limit {
		return Report{}, ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, limit+1))
	if err != nil {
		return Report{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return Report{}, ErrFileTooLarge
	}
	if len(data) == 0 {
		return Report{}, ErrEmptyFile
	}
	if http.DetectContentType(data) != "application/pdf" {
		return Report{}, ErrUnsupportedFileType
	}

	storageKey, size, _, err := s.Store.Save(ctx, in.UserID, in.FileName, bytes.NewReader(data))
	if err != nil {
		return Report{}, fmt.Errorf("store upload: %w", err)
	}

	now := s.clock()
	report := Report{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		FileName:   in.FileName,
		FileSize:   size,
		FileType:   "application/pdf",
		StorageKey: storageKey,
		Status:     StatusUploaded,
		UploadDate: now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(ctx, report); err != nil {
		if delErr := s.Store.Delete(ctx, storageKey); delErr != nil {
			telemetry.Warn("report.upload.cleanup_failed", map[string]any{"storage_key": storageKey, "error": delErr.Error()})
		}
		return Report{}, fmt.Errorf("create report: %w", err)
	}

	metrics.IncReportUploaded()
	s.logTransition(ctx, report, "->"+StatusUploaded, nil)
	s.schedule(ctx, report.ID, queue.JobExtract)
	return report, nil
}

func acceptedContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "", "application/pdf", "application/octet-stream":
		return true
	default:
		return false
	}
}

// Get returns a report by ID.
func (s *Service) Get(ctx context.Context, reportID string) (Report, error) {
	if strings.TrimSpace(reportID) == "" {
		return Report{}, fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, reportID)
}

// List returns reports newest first. An empty user id lists every report.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.Repo.List(ctx, filter)
}

// DownloadURL returns a presigned URL when the store supports it and the API
// file route otherwise.
func (s *Service) DownloadURL(ctx context.Context, report Report) string {
	if presigner, ok := s.Store.(object.Presigner); ok {
		url, err := presigner.PresignGet(ctx, report.StorageKey, s.DownloadURLTTL)
		if err == nil {
			return url
		}
		telemetry.Warn("report.presign_failed", map[string]any{"report_id": report.ID, "error": err.Error()})
	}
	return "/api/v1/reports/" + report.ID + "/file"
}

// OpenFile returns the report and a reader over its stored PDF.
func (s *Service) OpenFile(ctx context.Context, reportID string) (Report, io.ReadCloser, error) {
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return Report{}, nil, err
	}
	body, err := s.Store.Open(ctx, report.StorageKey)
	if err != nil {
		return Report{}, nil, fmt.Errorf("open file: %w", err)
	}
	return report, body, nil
}

// Analyze claims the report for analysis and schedules the analysis step.
// Only uploaded or extracted reports can be analyzed.
func (s *Service) Analyze(ctx context.Context, reportID string) (Report, error) {
	if strings.TrimSpace(reportID) == "" {
		return Report{}, fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}
	clearErr := ""
	report, err := s.Repo.Apply(ctx, reportID, []string{StatusUploaded, StatusExtracted}, Update{
		Status:        StatusProcessing,
		ClearAnalysis: true,
		Error:         &clearErr,
	})
	if err != nil {
		return Report{}, err
	}
	s.logTransition(ctx, report, "->"+StatusProcessing, nil)
	s.schedule(ctx, report.ID, queue.JobAnalyze)
	return report, nil
}

// Process runs one queued workflow step.
func (s *Service) Process(ctx context.Context, reportID, job string) error {
	switch job {
	case queue.JobExtract:
		return s.Extract(ctx, reportID)
	case queue.JobAnalyze:
		return s.RunAnalysis(ctx, reportID)
	default:
		return fmt.Errorf("%w: unknown job %q", ErrInvalidInput, job)
	}
}

// Extract moves an uploaded report through processing to extracted. It is a
// no-op when the report has already left the uploaded state.
func (s *Service) Extract(ctx context.Context, reportID string) error {
	startedAt := s.clock()
	report, err := s.Repo.Apply(ctx, reportID, []string{StatusUploaded}, Update{Status: StatusProcessing})
	if errors.Is(err, ErrInvalidStatus) {
		metrics.IncStage(metrics.StageExtract, "skipped")
		telemetry.Info("report.extract.skipped", map[string]any{"report_id": reportID, "request_id": RequestIDFromContext(ctx)})
		return nil
	}
	if err != nil {
		return err
	}
	metrics.IncStage(metrics.StageExtract, "started")
	s.logTransition(ctx, report, StatusUploaded+"->"+StatusProcessing, nil)

	fields, _, err := s.extractText(ctx, report)
	if err != nil {
		s.fail(ctx, report, metrics.StageExtract, err, startedAt)
		return err
	}
	fields.Status = StatusExtracted
	updated, err := s.Repo.Apply(ctx, reportID, []string{StatusProcessing}, fields)
	if errors.Is(err, ErrInvalidStatus) {
		metrics.IncStage(metrics.StageExtract, "skipped")
		return nil
	}
	if err != nil {
		err = fmt.Errorf("%w: save extraction: %w", errStorage, err)
		s.fail(ctx, report, metrics.StageExtract, err, startedAt)
		return err
	}
	report = updated

	metrics.IncStage(metrics.StageExtract, "completed")
	metrics.ObserveStageDuration(metrics.StageExtract, s.clock().Sub(startedAt))
	s.logTransition(ctx, report, StatusProcessing+"->"+StatusExtracted, map[string]any{
		"text_truncated": report.TextTruncated,
		"duration_ms":    durationMs(startedAt, s.clock()),
	})
	return nil
}

// RunAnalysis analyzes a report already claimed by Analyze. Reports not in
// processing are skipped.
func (s *Service) RunAnalysis(ctx context.Context, reportID string) error {
	startedAt := s.clock()
	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Status != StatusProcessing {
		metrics.IncStage(metrics.StageAnalyze, "skipped")
		telemetry.Info("report.analyze.skipped", map[string]any{"report_id": reportID, "status": report.Status})
		return nil
	}
	metrics.IncStage(metrics.StageAnalyze, "started")

	if s.LLM == nil {
		err := errors.New("missing llm client")
		s.fail(ctx, report, metrics.StageAnalyze, err, startedAt)
		return err
	}

	text, err := s.analysisText(ctx, &report)
	if err != nil {
		s.fail(ctx, report, metrics.StageAnalyze, err, startedAt)
		return err
	}

	client := newRetryingLLM(s.LLM, report.ID, RequestIDFromContext(ctx), s.retryDelay)
	raw, err := client.AnalyzeReport(ctx, llm.AnalyzeInput{ReportID: report.ID, Text: text})
	if err != nil {
		err = fmt.Errorf("llm analyze: %w", err)
		s.fail(ctx, report, metrics.StageAnalyze, err, startedAt)
		return err
	}
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		s.fail(ctx, report, metrics.StageAnalyze, err, startedAt)
		return err
	}

	clearErr := ""
	updated, err := s.Repo.Apply(ctx, reportID, []string{StatusProcessing}, Update{
		Status:   StatusCompleted,
		Analysis: analysis,
		Error:    &clearErr,
	})
	if errors.Is(err, ErrInvalidStatus) {
		metrics.IncStage(metrics.StageAnalyze, "skipped")
		return nil
	}
	if err != nil {
		err = fmt.Errorf("%w: save analysis: %w", errStorage, err)
		s.fail(ctx, report, metrics.StageAnalyze, err, startedAt)
		return err
	}
	report = updated

	metrics.IncStage(metrics.StageAnalyze, "completed")
	metrics.ObserveStageDuration(metrics.StageAnalyze, s.clock().Sub(startedAt))
	s.logTransition(ctx, report, StatusProcessing+"->"+StatusCompleted, map[string]any{
		"duration_ms": durationMs(startedAt, s.clock()),
		"sentiment":   analysis.Sentiment.Overall,
	})
	return nil
}

// analysisText returns the full document text, extracting it inline when the
// report was analyzed before extraction finished.
func (s *Service) analysisText(ctx context.Context, report *Report) (string, error) {
	if report.ExtractedText == "" {
		fields, text, err := s.extractText(ctx, *report)
		if err != nil {
			return "", err
		}
		updated, err := s.Repo.Apply(ctx, report.ID, []string{StatusProcessing}, fields)
		if err != nil {
			return "", fmt.Errorf("%w: save extraction: %w", errStorage, err)
		}
		*report = updated
		return text, nil
	}
	if report.TextTruncated && report.ExtractedTextKey != "" {
		text, err := extract.LoadText(ctx, s.Store, report.ExtractedTextKey)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errStorage, err)
		}
		return text, nil
	}
	return report.ExtractedText, nil
}

// extractText extracts and stores the full text and returns the record fields to write.
func (s *Service) extractText(ctx context.Context, report Report) (Update, string, error) {
	text, err := extract.ExtractText(ctx, s.Store, s.Extractor, report.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return Update{}, "", fmt.Errorf("%w: %w", errStorage, err)
		}
		return Update{}, "", fmt.Errorf("%w: %w", errExtraction, err)
	}

	key := extract.ExtractedKey(report.StorageKey)
	stored, truncated := summarizeText(text)
	fullSize := 0
	if truncated {
		fullSize = len([]rune(text))
	}
	return Update{
		ExtractedText:    &stored,
		ExtractedTextKey: &key,
		TextTruncated:    &truncated,
		FullTextSize:     &fullSize,
	}, text, nil
}

// summarizeText keeps the head and tail of text that is too large to store on the record.
func summarizeText(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxStoredTextChars {
		return text, false
	}
	return string(runes[:textSummaryEdge]) + truncationMarker + string(runes[len(runes)-textSummaryEdge:]), true
}

// UpdateStatus overrides the status of a report. Setting completed is only
// accepted for reports that already carry an analysis.
func (s *Service) UpdateStatus(ctx context.Context, reportID, status string, errMsg *string) (Report, error) {
	return s.Update(ctx, reportID, Patch{Status: status, Error: errMsg})
}

// Update applies a manual patch. Providing an analysis implies completed.
func (s *Service) Update(ctx context.Context, reportID string, patch Patch) (Report, error) {
	status := strings.ToLower(strings.TrimSpace(patch.Status))
	u := Update{Status: status}
	if patch.Error != nil {
		msg := sanitizeMessage(*patch.Error)
		u.Error = &msg
	}

	var from []string
	if len(patch.Analysis) > 0 && string(patch.Analysis) != "null" {
		if status != "" && status != StatusCompleted {
			return Report{}, fmt.Errorf("%w: analysis requires status %s", ErrInvalidInput, StatusCompleted)
		}
		analysis, err := ParseAnalysis(patch.Analysis)
		if err != nil {
			return Report{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		u.Status = StatusCompleted
		u.Analysis = analysis
	} else {
		switch {
		case status == "" && patch.Error == nil:
			return Report{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
		case status != "" && !ValidStatus(status):
			return Report{}, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(Statuses, ", "))
		case status == StatusCompleted:
			// Only a report that is already completed has an analysis.
			from = []string{StatusCompleted}
		case status != "":
			u.ClearAnalysis = true
		}
	}

	report, err := s.Repo.Apply(ctx, reportID, from, u)
	if err != nil {
		return Report{}, err
	}
	if status != "" {
		s.logTransition(ctx, report, "->"+report.Status, map[string]any{"manual": true})
	}
	return report, nil
}

// Delete removes the report and its stored files.
func (s *Service) Delete(ctx context.Context, reportID string) error {
	report, err := s.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, reportID); err != nil {
		return err
	}
	for _, key := range []string{report.StorageKey, report.ExtractedTextKey} {
		if key == "" {
			continue
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			telemetry.Warn("report.delete.file_failed", map[string]any{"report_id": reportID, "storage_key": key, "error": err.Error()})
		}
	}
	telemetry.Info("report.deleted", map[string]any{"report_id": reportID, "request_id": RequestIDFromContext(ctx)})
	return nil
}

// schedule hands a step to the queue, falling back to a goroutine when no
// queue is configured or the send fails.
func (s *Service) schedule(ctx context.Context, reportID, job string) {
	requestID := RequestIDFromContext(ctx)
	if s.Queue != nil {
		err := queue.Enqueue(ctx, s.Queue, reportID, job, requestID, s.clock())
		if err == nil {
			return
		}
		telemetry.Warn("report.enqueue_failed", map[string]any{
			"report_id":  reportID,
			"job":        job,
			"request_id": requestID,
			"error":      err.Error(),
		})
	}
	go s.runAsync(detached(ctx), reportID, job)
}

func (s *Service) runAsync(ctx context.Context, reportID, job string) {
	defer func() {
		if r := recover(); r != nil {
			report, err := s.Repo.GetByID(ctx, reportID)
			if err != nil {
				report = Report{ID: reportID}
			}
			s.fail(ctx, report, job, fmt.Errorf("panic: %v", r), s.clock())
		}
	}()
	if err := s.Process(ctx, reportID, job); err != nil {
		telemetry.Warn("report.job_failed", map[string]any{
			"report_id":  reportID,
			"job":        job,
			"request_id": RequestIDFromContext(ctx),
			"error":      sanitizeError(err),
		})
	}
}

// fail marks a non-terminal report failed and records why.
func (s *Service) fail(ctx context.Context, report Report, stage string, err error, startedAt time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	from := report.Status
	if from == "" {
		from = "unknown"
	}
	writeCtx := context.WithoutCancel(ctx)
	updated, updateErr := s.Repo.Apply(writeCtx, report.ID, []string{StatusUploaded, StatusProcessing, StatusExtracted}, Update{
		Status:        StatusFailed,
		ClearAnalysis: true,
		Error:         &msg,
	})
	if updateErr != nil {
		telemetry.Error("report.fail.update_failed", map[string]any{
			"report_id": report.ID,
			"error":     updateErr.Error(),
			"original":  msg,
		})
	} else {
		report = updated
	}

	metrics.IncStage(stage, "failed")
	metrics.ObserveStageDuration(stage, s.clock().Sub(startedAt))
	telemetry.Warn("report.status", map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"report_id":         report.ID,
		"user_id":           report.UserID,
		"status":            StatusFailed,
		"status_transition": from + "->" + StatusFailed,
		"stage":             stage,
		"error_code":        code,
		"error":             msg,
		"duration_ms":       durationMs(startedAt, s.clock()),
	})
}

func (s *Service) logTransition(ctx context.Context, report Report, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        RequestIDFromContext(ctx),
		"report_id":         report.ID,
		"user_id":           report.UserID,
		"status":            report.Status,
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("report.status", fields)
}

func classifyFailure(err error) string {
	var statusErr *llm.StatusError
	switch {
	case err == nil:
		return ErrorCodeInternal
	case errors.Is(err, ErrInvalidInput):
		return ErrorCodeValidation
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeLLMTimeout
	case errors.Is(err, llm.ErrInvalidOutput):
		return ErrorCodeLLMSchemaMismatch
	case errors.Is(err, errStorage), errors.Is(err, object.ErrNotFound):
		return ErrorCodeStorage
	case errors.Is(err, errExtraction), errors.Is(err, extract.ErrNoText):
		return ErrorCodeExtraction
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusGatewayTimeout:
		return ErrorCodeLLMTimeout
	default:
		return ErrorCodeInternal
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeMessage(err.Error())
}

// maxErrorChars bounds the error stored on a report.
const maxErrorChars = 500

func sanitizeMessage(msg string) string {
	return util.OneLine(msg, maxErrorChars)
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
