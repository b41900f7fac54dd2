// Package reportclient talks to the report API and polls reports until their
// analysis settles.
package reportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"financial-reporter/internal/reports"
	"financial-reporter/internal/shared/telemetry"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultUploadTries  = 3
	DefaultRetryDelay   = time.Second
)

// ErrPollTimeout is returned with the last seen report when polling runs out of time.
var ErrPollTimeout = errors.New("timed out waiting for report")

// Report is the report representation returned by the API.
type Report = reports.ReportResponse

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether another attempt might succeed.
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client calls the report endpoints under BaseURL.
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	Token      string
	GuestID    string
	RetryDelay time.Duration
	Attempts   int
}

// New builds a client for baseURL, e.g. http://localhost:8000.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: 60 * time.Second},
		RetryDelay: DefaultRetryDelay,
		Attempts:   DefaultUploadTries,
	}
}

// PollOptions tunes Poll. Zero values use DefaultPollInterval and no timeout.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnUpdate is called with every fetched report.
	OnUpdate func(Report)
}

// UploadFile uploads the file at path for userID.
func (c *Client) UploadFile(ctx context.Context, path, userID string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Upload(ctx, filepath.Base(path), data, userID)
}

// Upload sends a PDF, retrying network failures and 5xx/429 responses with a flat delay.
func (c *Client) Upload(ctx context.Context, fileName string, data []byte, userID string) (Report, error) {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultUploadTries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, contentType, err := multipartBody(fileName, data, userID)
		if err != nil {
			return Report{}, err
		}
		var report Report
		err = c.do(ctx, http.MethodPost, "/api/v1/reports/upload", contentType, body, &report)
		if err == nil {
			return report, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return Report{}, err
		}
		if ctx.Err() != nil || attempt == attempts {
			break
		}
		telemetry.Warn("reportclient.upload.retry", map[string]any{"attempt": attempt, "error": err.Error()})
		if err := sleep(ctx, c.RetryDelay); err != nil {
			return Report{}, err
		}
	}
	return Report{}, fmt.Errorf("upload failed after %d attempts: %w", attempts, lastErr)
}

// Get fetches one report.
func (c *Client) Get(ctx context.Context, id string) (Report, error) {
	var report Report
	err := c.do(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(id), "", nil, &report)
	return report, err
}

// ListOptions filters List.
type ListOptions struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

// List returns reports matching opts.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Report, error) {
	q := url.Values{}
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/v1/reports"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Report
	err := c.do(ctx, http.MethodGet, path, "", nil, &out)
	return out, err
}

// Analyze starts analysis and returns the accepted status.
func (c *Client) Analyze(ctx context.Context, id string) (string, error) {
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/reports/"+url.PathEscape(id)+"/analyze", "", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Poll re-fetches the report every interval until its status is terminal.
// Fetch errors during polling are logged and retried on the next tick. When the
// timeout elapses the last seen report is returned with ErrPollTimeout.
func (c *Client) Poll(ctx context.Context, id string, opts PollOptions) (Report, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	report, err := c.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if opts.OnUpdate != nil {
		opts.OnUpdate(report)
	}
	if isTerminal(report.Status) {
		return report, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return report, ErrPollTimeout
			}
			return report, ctx.Err()
		case <-ticker.C:
		}

		next, err := c.Get(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				telemetry.Warn("reportclient.poll.error", map[string]any{"report_id": id, "error": err.Error()})
			}
			continue
		}
		report = next
		if opts.OnUpdate != nil {
			opts.OnUpdate(report)
		}
		if isTerminal(report.Status) {
			return report, nil
		}
	}
}

func isTerminal(status string) bool {
	return status == reports.StatusCompleted || status == reports.StatusFailed
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else if c.GuestID != "" {
		req.Header.Set("X-Guest-Id", c.GuestID)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, payload []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(payload, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(payload))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func multipartBody(fileName string, data []byte, userID string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(fileName)))
	header.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if userID != "" {
		if err := w.WriteField("user_id", userID); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
