package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Client abstracts the AI providers that analyze report text.
type Client interface {
	AnalyzeReport(ctx context.Context, input AnalyzeInput) (json.RawMessage, error)
}

// AnalyzeInput carries the text of one report.
type AnalyzeInput struct {
	ReportID string
	Text     string
}

// ErrInvalidOutput is returned when a provider reply cannot be used as JSON.
var ErrInvalidOutput = errors.New("llm output invalid")

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient reports whether a failed call is worth one more attempt:
// timeouts, 429/5xx replies and dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection reset", "eof", "broken pipe", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExtractJSON returns the span from the first '{' to the last '}' of a reply.
func ExtractJSON(reply string) (json.RawMessage, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidOutput)
	}
	raw := json.RawMessage(reply[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidOutput)
	}
	return raw, nil
}
