package reports

import "time"

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusExtracted  = "extracted"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Statuses lists every canonical report status.
var Statuses = []string{StatusUploaded, StatusProcessing, StatusExtracted, StatusCompleted, StatusFailed}

// Report is an uploaded financial document and everything derived from it.
type Report struct {
	ID               string
	UserID           string
	FileName         string
	FileSize         int64
	FileType         string
	StorageKey       string
	Status           string
	ExtractedText    string
	ExtractedTextKey string
	TextTruncated    bool
	FullTextSize     int
	Analysis         *Analysis
	Error            string
	UploadDate       time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether no further workflow step will change the status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ValidStatus reports whether status is one of Statuses.
func ValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Update describes a partial write to a report. Nil fields are left alone.
type Update struct {
	Status           string
	ExtractedText    *string
	ExtractedTextKey *string
	TextTruncated    *bool
	FullTextSize     *int
	Analysis         *Analysis
	ClearAnalysis    bool
	Error            *string
}

// ListFilter selects reports for List.
type ListFilter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}
