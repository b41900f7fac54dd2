package reports

import (
	"encoding/json"
	"time"
)

// ReportResponse is the outward-facing representation of a report.
type ReportResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	FileName      string    `json:"fileName"`
	FileSize      int64     `json:"fileSize"`
	FileType      string    `json:"fileType"`
	UploadDate    time.Time `json:"uploadDate"`
	UpdatedAt     time.Time `json:"updatedAt"`
	DownloadURL   string    `json:"downloadURL"`
	Status        string    `json:"status"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	TextTruncated bool      `json:"text_truncated,omitempty"`
	FullTextSize  int       `json:"full_text_size,omitempty"`
	Analysis      *Analysis `json:"analysis,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func toResponse(report Report, downloadURL string, withText bool) ReportResponse {
	resp := ReportResponse{
		ID:            report.ID,
		UserID:        report.UserID,
		FileName:      report.FileName,
		FileSize:      report.FileSize,
		FileType:      report.FileType,
		UploadDate:    report.UploadDate,
		UpdatedAt:     report.UpdatedAt,
		DownloadURL:   downloadURL,
		Status:        report.Status,
		TextTruncated: report.TextTruncated,
		FullTextSize:  report.FullTextSize,
		Error:         report.Error,
	}
	if withText {
		resp.ExtractedText = report.ExtractedText
	}
	if report.Status == StatusCompleted {
		resp.Analysis = report.Analysis
	}
	return resp
}

type updateStatusRequest struct {
	Status string  `json:"status" form:"status"`
	Error  *string `json:"error" form:"error"`
}

type updateRequest struct {
	Status   string          `json:"status"`
	Analysis json.RawMessage `json:"analysis"`
	Error    *string         `json:"error"`
}
