package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the payload version written by this build.
const MessageVersion = 1

// Job names understood by workers.
const (
	JobExtract = "extract"
	JobAnalyze = "analyze"
)

// Message asks a worker to run one workflow step for a report.
type Message struct {
	ReportID   string `json:"reportId"`
	Job        string `json:"job"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps a message with the current time and version.
func NewMessage(reportID, job, requestID string, now time.Time) Message {
	return Message{
		ReportID:   reportID,
		Job:        job,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message. A missing job means extract.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Job == "" {
		msg.Job = JobExtract
	}
	return msg, nil
}
