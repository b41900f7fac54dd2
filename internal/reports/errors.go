package reports

import "errors"

var (
	ErrNotFound            = errors.New("report not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("only PDF files are allowed")
	ErrFileTooLarge        = errors.New("file exceeds upload limit")
	ErrEmptyFile           = errors.New("file is empty")
)

// Failure codes attached to background failures in logs and metrics.
const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeExtraction        = "EXTRACTION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
