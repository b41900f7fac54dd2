package reports

import "context"

// Repo defines persistence operations for reports.
type Repo interface {
	Create(ctx context.Context, report Report) error
	GetByID(ctx context.Context, reportID string) (Report, error)
	List(ctx context.Context, filter ListFilter) ([]Report, error)
	// Apply writes u to the report. When from is non-empty the write only
	// happens if the current status is one of from; otherwise it fails with
	// ErrInvalidStatus and leaves the record untouched.
	Apply(ctx context.Context, reportID string, from []string, u Update) (Report, error)
	Delete(ctx context.Context, reportID string) error
}
