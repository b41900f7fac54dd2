package reports

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores reports in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Report
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]Report),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the report.
func (r *MemoryRepo) Create(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = report.UploadDate
	}
	r.byID[report.ID] = cloneReport(report)
	return nil
}

// GetByID returns a report by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.byID[reportID]
	if !ok {
		return Report{}, ErrNotFound
	}
	return cloneReport(report), nil
}

// List returns matching reports newest first, with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]Report, 0, len(r.byID))
	for _, report := range r.byID {
		if filter.UserID != "" && report.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && report.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneReport(report))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UploadDate.Equal(matched[j].UploadDate) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UploadDate.After(matched[j].UploadDate)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []Report{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return matched[offset:end], nil
}

// Apply writes u to the report, conditionally on its current status.
func (r *MemoryRepo) Apply(ctx context.Context, reportID string, from []string, u Update) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.byID[reportID]
	if !ok {
		return Report{}, ErrNotFound
	}
	if len(from) > 0 && !contains(from, report.Status) {
		return Report{}, ErrInvalidStatus
	}

	if u.Status != "" {
		report.Status = u.Status
	}
	if u.ExtractedText != nil {
		report.ExtractedText = *u.ExtractedText
	}
	if u.ExtractedTextKey != nil {
		report.ExtractedTextKey = *u.ExtractedTextKey
	}
	if u.TextTruncated != nil {
		report.TextTruncated = *u.TextTruncated
	}
	if u.FullTextSize != nil {
		report.FullTextSize = *u.FullTextSize
	}
	if u.ClearAnalysis {
		report.Analysis = nil
	}
	if u.Analysis != nil {
		report.Analysis = u.Analysis
	}
	if u.Error != nil {
		report.Error = *u.Error
	}
	report.UpdatedAt = r.now()
	r.byID[reportID] = report
	return cloneReport(report), nil
}

// Delete removes the report.
func (r *MemoryRepo) Delete(ctx context.Context, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[reportID]; !ok {
		return ErrNotFound
	}
	delete(r.byID, reportID)
	return nil
}

func cloneReport(report Report) Report {
	if report.Analysis != nil {
		a := *report.Analysis
		a.KeyPoints = append(make([]string, 0, len(a.KeyPoints)), a.KeyPoints...)
		a.Topics = append(make([]Topic, 0, len(a.Topics)), a.Topics...)
		a.Quotes = append(make([]Quote, 0, len(a.Quotes)), a.Quotes...)
		report.Analysis = &a
	}
	return report
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
