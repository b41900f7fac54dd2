package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var reportColumns = []string{
	"id", "user_id", "file_name", "file_size", "file_type", "storage_key", "status",
	"extracted_text", "extracted_text_key", "text_truncated", "full_text_size",
	"analysis", "error_message", "upload_date", "updated_at",
}

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
	qb sq.StatementBuilderType
}

// NewPGRepo constructs a PGRepo with Postgres placeholders.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{DB: db, qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Create inserts a new report.
func (r *PGRepo) Create(ctx context.Context, report Report) error {
	analysis, err := marshalAnalysis(report.Analysis)
	if err != nil {
		return err
	}
	updatedAt := report.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = report.UploadDate
	}
	query, args, err := r.qb.Insert("reports").
		Columns(reportColumns...).
		Values(
			report.ID,
			report.UserID,
			report.FileName,
			report.FileSize,
			report.FileType,
			report.StorageKey,
			report.Status,
			nullString(report.ExtractedText),
			nullString(report.ExtractedTextKey),
			report.TextTruncated,
			nullInt(report.FullTextSize),
			analysis,
			nullString(report.Error),
			report.UploadDate,
			updatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a report by ID.
func (r *PGRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	query, args, err := r.qb.Select(reportColumns...).
		From("reports").
		Where(sq.Eq{"id": reportID}).
		Limit(1).
		ToSql()
	if err != nil {
		return Report{}, fmt.Errorf("build select: %w", err)
	}
	report, err := scanReport(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	return report, nil
}

// List returns matching reports newest first.
func (r *PGRepo) List(ctx context.Context, filter ListFilter) ([]Report, error) {
	builder := r.qb.Select(reportColumns...).
		From("reports").
		OrderBy("upload_date DESC", "id DESC")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

// Apply writes u in a single conditional UPDATE ... RETURNING.
func (r *PGRepo) Apply(ctx context.Context, reportID string, from []string, u Update) (Report, error) {
	builder := r.qb.Update("reports").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": reportID})
	if u.Status != "" {
		builder = builder.Set("status", u.Status)
	}
	if u.ExtractedText != nil {
		builder = builder.Set("extracted_text", nullString(*u.ExtractedText))
	}
	if u.ExtractedTextKey != nil {
		builder = builder.Set("extracted_text_key", nullString(*u.ExtractedTextKey))
	}
	if u.TextTruncated != nil {
		builder = builder.Set("text_truncated", *u.TextTruncated)
	}
	if u.FullTextSize != nil {
		builder = builder.Set("full_text_size", nullInt(*u.FullTextSize))
	}
	if u.Analysis != nil {
		payload, err := marshalAnalysis(u.Analysis)
		if err != nil {
			return Report{}, err
		}
		builder = builder.Set("analysis", payload)
	} else if u.ClearAnalysis {
		builder = builder.Set("analysis", nil)
	}
	if u.Error != nil {
		builder = builder.Set("error_message", nullString(*u.Error))
	}
	if len(from) > 0 {
		builder = builder.Where(sq.Eq{"status": from})
	}

	query, args, err := builder.Suffix("RETURNING " + strings.Join(reportColumns, ", ")).ToSql()
	if err != nil {
		return Report{}, fmt.Errorf("build update: %w", err)
	}
	report, err := scanReport(r.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Report{}, err
	}

	// No row: either the id is unknown or the status guard rejected the write.
	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = $1`, reportID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	return Report{}, fmt.Errorf("%w: report is %s", ErrInvalidStatus, status)
}

// Delete removes the report row.
func (r *PGRepo) Delete(ctx context.Context, reportID string) error {
	query, args, err := r.qb.Delete("reports").Where(sq.Eq{"id": reportID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (Report, error) {
	var report Report
	var extractedText sql.NullString
	var extractedKey sql.NullString
	var fullTextSize sql.NullInt64
	var analysis []byte
	var errorMessage sql.NullString
	if err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.FileName,
		&report.FileSize,
		&report.FileType,
		&report.StorageKey,
		&report.Status,
		&extractedText,
		&extractedKey,
		&report.TextTruncated,
		&fullTextSize,
		&analysis,
		&errorMessage,
		&report.UploadDate,
		&report.UpdatedAt,
	); err != nil {
		return Report{}, err
	}
	report.ExtractedText = extractedText.String
	report.ExtractedTextKey = extractedKey.String
	report.FullTextSize = int(fullTextSize.Int64)
	report.Error = errorMessage.String
	if len(analysis) > 0 && string(analysis) != "null" {
		var parsed Analysis
		if err := json.Unmarshal(analysis, &parsed); err != nil {
			return Report{}, fmt.Errorf("decode analysis id=%s: %w", report.ID, err)
		}
		report.Analysis = &parsed
	}
	return report, nil
}

func marshalAnalysis(a *Analysis) (any, error) {
	if a == nil {
		return nil, nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return payload, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v > 0}
}
