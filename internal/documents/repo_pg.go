package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, file_name, file_size, mime_type, s3_key, s3_bucket,
    processing_status, processing_error, extracted_text, extracted_text_length,
    created_at, updated_at, processed_at`

const insertDocument = `
INSERT INTO service_documents (
    id, user_id, file_name, file_size, mime_type, s3_key, s3_bucket,
    processing_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	return insert(ctx, r.DB, doc)
}

// CreateBatch inserts all documents in one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, docs []Document) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, doc := range docs {
		if err = insert(ctx, tx, doc); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

func insert(ctx context.Context, db execer, doc Document) error {
	status := doc.ProcessingStatus
	if status == "" {
		status = StatusPending
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := db.ExecContext(
		ctx,
		insertDocument,
		doc.ID,
		doc.UserID,
		doc.FileName,
		doc.FileSize,
		doc.MimeType,
		doc.S3Key,
		doc.S3Bucket,
		string(status),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert document key=%s: %w", doc.S3Key, err)
	}
	return nil
}

// GetByID fetches a document regardless of owner.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM service_documents WHERE id = $1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, id))
}

// GetForUser fetches a document owned by userID.
func (r *PGRepo) GetForUser(ctx context.Context, userID, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM service_documents WHERE id = $1 AND user_id = $2`
	return scanDocument(r.DB.QueryRowContext(ctx, query, id, userID))
}

// GetByStorageKey resolves a document from its blob location.
func (r *PGRepo) GetByStorageKey(ctx context.Context, bucket, key string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM service_documents WHERE s3_bucket = $1 AND s3_key = $2`
	return scanDocument(r.DB.QueryRowContext(ctx, query, bucket, key))
}

// ListByUser lists documents newest first and returns the unpaginated total.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Document, int, error) {
	where := ` WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND processing_status = $%d", len(args))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM service_documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	query := `SELECT ` + documentColumns + ` FROM service_documents` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// StatusCounts groups a user's documents by status.
func (r *PGRepo) StatusCounts(ctx context.Context, userID string) (StatusCounts, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT processing_status, count(*)
FROM service_documents
WHERE user_id = $1
GROUP BY processing_status`, userID)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, err
		}
		counts.add(Status(status), n)
	}
	return counts, rows.Err()
}

// Delete removes a document owned by userID. Fixes go with it via ON DELETE CASCADE.
func (r *PGRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM service_documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete document id=%s: %w", id, err)
	}
	return expectOne(res)
}

// MarkProcessing moves a document to processing and clears the last error.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, `
UPDATE service_documents
SET processing_status = 'processing', processing_error = NULL, updated_at = now()
WHERE id = $1`, id)
}

// SetExtractedText stores the PDF text and its length.
func (r *PGRepo) SetExtractedText(ctx context.Context, id, text string, length int) error {
	return r.update(ctx, `
UPDATE service_documents
SET extracted_text = $2, extracted_text_length = $3, updated_at = now()
WHERE id = $1`, id, text, length)
}

// MarkCompleted moves a document to completed.
func (r *PGRepo) MarkCompleted(ctx context.Context, id string, processedAt time.Time) error {
	return r.update(ctx, `
UPDATE service_documents
SET processing_status = 'completed', processing_error = NULL, processed_at = $2, updated_at = now()
WHERE id = $1`, id, processedAt)
}

// MarkFailed moves a document to failed and records message verbatim.
func (r *PGRepo) MarkFailed(ctx context.Context, id, message string) error {
	return r.update(ctx, `
UPDATE service_documents
SET processing_status = 'failed', processing_error = $2, updated_at = now()
WHERE id = $1`, id, message)
}

func (r *PGRepo) update(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, strings.TrimSpace(query), args...)
	if err != nil {
		return fmt.Errorf("update document id=%v: %w", args[0], err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc          Document
		status       string
		errMsg, text sql.NullString
		textLength   sql.NullInt64
		processedAt  sql.NullTime
	)
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.FileName,
		&doc.FileSize,
		&doc.MimeType,
		&doc.S3Key,
		&doc.S3Bucket,
		&status,
		&errMsg,
		&text,
		&textLength,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.ProcessingStatus = Status(status)
	if errMsg.Valid {
		doc.ProcessingError = &errMsg.String
	}
	if text.Valid {
		doc.ExtractedText = &text.String
	}
	if textLength.Valid {
		n := int(textLength.Int64)
		doc.ExtractedTextLength = &n
	}
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return doc, nil
}

var _ Repo = (*PGRepo)(nil)
