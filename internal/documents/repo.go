package documents

import (
	"context"
	"time"
)

// Repo defines persistence operations for documents. Methods taking a
// userID only see that user's documents; the others are for the pipeline.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	CreateBatch(ctx context.Context, docs []Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	GetForUser(ctx context.Context, userID, id string) (Document, error)
	GetByStorageKey(ctx context.Context, bucket, key string) (Document, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Document, int, error)
	StatusCounts(ctx context.Context, userID string) (StatusCounts, error)
	Delete(ctx context.Context, userID, id string) error

	MarkProcessing(ctx context.Context, id string) error
	SetExtractedText(ctx context.Context, id, text string, length int) error
	MarkCompleted(ctx context.Context, id string, processedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
}
