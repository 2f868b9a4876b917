package documents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document // id -> document
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new document. Storage keys are unique.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	return r.CreateBatch(ctx, []Document{doc})
}

// CreateBatch stores all documents or none.
func (r *MemoryRepo) CreateBatch(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make(map[string]struct{}, len(r.data)+len(docs))
	for _, d := range r.data {
		keys[d.S3Key] = struct{}{}
	}
	prepared := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if _, dup := keys[doc.S3Key]; dup {
			return fmt.Errorf("insert document key=%s: duplicate storage key", doc.S3Key)
		}
		if _, dup := r.data[doc.ID]; dup {
			return fmt.Errorf("insert document id=%s: duplicate id", doc.ID)
		}
		keys[doc.S3Key] = struct{}{}
		if doc.ProcessingStatus == "" {
			doc.ProcessingStatus = StatusPending
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = r.now()
		}
		doc.UpdatedAt = doc.CreatedAt
		prepared = append(prepared, doc)
	}
	for _, doc := range prepared {
		r.data[doc.ID] = doc
	}
	return nil
}

// GetByID fetches a document regardless of owner.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// GetForUser fetches a document owned by userID.
func (r *MemoryRepo) GetForUser(ctx context.Context, userID, id string) (Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// GetByStorageKey resolves a document from its blob location.
func (r *MemoryRepo) GetByStorageKey(ctx context.Context, bucket, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.data {
		if doc.S3Bucket == bucket && doc.S3Key == key {
			return doc, nil
		}
	}
	return Document{}, ErrNotFound
}

// ListByUser returns documents newest first, honoring limit/offset, plus the total.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	docs := []Document{}
	for _, doc := range r.data {
		if doc.UserID != userID {
			continue
		}
		if filter.Status != "" && doc.ProcessingStatus != filter.Status {
			continue
		}
		docs = append(docs, doc)
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	total := len(docs)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Document{}, total, nil
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return docs[offset:end], total, nil
}

// StatusCounts groups a user's documents by status.
func (r *MemoryRepo) StatusCounts(ctx context.Context, userID string) (StatusCounts, error) {
	if err := ctx.Err(); err != nil {
		return StatusCounts{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var counts StatusCounts
	for _, doc := range r.data {
		if doc.UserID == userID {
			counts.add(doc.ProcessingStatus, 1)
		}
	}
	return counts, nil
}

// Delete removes a document owned by userID.
func (r *MemoryRepo) Delete(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok || doc.UserID != userID {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// MarkProcessing moves a document to processing and clears the last error.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ProcessingStatus = StatusProcessing
		doc.ProcessingError = nil
	})
}

// SetExtractedText stores the PDF text and its length.
func (r *MemoryRepo) SetExtractedText(ctx context.Context, id, text string, length int) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ExtractedText = &text
		doc.ExtractedTextLength = &length
	})
}

// MarkCompleted moves a document to completed.
func (r *MemoryRepo) MarkCompleted(ctx context.Context, id string, processedAt time.Time) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ProcessingStatus = StatusCompleted
		doc.ProcessingError = nil
		doc.ProcessedAt = &processedAt
	})
}

// MarkFailed moves a document to failed and records message verbatim.
func (r *MemoryRepo) MarkFailed(ctx context.Context, id, message string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ProcessingStatus = StatusFailed
		doc.ProcessingError = &message
	})
}

func (r *MemoryRepo) mutate(ctx context.Context, id string, fn func(*Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	fn(&doc)
	doc.UpdatedAt = r.now()
	r.data[id] = doc
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
