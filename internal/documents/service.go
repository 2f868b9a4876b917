package documents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/shared/storage/object"
	"servicedocs-backend/internal/shared/telemetry"
	"servicedocs-backend/internal/shared/util"
)

const (
	MaxFileSize      = 10 << 20 // 10MB
	MaxFileNameLen   = 255
	MaxBatchFiles    = 20
	DefaultListLimit = 20
	MaxListLimit     = 100

	pdfMimeType = "application/pdf"
)

// Dispatcher schedules a document for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// UploadInput is the caller's declaration of a file it is about to upload.
type UploadInput struct {
	FileName string
	FileSize int64
	MimeType string
}

// UploadTicket is the write credential issued for one file.
type UploadTicket struct {
	DocumentID string
	FileName   string
	UploadURL  string
	S3Key      string
	ExpiresIn  time.Duration
}

// Page is one page of a user's documents.
type Page struct {
	Documents []Document
	Total     int
}

// WithFixes is a document with the fixes extracted from it.
type WithFixes struct {
	Document Document
	Fixes    []fixes.Fix
}

// Service contains business logic for documents.
type Service struct {
	Store      object.Store
	Repo       Repo
	Fixes      fixes.Store
	Dispatcher Dispatcher
	Bucket     string

	now func() time.Time
}

// InitiateUpload validates the declared file, issues a presigned PUT and
// records a pending document. Nothing is written to the blob store.
func (s *Service) InitiateUpload(ctx context.Context, userID string, in UploadInput) (UploadTicket, error) {
	tickets, docs, err := s.prepare(ctx, userID, []UploadInput{in})
	if err != nil {
		return UploadTicket{}, err
	}
	if err := s.Repo.Create(ctx, docs[0]); err != nil {
		return UploadTicket{}, err
	}
	logInitiated(docs)
	return tickets[0], nil
}

// InitiateUploadBatch is InitiateUpload for 1..MaxBatchFiles files. Every
// file is validated before any credential is issued and all documents are
// recorded in one write.
func (s *Service) InitiateUploadBatch(ctx context.Context, userID string, in []UploadInput) ([]UploadTicket, error) {
	if len(in) == 0 || len(in) > MaxBatchFiles {
		return nil, fmt.Errorf("%w: between 1 and %d files are required", ErrInvalidInput, MaxBatchFiles)
	}
	tickets, docs, err := s.prepare(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateBatch(ctx, docs); err != nil {
		return nil, err
	}
	logInitiated(docs)
	return tickets, nil
}

func (s *Service) prepare(ctx context.Context, userID string, in []UploadInput) ([]UploadTicket, []Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	names := make([]string, len(in))
	for i, file := range in {
		name, err := validateUpload(file)
		if err != nil {
			if len(in) > 1 {
				return nil, nil, fmt.Errorf("file %d: %w", i, err)
			}
			return nil, nil, err
		}
		names[i] = name
	}

	now := s.clock()
	tickets := make([]UploadTicket, 0, len(in))
	docs := make([]Document, 0, len(in))
	for i, file := range in {
		key, err := storageKey(userID, names[i], now)
		if err != nil {
			return nil, nil, err
		}
		presigned, err := s.Store.PresignPut(ctx, object.PutRequest{
			Bucket:        s.Bucket,
			Key:           key,
			ContentType:   pdfMimeType,
			ContentLength: file.FileSize,
			Expires:       object.DefaultPresignExpiry,
		})
		if err != nil {
			return nil, nil, err
		}

		doc := Document{
			ID:               uuid.NewString(),
			UserID:           userID,
			FileName:         strings.TrimSpace(file.FileName),
			FileSize:         file.FileSize,
			MimeType:         pdfMimeType,
			S3Key:            key,
			S3Bucket:         s.Bucket,
			ProcessingStatus: StatusPending,
			CreatedAt:        now,
		}
		docs = append(docs, doc)
		tickets = append(tickets, UploadTicket{
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			UploadURL:  presigned.URL,
			S3Key:      key,
			ExpiresIn:  object.DefaultPresignExpiry,
		})
	}
	return tickets, docs, nil
}

// List returns a page of the user's documents, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) (Page, error) {
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit < 1 || filter.Limit > MaxListLimit {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxListLimit)
	}
	if filter.Offset < 0 {
		return Page{}, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	docs, total, err := s.Repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Documents: docs, Total: total}, nil
}

// StatusCounts returns the number of the user's documents per status.
func (s *Service) StatusCounts(ctx context.Context, userID string) (StatusCounts, error) {
	return s.Repo.StatusCounts(ctx, userID)
}

// Get returns a document owned by userID together with its fixes.
func (s *Service) Get(ctx context.Context, userID, id string) (WithFixes, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return WithFixes{}, err
	}
	list, err := s.Fixes.ListByDocument(ctx, userID, doc.ID)
	if err != nil {
		return WithFixes{}, err
	}
	return WithFixes{Document: doc, Fixes: list}, nil
}

// Delete removes a document and its fixes. The stored PDF is removed on a
// best-effort basis.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if _, err := s.Fixes.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, userID, doc.ID); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, doc.S3Bucket, doc.S3Key); err != nil {
		telemetry.Warn("document.blob_delete_failed", map[string]any{
			"document_id": doc.ID,
			"s3_key":      doc.S3Key,
			"error":       err.Error(),
		})
	}
	telemetry.Info("document.deleted", map[string]any{
		"document_id": doc.ID,
		"user_id":     userID,
	})
	return nil
}

// Reprocess schedules a document for a full rebuild of its fixes.
func (s *Service) Reprocess(ctx context.Context, userID, id string) (Document, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return Document{}, err
	}
	if s.Dispatcher == nil {
		return Document{}, errors.New("document dispatcher not configured")
	}
	if err := s.Dispatcher.Dispatch(ctx, doc.ID); err != nil {
		return Document{}, fmt.Errorf("dispatch document %s: %w", doc.ID, err)
	}
	telemetry.Info("document.reprocess_requested", map[string]any{
		"document_id":       doc.ID,
		"user_id":           userID,
		"status_transition": reprocessTransition(doc),
	})
	return doc, nil
}

// reprocessTransition describes a reprocess request. The status itself only
// moves once the processor picks the document up.
func reprocessTransition(doc Document) string {
	return string(doc.ProcessingStatus) + "->requested"
}

// DocumentURL issues a presigned inline GET for the stored PDF.
func (s *Service) DocumentURL(ctx context.Context, userID, id string) (object.Presigned, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return object.Presigned{}, err
	}
	return s.Store.PresignGet(ctx, object.GetRequest{
		Bucket:      doc.S3Bucket,
		Key:         doc.S3Key,
		FileName:    doc.FileName,
		ContentType: pdfMimeType,
		Expires:     object.DefaultPresignExpiry,
	})
}

func (s *Service) owned(ctx context.Context, userID, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, fmt.Errorf("%w: document id must be a uuid", ErrInvalidInput)
	}
	return s.Repo.GetForUser(ctx, userID, id)
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func validateUpload(in UploadInput) (string, error) {
	name := strings.TrimSpace(in.FileName)
	if name == "" || utf8.RuneCountInString(name) > MaxFileNameLen {
		return "", fmt.Errorf("%w: fileName must be 1 to %d characters", ErrInvalidInput, MaxFileNameLen)
	}
	if in.FileSize <= 0 || in.FileSize > MaxFileSize {
		return "", fmt.Errorf("%w: fileSize must be positive and at most %d bytes", ErrInvalidInput, MaxFileSize)
	}
	if strings.TrimSpace(in.MimeType) != pdfMimeType {
		return "", fmt.Errorf("%w: mimeType must be %s", ErrInvalidInput, pdfMimeType)
	}
	safe, err := util.SanitizeFileName(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return safe, nil
}

// storageKey builds documents/{userId}/{unixMillis}-{random}-{fileName}.
func storageKey(userID, fileName string, now time.Time) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate storage key: %w", err)
	}
	safeUser, err := util.SanitizeFileName(userID)
	if err != nil {
		return "", fmt.Errorf("%w: user id", ErrInvalidInput)
	}
	return "documents/" + safeUser + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + hex.EncodeToString(b[:]) + "-" + fileName, nil
}

func logInitiated(docs []Document) {
	for _, doc := range docs {
		telemetry.Info("document.upload_initiated", map[string]any{
			"document_id":       doc.ID,
			"user_id":           doc.UserID,
			"s3_key":            doc.S3Key,
			"file_size":         doc.FileSize,
			"status_transition": "->" + string(StatusPending),
		})
	}
}
