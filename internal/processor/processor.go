package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"servicedocs-backend/internal/documents"
	"servicedocs-backend/internal/extract"
	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/llm"
	"servicedocs-backend/internal/shared/metrics"
	"servicedocs-backend/internal/shared/storage/object"
	"servicedocs-backend/internal/shared/telemetry"
)

// DefaultEmbeddingDimensions matches the vector(1536) columns.
const DefaultEmbeddingDimensions = 1536

// Processor turns an uploaded PDF into fix records. Every run rebuilds the
// document's fixes from scratch, so redelivered or repeated requests are safe.
type Processor struct {
	Docs       documents.Repo
	Fixes      fixes.Store
	Store      object.Store
	Extractor  llm.FixExtractor
	Embedder   llm.Embedder
	Summarizer llm.Summarizer // optional; backfill fills summaries otherwise

	// Dimensions is the required embedding length. Zero means DefaultEmbeddingDimensions.
	Dimensions int

	now   func() time.Time
	newID func() string
}

// Dispatch processes the document synchronously. It lets the processor stand
// in wherever a documents.Dispatcher is expected.
func (p *Processor) Dispatch(ctx context.Context, documentID string) error {
	return p.Process(ctx, documentID)
}

// Process runs the full pipeline for one document. Any failure is recorded on
// the document verbatim and returned so an outer redrive can act.
func (p *Processor) Process(ctx context.Context, documentID string) error {
	startedAt := p.clock()
	metrics.IncDocumentStarted()

	count, err := p.run(ctx, documentID)
	if err != nil {
		p.fail(ctx, documentID, err, startedAt)
		return err
	}

	durationMs := float64(p.clock().Sub(startedAt).Microseconds()) / 1000.0
	metrics.IncDocumentProcessed()
	metrics.AddFixesExtracted(count)
	metrics.ObserveProcessingDurationMs(durationMs)
	telemetry.Info("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"document_id":       documentID,
		"status":            documents.StatusCompleted,
		"status_transition": "processing->completed",
		"fixes":             count,
		"duration_ms":       durationMs,
	})
	return nil
}

func (p *Processor) run(ctx context.Context, documentID string) (int, error) {
	if p.Docs == nil || p.Fixes == nil || p.Store == nil {
		return 0, errors.New("processor: missing storage dependencies")
	}
	if p.Extractor == nil || p.Embedder == nil {
		return 0, errors.New("processor: missing llm dependencies")
	}

	// Clean slate first: a retry must never leave duplicates behind.
	removed, err := p.Fixes.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete existing fixes: %w", err)
	}
	if err := p.Docs.MarkProcessing(ctx, documentID); err != nil {
		return 0, fmt.Errorf("mark processing: %w", err)
	}
	telemetry.Info("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"document_id":       documentID,
		"status":            documents.StatusProcessing,
		"status_transition": "->processing",
		"removed_fixes":     removed,
	})

	doc, err := p.Docs.GetByID(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("document lookup id=%s: %w", documentID, err)
	}

	text, err := p.readText(ctx, doc)
	if err != nil {
		return 0, err
	}
	if err := p.Docs.SetExtractedText(ctx, doc.ID, text, len(text)); err != nil {
		return 0, fmt.Errorf("store extracted text: %w", err)
	}

	raw, err := p.Extractor.ExtractFixes(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("structured extraction: %w", err)
	}
	extracted, err := llm.ParseFixes(raw)
	if err != nil {
		return 0, err
	}

	for i, ef := range extracted {
		fix, err := p.buildFix(ctx, doc, ef)
		if err != nil {
			return 0, fmt.Errorf("fix %d: %w", i, err)
		}
		if err := p.Fixes.Create(ctx, fix); err != nil {
			return 0, fmt.Errorf("fix %d: %w", i, err)
		}
	}

	if err := p.Docs.MarkCompleted(ctx, doc.ID, p.clock()); err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	return len(extracted), nil
}

func (p *Processor) readText(ctx context.Context, doc documents.Document) (string, error) {
	body, err := p.Store.Open(ctx, doc.S3Bucket, doc.S3Key)
	if err != nil {
		return "", fmt.Errorf("fetch pdf key=%s: %w", doc.S3Key, err)
	}
	defer body.Close()

	data, err := extract.ReadPDF(body)
	if err != nil {
		return "", fmt.Errorf("fetch pdf key=%s: %w", doc.S3Key, err)
	}
	return extract.TextFromPDF(ctx, data)
}

func (p *Processor) buildFix(ctx context.Context, doc documents.Document, ef llm.ExtractedFix) (fixes.Fix, error) {
	searchable := strings.TrimSpace(ef.ProblemDescription)
	embedding, err := p.embed(ctx, searchable)
	if err != nil {
		return fixes.Fix{}, err
	}

	now := p.clock()
	fix := fixes.Fix{
		ID:                 p.id(),
		DocumentID:         doc.ID,
		UserID:             doc.UserID,
		ClientName:         ef.ClientName,
		ClientAddress:      ef.ClientAddress,
		ClientPhone:        ef.ClientPhone,
		MachineModel:       ef.MachineModel,
		MachineType:        ef.MachineType,
		SerialNumber:       ef.SerialNumber,
		ProblemDescription: ef.ProblemDescription,
		SolutionApplied:    ef.SolutionApplied,
		PartsUsed:          ef.PartsUsed,
		ServiceDate:        ef.ServiceDate,
		TechnicianName:     ef.TechnicianName,
		TechnicianID:       ef.TechnicianID,
		LabourHours:        ef.LabourHours,
		SearchableText:     &searchable,
		Embedding:          embedding,
		EmbeddingModel:     p.Embedder.Model(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	fix.SearchText = fixes.FullTextSource(fix)

	if p.Summarizer != nil {
		summary, err := p.Summarizer.Summarize(ctx, searchable)
		if err != nil {
			return fixes.Fix{}, fmt.Errorf("summarize: %w", err)
		}
		secondary, err := p.embed(ctx, summary)
		if err != nil {
			return fixes.Fix{}, err
		}
		fix.SummarizedSearchableText = &summary
		fix.EmbeddingSummarized = secondary
	}
	return fix, nil
}

func (p *Processor) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	want := p.Dimensions
	if want == 0 {
		want = DefaultEmbeddingDimensions
	}
	if len(vec) != want {
		return nil, fmt.Errorf("embedding: expected %d dimensions, got %d", want, len(vec))
	}
	return vec, nil
}

func (p *Processor) fail(ctx context.Context, documentID string, cause error, startedAt time.Time) {
	// The caller's context may already be done; the failure must still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Docs.MarkFailed(writeCtx, documentID, cause.Error()); err != nil {
		telemetry.Error("document.mark_failed_error", map[string]any{
			"document_id": documentID,
			"error":       err.Error(),
			"cause":       cause.Error(),
		})
	}

	durationMs := float64(p.clock().Sub(startedAt).Microseconds()) / 1000.0
	metrics.IncDocumentFailed()
	metrics.ObserveProcessingDurationMs(durationMs)
	telemetry.Warn("document.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"document_id":       documentID,
		"status":            documents.StatusFailed,
		"status_transition": "processing->failed",
		"error":             cause.Error(),
		"duration_ms":       durationMs,
	})
}

func (p *Processor) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now().UTC()
}

func (p *Processor) id() string {
	if p.newID != nil {
		return p.newID()
	}
	return uuid.NewString()
}

var _ documents.Dispatcher = (*Processor)(nil)
