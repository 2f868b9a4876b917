package fixes

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// MemoryRepo is an in-memory Repo for development and tests. Full-text
// search runs on an in-memory bleve index with English stemming.
type MemoryRepo struct {
	mu    sync.RWMutex
	data  map[string]Fix
	index bleve.Index
}

type indexedFix struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() (*MemoryRepo, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt("content", content)
	docMapping.AddFieldMappingsAt("user_id", bleve.NewKeywordFieldMapping())
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create fix index: %w", err)
	}
	return &MemoryRepo{data: make(map[string]Fix), index: index}, nil
}

// Create stores a fix and indexes its search text.
func (r *MemoryRepo) Create(ctx context.Context, fix Fix) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if fix.CreatedAt.IsZero() {
		fix.CreatedAt = now
	}
	fix.UpdatedAt = fix.CreatedAt
	fix.HasSearchVector = strings.TrimSpace(fix.SearchText) != ""

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reindex(fix); err != nil {
		return err
	}
	r.data[fix.ID] = cloneFix(fix)
	return nil
}

// DeleteByDocument removes every fix derived from a document.
func (r *MemoryRepo) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, f := range r.data {
		if f.DocumentID != documentID {
			continue
		}
		if err := r.index.Delete(id); err != nil {
			return n, fmt.Errorf("unindex fix %s: %w", id, err)
		}
		delete(r.data, id)
		n++
	}
	return n, nil
}

// ListByUser lists a user's fixes newest first.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, filter ListFilter) ([]Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	machineType := strings.TrimSpace(filter.MachineType)
	out := r.collect(func(f Fix) bool {
		if f.UserID != userID {
			return false
		}
		return machineType == "" || (f.MachineType != nil && *f.MachineType == machineType)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListByDocument lists the fixes of one document owned by userID.
func (r *MemoryRepo) ListByDocument(ctx context.Context, userID, documentID string) ([]Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.collect(func(f Fix) bool { return f.UserID == userID && f.DocumentID == documentID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SearchSubstring matches case-insensitively against the identifying fields.
func (r *MemoryRepo) SearchSubstring(ctx context.Context, userID, query string, limit int) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matches := r.collect(func(f Fix) bool {
		if f.UserID != userID {
			return false
		}
		for _, field := range []*string{f.ClientName, f.MachineModel, f.MachineType, f.SerialNumber, &f.ProblemDescription} {
			if field != nil && strings.Contains(strings.ToLower(*field), needle) {
				return true
			}
		}
		return false
	})
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	out := make([]Scored, 0, len(matches))
	for _, f := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, Scored{Fix: f, Similarity: 1.0})
	}
	return out, nil
}

// SearchEmbedding keeps the greater cosine similarity of the two embeddings.
func (r *MemoryRepo) SearchEmbedding(ctx context.Context, userID string, vector []float32, floor float64, limit int) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Scored
	for _, f := range r.collect(func(f Fix) bool { return f.UserID == userID }) {
		sim := math.Max(cosineOrZero(vector, f.Embedding), cosineOrZero(vector, f.EmbeddingSummarized))
		if sim > floor {
			out = append(out, Scored{Fix: f, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchFullText queries the bleve index. Scores are mapped into [0,1) with
// score/(score+1).
func (r *MemoryRepo) SearchFullText(ctx context.Context, userID, query string, limit int) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	match.SetOperator(blevequery.MatchQueryOperatorAnd)
	owner := bleve.NewTermQuery(userID)
	owner.SetField("user_id")

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(match, owner), limit, 0, false)
	res, err := r.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		f, ok := r.data[hit.ID]
		if !ok || f.UserID != userID {
			continue
		}
		out = append(out, Scored{Fix: cloneFix(f), Similarity: hit.Score / (hit.Score + 1)})
	}
	return out, nil
}

// CountBackfillCandidates counts fixes missing a derived search field.
func (r *MemoryRepo) CountBackfillCandidates(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(r.collect(Fix.NeedsBackfill)), nil
}

// ListBackfillCandidates pages through candidates ordered by id.
func (r *MemoryRepo) ListBackfillCandidates(ctx context.Context, afterID string, limit int) ([]Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.collect(func(f Fix) bool { return f.NeedsBackfill() && f.ID > afterID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateSearchFields writes the summary, its embedding and the search text together.
func (r *MemoryRepo) UpdateSearchFields(ctx context.Context, id string, u SearchFieldsUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	searchable := u.SearchableText
	summary := u.SummarizedText
	f.SearchableText = &searchable
	f.SummarizedSearchableText = &summary
	f.EmbeddingSummarized = append([]float32(nil), u.SummaryEmbedding...)
	f.SearchText = u.FullText
	f.HasSearchVector = true
	f.UpdatedAt = time.Now().UTC()
	if err := r.reindex(f); err != nil {
		return err
	}
	r.data[id] = f
	return nil
}

// Close releases the search index.
func (r *MemoryRepo) Close() error {
	return r.index.Close()
}

func (r *MemoryRepo) reindex(f Fix) error {
	if !f.HasSearchVector {
		return r.index.Delete(f.ID)
	}
	if err := r.index.Index(f.ID, indexedFix{UserID: f.UserID, Content: f.SearchText}); err != nil {
		return fmt.Errorf("index fix %s: %w", f.ID, err)
	}
	return nil
}

func (r *MemoryRepo) collect(keep func(Fix) bool) []Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Fix{}
	for _, f := range r.data {
		if keep(f) {
			out = append(out, cloneFix(f))
		}
	}
	return out
}

func cloneFix(f Fix) Fix {
	f.Embedding = append([]float32(nil), f.Embedding...)
	f.EmbeddingSummarized = append([]float32(nil), f.EmbeddingSummarized...)
	return f
}

// cosineOrZero returns the cosine similarity of a and b, or 0 when either is
// missing, zero, or of a different dimension.
func cosineOrZero(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Repo = (*MemoryRepo)(nil)
