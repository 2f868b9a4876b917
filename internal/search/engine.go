package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/llm"
	"servicedocs-backend/internal/shared/metrics"
	"servicedocs-backend/internal/shared/telemetry"
)

const (
	MaxQueryLen          = 1000
	DefaultLimit         = 10
	MaxLimit             = 50
	DefaultMinSimilarity = 0.5
	DefaultTimeout       = 15 * time.Second

	// fullTextCeiling keeps keyword-only hits below substring and strong
	// semantic hits.
	fullTextCeiling = 0.9
)

// ErrInvalidInput marks a rejected query.
var ErrInvalidInput = errors.New("invalid search query")

// MatchType names the strategy that produced a result.
type MatchType string

const (
	MatchSubstring MatchType = "substring"
	MatchEmbedding MatchType = "embedding"
	MatchFullText  MatchType = "fulltext"
)

// Query is one hybrid search request.
type Query struct {
	UserID        string
	Text          string
	Limit         int
	MinSimilarity float64
}

// Result is a fix with the score and strategy that found it.
type Result struct {
	Fix        fixes.Fix
	Similarity float64
	MatchType  MatchType
}

// Engine runs substring, embedding and full-text retrieval concurrently and
// merges them. Strategies are merged in priority order and the first
// strategy to find a fix owns its score.
type Engine struct {
	Repo     fixes.Searcher
	Embedder llm.Embedder
	Timeout  time.Duration
}

// Search validates q and returns at most q.Limit results ordered by
// similarity. Any strategy failure fails the whole search.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	started := time.Now()
	metrics.IncSearchRequest()

	q, err := normalize(q)
	if err != nil {
		metrics.IncSearchFailed()
		return nil, err
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var substring, embedding, fullText []fixes.Scored
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		substring, err = e.Repo.SearchSubstring(gctx, q.UserID, q.Text, q.Limit)
		if err != nil {
			return fmt.Errorf("substring search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		vector, err := e.Embedder.Embed(gctx, q.Text)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		embedding, err = e.Repo.SearchEmbedding(gctx, q.UserID, vector, q.MinSimilarity, q.Limit)
		if err != nil {
			return fmt.Errorf("embedding search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fullText, err = e.Repo.SearchFullText(gctx, q.UserID, q.Text, q.Limit)
		if err != nil {
			return fmt.Errorf("full-text search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.IncSearchFailed()
		telemetry.Error("search.failed", map[string]any{
			"request_id": telemetry.RequestID(ctx),
			"user_id":    q.UserID,
			"error":      err.Error(),
		})
		return nil, err
	}

	for i := range fullText {
		fullText[i].Similarity = math.Min(fullText[i].Similarity, fullTextCeiling)
	}
	results := Merge(q.Limit,
		Ranked{Type: MatchSubstring, Hits: substring},
		Ranked{Type: MatchEmbedding, Hits: embedding},
		Ranked{Type: MatchFullText, Hits: fullText},
	)

	durationMs := float64(time.Since(started).Microseconds()) / 1000.0
	metrics.ObserveSearchDurationMs(durationMs)
	telemetry.Info("search.completed", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"user_id":     q.UserID,
		"substring":   len(substring),
		"embedding":   len(embedding),
		"fulltext":    len(fullText),
		"results":     len(results),
		"duration_ms": durationMs,
	})
	return results, nil
}

// Ranked is the output of one strategy.
type Ranked struct {
	Type MatchType
	Hits []fixes.Scored
}

// Merge keeps the first occurrence of every fix across strategies in the
// given order, sorts by similarity descending (stable, so ties keep strategy
// order) and truncates to limit.
func Merge(limit int, strategies ...Ranked) []Result {
	seen := make(map[string]struct{})
	out := []Result{}
	for _, s := range strategies {
		for _, hit := range s.Hits {
			if _, dup := seen[hit.Fix.ID]; dup {
				continue
			}
			seen[hit.Fix.ID] = struct{}{}
			out = append(out, Result{Fix: hit.Fix, Similarity: clamp(hit.Similarity), MatchType: s.Type})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func normalize(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" || utf8.RuneCountInString(q.Text) > MaxQueryLen {
		return q, fmt.Errorf("%w: query must be 1 to %d characters", ErrInvalidInput, MaxQueryLen)
	}
	if strings.TrimSpace(q.UserID) == "" {
		return q, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return q, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxLimit)
	}
	if math.IsNaN(q.MinSimilarity) || q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return q, fmt.Errorf("%w: minSimilarity must be between 0 and 1", ErrInvalidInput)
	}
	if q.MinSimilarity == 0 {
		q.MinSimilarity = DefaultMinSimilarity
	}
	return q, nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
