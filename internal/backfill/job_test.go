package backfill

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicedocs-backend/internal/fixes"
)

type stubSummarizer struct {
	calls []string
	fail  map[string]bool
}

func (s *stubSummarizer) Summarize(_ context.Context, problem string) (string, error) {
	s.calls = append(s.calls, problem)
	if s.fail[problem] {
		return "", errors.New("provider unavailable")
	}
	return "summary of " + problem, nil
}

type stubEmbedder struct{ calls int }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (s *stubEmbedder) Model() string { return "stub" }

func strPtr(s string) *string { return &s }

func newRepo(t *testing.T, list ...fixes.Fix) *fixes.MemoryRepo {
	t.Helper()
	repo, err := fixes.NewMemoryRepo()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	for _, f := range list {
		require.NoError(t, repo.Create(context.Background(), f))
	}
	return repo
}

func legacyFix(id, problem string) fixes.Fix {
	return fixes.Fix{ID: id, DocumentID: "d", UserID: "u", ProblemDescription: problem, SolutionApplied: "Replaced part",
		MachineType: strPtr("compressor"), Embedding: []float32{1, 0}}
}

func TestRunFillsMissingFields(t *testing.T) {
	done := legacyFix("c", "Already done")
	done.SummarizedSearchableText = strPtr("done")
	done.EmbeddingSummarized = []float32{0, 1}
	done.SearchText = fixes.FullTextSource(done)

	repo := newRepo(t, legacyFix("a", " Belt slipping "), legacyFix("b", "Pump leak"), done)
	sum := &stubSummarizer{}
	emb := &stubEmbedder{}
	var out bytes.Buffer
	job := &Job{Repo: repo, Summarizer: sum, Embedder: emb, BatchSize: 1, Out: &out}

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 2, Processed: 2, Errors: 0}, report)
	assert.Equal(t, []string{"Belt slipping", "Pump leak"}, sum.calls)
	assert.Equal(t, 2, emb.calls)

	remaining, err := repo.CountBackfillCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	hits, err := repo.SearchFullText(context.Background(), "u", "pump compressor", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Fix.ID)
	require.NotNil(t, hits[0].Fix.SummarizedSearchableText)
	assert.Equal(t, "summary of Pump leak", *hits[0].Fix.SummarizedSearchableText)
	assert.Contains(t, out.String(), "backfill complete processed=2 errors=0 total=2")
}

func TestRunKeepsExistingSummary(t *testing.T) {
	f := legacyFix("a", "Belt slipping")
	f.SummarizedSearchableText = strPtr("Drive belt slip under load")
	repo := newRepo(t, f)
	sum := &stubSummarizer{}
	emb := &stubEmbedder{}

	report, err := (&Job{Repo: repo, Summarizer: sum, Embedder: emb}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, sum.calls)
	assert.Equal(t, 1, emb.calls)
}

func TestRunIsolatesRecordErrors(t *testing.T) {
	repo := newRepo(t, legacyFix("a", "Belt slipping"), legacyFix("b", "Pump leak"), legacyFix("c", "Fan noise"))
	sum := &stubSummarizer{fail: map[string]bool{"Pump leak": true}}

	report, err := (&Job{Repo: repo, Summarizer: sum, Embedder: &stubEmbedder{}, BatchSize: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 3, Processed: 2, Errors: 1}, report)

	remaining, err := repo.ListBackfillCandidates(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].ID)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	var list []fixes.Fix
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		list = append(list, legacyFix(id, strings.Repeat("overheating ", 10)))
	}
	repo := newRepo(t, list...)
	sum := &stubSummarizer{}
	var out bytes.Buffer

	report, err := (&Job{Repo: repo, Summarizer: sum, Embedder: &stubEmbedder{}, DryRun: true, Out: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 7}, report)
	assert.Empty(t, sum.calls)
	assert.Equal(t, 5, strings.Count(out.String(), "  - "))
	assert.Contains(t, out.String(), "... and 2 more")
	assert.Contains(t, out.String(), `..."`)

	remaining, err := repo.CountBackfillCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := newRepo(t, legacyFix("a", "Belt slipping"), legacyFix("b", "Pump leak"))
	ctx, cancel := context.WithCancel(context.Background())
	sum := &stubSummarizer{}
	job := &Job{Repo: repo, Summarizer: sum, Embedder: &stubEmbedder{}, Delay: time.Hour}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	report, err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Errors)
}

func TestRunNothingToDo(t *testing.T) {
	var out bytes.Buffer
	report, err := (&Job{Repo: newRepo(t), Out: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Contains(t, out.String(), "nothing to do")
}
