package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/llm"
	"servicedocs-backend/internal/shared/metrics"
	"servicedocs-backend/internal/shared/telemetry"
)

const (
	DefaultBatchSize = 10
	DefaultDelay     = 200 * time.Millisecond

	dryRunPreview = 5
	previewLen    = 50
)

// Report summarizes one run.
type Report struct {
	Candidates int
	Processed  int
	Errors     int
}

// Job fills in the summary, summary embedding and full-text vector of fixes
// created before those fields existed. Records are independent: a failure is
// logged and counted and the run moves on.
type Job struct {
	Repo       fixes.Backfiller
	Summarizer llm.Summarizer
	Embedder   llm.Embedder

	BatchSize int
	// Delay is slept after every provider call. Zero disables it.
	Delay  time.Duration
	DryRun bool
	// Dimensions is the required embedding length; zero skips the check.
	Dimensions int
	Out        io.Writer
}

// Run pages through candidates by id. Completed records stop matching the
// candidate filter and failed ones are skipped by the cursor, so every
// record is attempted once.
func (j *Job) Run(ctx context.Context) (Report, error) {
	if j.Repo == nil {
		return Report{}, errors.New("backfill: repository is required")
	}
	out := j.Out
	if out == nil {
		out = io.Discard
	}
	batch := j.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	count, err := j.Repo.CountBackfillCandidates(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count candidates: %w", err)
	}
	report := Report{Candidates: count}
	mode := "live"
	if j.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(out, "backfill mode=%s batch_size=%d delay=%s candidates=%d\n", mode, batch, j.Delay, count)
	telemetry.Info("backfill.started", map[string]any{
		"mode":       mode,
		"candidates": count,
		"batch_size": batch,
	})

	if count == 0 {
		fmt.Fprintln(out, "nothing to do: all records are up to date")
		return report, nil
	}
	if j.DryRun {
		return report, j.preview(ctx, out, count)
	}
	if j.Summarizer == nil || j.Embedder == nil {
		return report, errors.New("backfill: summarizer and embedder are required")
	}

	afterID := ""
	for {
		page, err := j.Repo.ListBackfillCandidates(ctx, afterID, batch)
		if err != nil {
			return report, fmt.Errorf("list candidates after %q: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}
		for _, fix := range page {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := j.backfillOne(ctx, fix); err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Errors++
				metrics.IncBackfillRecordError()
				telemetry.Error("backfill.record_failed", map[string]any{
					"fix_id": fix.ID,
					"error":  err.Error(),
				})
				fmt.Fprintf(out, "error %s: %v\n", fix.ID, err)
				continue
			}
			report.Processed++
			metrics.IncBackfillRecord()
			fmt.Fprintf(out, "[%d/%d] updated %s\n", report.Processed, count, fix.ID)
		}
		afterID = page[len(page)-1].ID
	}

	telemetry.Info("backfill.completed", map[string]any{
		"candidates": report.Candidates,
		"processed":  report.Processed,
		"errors":     report.Errors,
	})
	fmt.Fprintf(out, "backfill complete processed=%d errors=%d total=%d\n", report.Processed, report.Errors, report.Candidates)
	return report, nil
}

func (j *Job) preview(ctx context.Context, out io.Writer, count int) error {
	page, err := j.Repo.ListBackfillCandidates(ctx, "", dryRunPreview)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	fmt.Fprintln(out, "dry run: would update the following records:")
	for _, fix := range page {
		fmt.Fprintf(out, "  - %s: %q\n", fix.ID, preview(fix.ProblemDescription))
	}
	if count > len(page) {
		fmt.Fprintf(out, "  ... and %d more\n", count-len(page))
	}
	return nil
}

func (j *Job) backfillOne(ctx context.Context, fix fixes.Fix) error {
	searchable := strings.TrimSpace(fix.ProblemDescription)
	if fix.SearchableText != nil && strings.TrimSpace(*fix.SearchableText) != "" {
		searchable = *fix.SearchableText
	}

	var summary string
	if fix.SummarizedSearchableText != nil && *fix.SummarizedSearchableText != "" {
		summary = *fix.SummarizedSearchableText
	} else {
		var err error
		summary, err = j.Summarizer.Summarize(ctx, searchable)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		if err := j.sleep(ctx); err != nil {
			return err
		}
	}

	vector, err := j.Embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	if j.Dimensions > 0 && len(vector) != j.Dimensions {
		return fmt.Errorf("embed summary: expected %d dimensions, got %d", j.Dimensions, len(vector))
	}
	if err := j.sleep(ctx); err != nil {
		return err
	}

	return j.Repo.UpdateSearchFields(ctx, fix.ID, fixes.SearchFieldsUpdate{
		SearchableText:   searchable,
		SummarizedText:   summary,
		SummaryEmbedding: vector,
		FullText:         fixes.FullTextSource(fix),
	})
}

func (j *Job) sleep(ctx context.Context) error {
	if j.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(j.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	return string([]rune(s)[:previewLen]) + "..."
}
