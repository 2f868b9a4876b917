package main

// Fill in search fields for fixes created before summaries existed:
//   go run ./cmd/backfill --dry-run
//   go run ./cmd/backfill --batch-size 20 --delay 500ms

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"servicedocs-backend/internal/backfill"
	"servicedocs-backend/internal/fixes"
	openai "servicedocs-backend/internal/llm/openai"
	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/storage/db"
)

type options struct {
	DryRun    bool
	BatchSize int
	Delay     time.Duration
}

type runFunc func(ctx context.Context, opts options) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runBackfill).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(run runFunc) *cli.App {
	return &cli.App{
		Name:  "backfill",
		Usage: "Generate summaries, summary embeddings and full-text vectors for existing fixes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "List candidates without calling the LLM or writing",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of records fetched per page",
				Value: backfill.DefaultBatchSize,
			},
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Pause after every provider call",
				Value: backfill.DefaultDelay,
			},
		},
		Action: func(c *cli.Context) error {
			opts := options{
				DryRun:    c.Bool("dry-run"),
				BatchSize: c.Int("batch-size"),
				Delay:     c.Duration("delay"),
			}
			if opts.BatchSize <= 0 {
				return fmt.Errorf("batch-size must be positive")
			}
			if opts.Delay < 0 {
				return fmt.Errorf("delay must not be negative")
			}
			return run(c.Context, opts)
		},
	}
}

func runBackfill(ctx context.Context, opts options) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer sqlDB.Close()

	job := &backfill.Job{
		Repo:       &fixes.PGRepo{DB: sqlDB},
		BatchSize:  opts.BatchSize,
		Delay:      opts.Delay,
		DryRun:     opts.DryRun,
		Dimensions: cfg.EmbeddingDimensions,
		Out:        os.Stdout,
	}
	if !opts.DryRun {
		summarizer, err := openai.NewSummarizer(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
		if err != nil {
			return err
		}
		embedder, err := openai.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
		if err != nil {
			return err
		}
		job.Summarizer = summarizer
		job.Embedder = embedder
	}

	report, err := job.Run(ctx)
	if err != nil {
		return err
	}
	if report.Errors > 0 {
		return fmt.Errorf("backfill finished with %d failed records", report.Errors)
	}
	return nil
}
