package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"servicedocs-backend/internal/documents"
	"servicedocs-backend/internal/fixes"
	"servicedocs-backend/internal/llm"
	openai "servicedocs-backend/internal/llm/openai"
	"servicedocs-backend/internal/processor"
	"servicedocs-backend/internal/queue"
	"servicedocs-backend/internal/search"
	"servicedocs-backend/internal/services/health"
	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/server"
	"servicedocs-backend/internal/shared/storage/db"
	"servicedocs-backend/internal/shared/storage/object"
	localstore "servicedocs-backend/internal/shared/storage/object/local"
	s3store "servicedocs-backend/internal/shared/storage/object/s3"
	"servicedocs-backend/internal/shared/telemetry"
	"servicedocs-backend/internal/trigger"
	"servicedocs-backend/internal/workerproc"
)

// App holds shared dependencies for every entrypoint.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.Store

	DocumentsRepo documents.Repo
	FixesRepo     fixes.Repo

	Extractor  llm.FixExtractor
	Embedder   llm.Embedder
	Summarizer llm.Summarizer

	Processor *processor.Processor
	// Dispatcher is SQS when SQS_QUEUE_URL is set. Without a queue it is the
	// processor itself inside Lambda and an in-process pool elsewhere.
	Dispatcher documents.Dispatcher
	// Trigger dispatches blob notifications through Dispatcher.
	Trigger *trigger.Trigger
	// Worker handles queue payloads and processes them synchronously.
	Worker *workerproc.Handler

	DocumentsService *documents.Service
	FixesService     *fixes.Service
	SearchEngine     *search.Engine

	async   *queue.AsyncDispatcher
	closers []func() error
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store}
	if err := buildRepos(app); err != nil {
		return nil, err
	}
	if err := buildLLM(app); err != nil {
		return nil, err
	}
	if err := buildPipeline(ctx, app); err != nil {
		return nil, err
	}
	buildServices(app)
	return app, nil
}

// Close releases the in-process worker pool and in-memory indexes.
func (a *App) Close(timeout time.Duration) error {
	var errs []error
	if a.async != nil {
		if err := a.async.Close(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildRepos(app *App) error {
	if app.DB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: app.DB}
		app.FixesRepo = &fixes.PGRepo{DB: app.DB}
		return nil
	}
	app.DocumentsRepo = documents.NewMemoryRepo()
	memFixes, err := fixes.NewMemoryRepo()
	if err != nil {
		return fmt.Errorf("in-memory fixes index: %w", err)
	}
	app.FixesRepo = memFixes
	app.closers = append(app.closers, memFixes.Close)
	return nil
}

func buildLLM(app *App) error {
	cfg := app.Config
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		telemetry.Warn("bootstrap.llm_unconfigured", map[string]any{"reason": "OPENAI_API_KEY empty"})
		app.Extractor = llm.Unconfigured{}
		app.Embedder = llm.Unconfigured{}
		app.Summarizer = llm.Unconfigured{}
		return nil
	}

	extractor, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	if err != nil {
		return err
	}
	embedder, err := openai.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	if err != nil {
		return err
	}
	summarizer, err := openai.NewSummarizer(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	if err != nil {
		return err
	}
	app.Extractor = extractor
	app.Embedder = embedder
	app.Summarizer = summarizer
	return nil
}

func buildPipeline(ctx context.Context, app *App) error {
	cfg := app.Config
	proc := &processor.Processor{
		Docs:       app.DocumentsRepo,
		Fixes:      app.FixesRepo,
		Store:      app.Store,
		Extractor:  app.Extractor,
		Embedder:   app.Embedder,
		Dimensions: cfg.EmbeddingDimensions,
	}
	if cfg.InlineSummaries {
		proc.Summarizer = app.Summarizer
	}
	app.Processor = proc

	switch {
	case cfg.SQSQueueURL != "":
		client, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return err
		}
		app.Dispatcher = queue.NewDispatcher(client)
	case db.IsLambdaRuntime():
		// Pool jobs would not outlive the invocation.
		telemetry.Warn("bootstrap.inline_processing", map[string]any{"reason": "SQS_QUEUE_URL empty in lambda"})
		app.Dispatcher = proc
	default:
		async, err := queue.NewAsyncDispatcher(cfg.WorkerConcurrency, proc.Process)
		if err != nil {
			return err
		}
		app.async = async
		app.Dispatcher = async
	}

	app.Trigger = &trigger.Trigger{Docs: app.DocumentsRepo, Dispatcher: app.Dispatcher}
	app.Worker = &workerproc.Handler{
		Processor: proc,
		Trigger:   &trigger.Trigger{Docs: app.DocumentsRepo, Dispatcher: proc},
	}
	return nil
}

func buildServices(app *App) {
	app.DocumentsService = &documents.Service{
		Store:      app.Store,
		Repo:       app.DocumentsRepo,
		Fixes:      app.FixesRepo,
		Dispatcher: app.Dispatcher,
		Bucket:     app.Config.S3Bucket,
	}
	app.FixesService = &fixes.Service{Repo: app.FixesRepo}
	app.SearchEngine = &search.Engine{
		Repo:     app.FixesRepo,
		Embedder: app.Embedder,
		Timeout:  app.Config.SearchTimeout,
	}

	var pinger health.Pinger
	if app.DB != nil {
		pinger = app.DB
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Health:          health.NewService(pinger),
		DocumentHandler: documents.NewHandler(app.DocumentsService),
		FixHandler:      fixes.NewHandler(app.FixesService),
		SearchHandler:   search.NewHandler(app.SearchEngine),
	})
}
