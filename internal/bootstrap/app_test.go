package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicedocs-backend/internal/documents"
	"servicedocs-backend/internal/queue"
	"servicedocs-backend/internal/shared/config"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Env:                 "dev",
		ObjectStoreType:     "local",
		LocalStoreDir:       t.TempDir(),
		S3Bucket:            "service-documents",
		WorkerConcurrency:   2,
		EmbeddingDimensions: 1536,
		SearchTimeout:       time.Second,
	}
}

func TestBuildUsesWorkerPoolWithoutQueue(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	app, err := Build(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(time.Second) })

	assert.IsType(t, &queue.AsyncDispatcher{}, app.Dispatcher)
	assert.Same(t, app.DocumentsService.Dispatcher, app.Dispatcher)
}

func TestBuildProcessesInlineInLambdaWithoutQueue(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "servicedocs-http")

	app, err := Build(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(time.Second) })

	assert.Equal(t, documents.Dispatcher(app.Processor), app.Dispatcher)
	assert.Equal(t, documents.Dispatcher(app.Processor), app.DocumentsService.Dispatcher)
	assert.Equal(t, app.Dispatcher, app.Trigger.Dispatcher)
	assert.Nil(t, app.async)
}
