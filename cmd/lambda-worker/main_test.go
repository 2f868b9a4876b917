package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicedocs-backend/internal/shared/telemetry"
	"servicedocs-backend/internal/workerproc"
)

type fakeProcessor struct {
	fail map[string]error
}

func (f fakeProcessor) Process(ctx context.Context, documentID string) error {
	return f.fail[documentID]
}

func TestHandleBatchReportsOnlyRetryableFailures(t *testing.T) {
	h := &workerproc.Handler{Processor: fakeProcessor{fail: map[string]error{"doc-2": errors.New("openai http status 503")}}}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"documentId":"doc-1"}`},
		{MessageId: "m2", Body: `{"documentId":"doc-2"}`},
		{MessageId: "m3", Body: `{not-json`},
		{MessageId: "m4", Body: `{"requestId":"r"}`},
	}}

	resp := handleBatch(context.Background(), h, event)

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandlerFailsWholeBatchWhenBootstrapFails(t *testing.T) {
	var buf bytes.Buffer
	restore := telemetry.SetOutput(&buf)
	defer restore()

	initOnce.Do(func() {})
	initErr = errors.New("DATABASE_URL is required")
	t.Cleanup(func() { initErr = nil })

	resp, err := handler(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1"}, {MessageId: "m2"},
	}})

	require.Error(t, err)
	assert.Len(t, resp.BatchItemFailures, 2)
	assert.Contains(t, buf.String(), `"msg":"lambda.bootstrap_failed"`)
	assert.Contains(t, buf.String(), "DATABASE_URL is required")
}
