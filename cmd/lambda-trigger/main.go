package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-trigger

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"servicedocs-backend/internal/bootstrap"
	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/telemetry"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

// handler receives ObjectCreated notifications for uploaded PDFs. With
// SQS_QUEUE_URL set the document is enqueued; otherwise bootstrap wires the
// processor in directly and the document is processed in the invocation.
func handler(ctx context.Context, event events.S3Event) error {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": initErr.Error()})
		return initErr
	}
	return app.Trigger.Handle(ctx, event)
}

func main() {
	lambda.Start(handler)
}
