package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/panjf2000/ants/v2"

	"servicedocs-backend/internal/bootstrap"
	"servicedocs-backend/internal/shared/config"
	"servicedocs-backend/internal/shared/metrics"
	"servicedocs-backend/internal/shared/telemetry"
	"servicedocs-backend/internal/workerproc"
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()
	if cfg.SQSQueueURL == "" {
		fatal("worker.config_invalid", errors.New("SQS_QUEUE_URL is required"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		fatal("worker.aws_config_failed", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(cfg)
	if err != nil {
		fatal("worker.bootstrap_failed", err)
	}

	// Blocking submit: the poll loop waits for a free worker instead of
	// receiving messages it cannot start before their visibility expires.
	pool, err := ants.NewPool(max(1, cfg.WorkerConcurrency))
	if err != nil {
		fatal("worker.pool_failed", err)
	}

	telemetry.Info("worker.started", map[string]any{
		"queue_url":          cfg.SQSQueueURL,
		"concurrency":        cfg.WorkerConcurrency,
		"visibility_seconds": cfg.SQSVisibilitySeconds,
	})

	poll(ctx, sqsClient, cfg.SQSQueueURL, int32(cfg.SQSVisibilitySeconds), func(msg sqstypes.Message) error {
		metrics.IncWorkerJobsReceived()
		return pool.Submit(func() {
			// In-flight jobs run to completion within the shutdown timeout.
			handleMessage(context.WithoutCancel(ctx), sqsClient, cfg.SQSQueueURL, app.Worker, msg)
		})
	})

	telemetry.Info("worker.shutdown_requested", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	if err := pool.ReleaseTimeout(cfg.ShutdownTimeout); err != nil {
		telemetry.Error("worker.shutdown_timeout", map[string]any{"in_flight": pool.Running()})
	}
	if err := app.Close(cfg.ShutdownTimeout); err != nil {
		telemetry.Error("worker.close_failed", map[string]any{"error": err.Error()})
	}
	telemetry.Info("worker.stopped", nil)
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err.Error()})
	telemetry.Sync()
	os.Exit(1)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type messageHandler interface {
	HandleMessage(ctx context.Context, body string) error
}

// poll long-polls the queue until ctx is done and hands every message to submit.
func poll(ctx context.Context, client sqsAPI, queueURL string, visibility int32, submit func(sqstypes.Message) error) {
	for ctx.Err() == nil {
		resp, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   visibility,
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}
		for _, msg := range resp.Messages {
			if ctx.Err() != nil {
				return
			}
			if err := submit(msg); err != nil {
				telemetry.Error("worker.submit_failed", map[string]any{
					"sqs_message_id": aws.ToString(msg.MessageId),
					"error":          err.Error(),
				})
			}
		}
	}
}

// handleMessage processes one delivery. The message is deleted on success or
// when it can never succeed; otherwise it is left for redelivery.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, handler messageHandler, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	var documentID, requestID string

	if !workerproc.IsNotification(body) {
		decoded, meta, err := workerproc.ParseMessage(body)
		if err != nil {
			fields := baseFields(msg, "", "")
			fields["body_len"] = meta.BodyLen
			if meta.BodySHA != "" {
				fields["body_sha256"] = meta.BodySHA
			}
			fields["error"] = err.Error()
			telemetry.Error("worker.document.unrecoverable", fields)
			if deleteMessage(ctx, client, queueURL, msg, "", "") {
				metrics.IncWorkerJobsDiscarded()
			}
			return
		}
		documentID, requestID = decoded.DocumentID, decoded.RequestID
		telemetry.Info("worker.document.received", baseFields(msg, documentID, requestID))
		ctx = workerproc.WithParsedMessage(ctx, decoded)
	}

	if err := handler.HandleMessage(ctx, body); err != nil {
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) {
			fields := baseFields(msg, procErr.DocumentID, procErr.RequestID)
			fields["error"] = procErr.Err.Error()
			telemetry.Error("worker.document.failed", fields)
			metrics.IncWorkerJobsFailed()
			return
		}
		fields := baseFields(msg, "", "")
		fields["error"] = err.Error()
		if workerproc.Unrecoverable(err) {
			telemetry.Error("worker.document.unrecoverable", fields)
			if deleteMessage(ctx, client, queueURL, msg, "", "") {
				metrics.IncWorkerJobsDiscarded()
			}
			return
		}
		telemetry.Error("worker.document.failed", fields)
		metrics.IncWorkerJobsFailed()
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, documentID, requestID) {
		telemetry.Info("worker.document.completed", baseFields(msg, documentID, requestID))
		metrics.IncWorkerJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, documentID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.document.delete_failed", fields)
		return false
	}
	// Deleting must survive shutdown so finished work is not redelivered.
	if _, err := client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.document.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if documentID != "" {
		fields["document_id"] = documentID
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
