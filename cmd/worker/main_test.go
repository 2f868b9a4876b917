package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"servicedocs-backend/internal/queue"
	"servicedocs-backend/internal/workerproc"
)

type fakeSQS struct {
	deleted  []string
	received [][]sqstypes.Message
	cancel   context.CancelFunc
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if len(f.received) == 0 {
		f.cancel()
		return nil, context.Canceled
	}
	batch := f.received[0]
	f.received = f.received[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeProcessor struct {
	err       error
	processed []string
}

func (f *fakeProcessor) Process(ctx context.Context, documentID string) error {
	f.processed = append(f.processed, documentID)
	return f.err
}

type fakeNotifications struct{ payloads []string }

func (f *fakeNotifications) HandlePayload(ctx context.Context, payload []byte) error {
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func jobMessage(t *testing.T, id, receipt string, msg queue.Message) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakeProcessor{}
	handler := &workerproc.Handler{Processor: proc}
	msg := jobMessage(t, "m1", "r1", queue.Message{DocumentID: "doc-1", RequestID: "req-1"})

	handleMessage(context.Background(), client, "queue", handler, msg)

	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected delete of r1, got %v", client.deleted)
	}
	if len(proc.processed) != 1 || proc.processed[0] != "doc-1" {
		t.Fatalf("expected doc-1 processed, got %v", proc.processed)
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	handler := &workerproc.Handler{Processor: &fakeProcessor{err: errors.New("boom")}}
	msg := jobMessage(t, "m2", "r2", queue.Message{DocumentID: "doc-2"})

	handleMessage(context.Background(), client, "queue", handler, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesUnrecoverableMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: "{not-json"},
		{name: "empty body", body: "  "},
		{name: "missing document id", body: `{"requestId":"req-3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQS{}
			proc := &fakeProcessor{}
			msg := sqstypes.Message{
				MessageId:     aws.String("m3"),
				ReceiptHandle: aws.String("r3"),
				Body:          aws.String(tt.body),
			}

			handleMessage(context.Background(), client, "queue", &workerproc.Handler{Processor: proc}, msg)

			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %d", len(client.deleted))
			}
			if len(proc.processed) != 0 {
				t.Fatalf("expected no processing, got %v", proc.processed)
			}
		})
	}
}

func TestWorkerRoutesBlobNotifications(t *testing.T) {
	client := &fakeSQS{}
	notifications := &fakeNotifications{}
	handler := &workerproc.Handler{Processor: &fakeProcessor{}, Trigger: notifications}
	body := `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"documents/u/1-a-report.pdf"}}}]}`
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String(body),
	}

	handleMessage(context.Background(), client, "queue", handler, msg)

	if len(notifications.payloads) != 1 {
		t.Fatalf("expected notification handled, got %d", len(notifications.payloads))
	}
	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerSkipsDeleteWithoutReceipt(t *testing.T) {
	client := &fakeSQS{}
	msg := jobMessage(t, "m5", "", queue.Message{DocumentID: "doc-5"})
	msg.ReceiptHandle = nil

	handleMessage(context.Background(), client, "queue", &workerproc.Handler{Processor: &fakeProcessor{}}, msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete call, got %v", client.deleted)
	}
}

func TestPollSubmitsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeSQS{
		cancel: cancel,
		received: [][]sqstypes.Message{
			{jobMessage(t, "a", "ra", queue.Message{DocumentID: "doc-a"}), jobMessage(t, "b", "rb", queue.Message{DocumentID: "doc-b"})},
			{jobMessage(t, "c", "rc", queue.Message{DocumentID: "doc-c"})},
		},
	}

	var submitted []string
	poll(ctx, client, "queue", 900, func(msg sqstypes.Message) error {
		submitted = append(submitted, aws.ToString(msg.MessageId))
		return nil
	})

	if len(submitted) != 3 {
		t.Fatalf("expected 3 submitted messages, got %v", submitted)
	}
}

func TestReceiveCount(t *testing.T) {
	msg := sqstypes.Message{Attributes: map[string]string{"ApproximateReceiveCount": "4"}}
	if got := receiveCount(msg); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if got := receiveCount(sqstypes.Message{}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
