package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"servicedocs-backend/internal/shared/telemetry"
)

func TestDecodeMessageDocumentOnly(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"documentId":"doc-1"}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.DocumentID != "doc-1" || msg.RequestID != "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestEncodeMessageOmitsEmptyOptionalFields(t *testing.T) {
	payload, err := EncodeMessage(Message{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	if string(payload) != `{"documentId":"doc-1"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

type recordingClient struct {
	msgs []Message
	err  error
}

func (c *recordingClient) Send(_ context.Context, msg Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestDispatcherEnqueuesWithRequestID(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client)
	d.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	ctx := telemetry.WithRequestID(context.Background(), "req-1")
	if err := d.Dispatch(ctx, "doc-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := Message{DocumentID: "doc-1", RequestID: "req-1", EnqueuedAt: "2024-06-01T12:00:00Z"}
	if len(client.msgs) != 1 || client.msgs[0] != want {
		t.Fatalf("unexpected messages %+v", client.msgs)
	}

	if err := d.Dispatch(ctx, " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
	client.err = errors.New("throttled")
	if err := d.Dispatch(ctx, "doc-2"); err == nil {
		t.Fatalf("expected send error")
	}
}

type fakeSender struct {
	input *sqs.SendMessageInput
}

func (f *fakeSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSClientSendsJSONBody(t *testing.T) {
	sender := &fakeSender{}
	client := NewSQSClientFromAPI(sender, "https://sqs.example/queue")

	if err := client.Send(context.Background(), Message{DocumentID: "doc-1", RequestID: "req-1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(sender.input.QueueUrl) != "https://sqs.example/queue" {
		t.Fatalf("unexpected queue url %q", aws.ToString(sender.input.QueueUrl))
	}
	body := aws.ToString(sender.input.MessageBody)
	if !strings.Contains(body, `"documentId":"doc-1"`) || !strings.Contains(body, `"requestId":"req-1"`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestAsyncDispatcherRunsJobs(t *testing.T) {
	var done sync.WaitGroup
	var processed atomic.Int32
	done.Add(3)
	d, err := NewAsyncDispatcher(3, func(ctx context.Context, id string) error {
		defer done.Done()
		processed.Add(1)
		if id == "doc-2" {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NewAsyncDispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		if err := d.Dispatch(ctx, id); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	cancel()
	done.Wait()

	if processed.Load() != 3 {
		t.Fatalf("expected 3 jobs, got %d", processed.Load())
	}
	_ = d.Close(time.Second)
}

func TestAsyncDispatcherRejectsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d, err := NewAsyncDispatcher(1, func(ctx context.Context, id string) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("NewAsyncDispatcher: %v", err)
	}
	defer func() {
		close(release)
		_ = d.Close(time.Second)
	}()

	if err := d.Dispatch(context.Background(), "doc-1"); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	<-started

	result := make(chan error, 1)
	go func() { result <- d.Dispatch(context.Background(), "doc-2") }()

	select {
	case err := <-result:
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Dispatch blocked while the only worker is busy")
	}
}
