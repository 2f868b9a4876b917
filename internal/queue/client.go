package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"servicedocs-backend/internal/shared/telemetry"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher schedules documents by enqueueing a Message per document.
type Dispatcher struct {
	Client Client
	now    func() time.Time
}

// NewDispatcher wraps a queue client.
func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{Client: client}
}

// Dispatch enqueues documentID, carrying the request id from ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("dispatch: document id is required")
	}
	now := time.Now().UTC()
	if d.now != nil {
		now = d.now()
	}
	msg := Message{
		DocumentID: documentID,
		RequestID:  telemetry.RequestID(ctx),
		EnqueuedAt: now.Format(time.RFC3339),
	}
	if err := d.Client.Send(ctx, msg); err != nil {
		return err
	}
	telemetry.Info("queue.enqueued", map[string]any{
		"document_id": documentID,
		"request_id":  msg.RequestID,
	})
	return nil
}
