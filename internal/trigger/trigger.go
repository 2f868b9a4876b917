package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"servicedocs-backend/internal/documents"
	"servicedocs-backend/internal/shared/telemetry"
)

// DocumentLookup resolves a document from its blob location.
type DocumentLookup interface {
	GetByStorageKey(ctx context.Context, bucket, key string) (documents.Document, error)
}

// Trigger reacts to blob-created notifications by dispatching the matching
// document for processing.
type Trigger struct {
	Docs       DocumentLookup
	Dispatcher documents.Dispatcher
}

// testEvent is the synthetic message S3 sends when a notification is configured.
type testEvent struct {
	Event string `json:"Event"`
}

// IsTestEvent reports whether payload is the s3:TestEvent sent on setup.
func IsTestEvent(payload []byte) bool {
	var ev testEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return false
	}
	return ev.Event == "s3:TestEvent"
}

// HandlePayload accepts a raw notification body, as delivered through SQS or
// a plain HTTP hook. Test events are skipped.
func (t *Trigger) HandlePayload(ctx context.Context, payload []byte) error {
	if IsTestEvent(payload) {
		telemetry.Info("trigger.test_event_skipped", nil)
		return nil
	}
	var event events.S3Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode s3 notification: %w", err)
	}
	return t.Handle(ctx, event)
}

// Handle dispatches every record in the notification. Records are independent:
// all of them are attempted and their errors joined.
func (t *Trigger) Handle(ctx context.Context, event events.S3Event) error {
	var errs []error
	for _, record := range event.Records {
		if err := t.handleRecord(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Trigger) handleRecord(ctx context.Context, record events.S3EventRecord) error {
	bucket := record.S3.Bucket.Name
	key, err := DecodeKey(record.S3.Object.Key)
	if err != nil {
		return fmt.Errorf("decode key %q: %w", record.S3.Object.Key, err)
	}

	doc, err := t.Docs.GetByStorageKey(ctx, bucket, key)
	if errors.Is(err, documents.ErrNotFound) {
		// Uploads that were never initiated through the API are not ours.
		telemetry.Warn("trigger.document_not_found", map[string]any{
			"bucket": bucket,
			"s3_key": key,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup key=%s: %w", key, err)
	}

	telemetry.Info("trigger.dispatch", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"document_id": doc.ID,
		"user_id":     doc.UserID,
		"s3_key":      key,
		"event":       record.EventName,
	})
	if err := t.Dispatcher.Dispatch(ctx, doc.ID); err != nil {
		return fmt.Errorf("dispatch document %s: %w", doc.ID, err)
	}
	return nil
}

// DecodeKey undoes the form encoding S3 applies to object keys in notifications.
func DecodeKey(raw string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(raw, "+", " "))
}
