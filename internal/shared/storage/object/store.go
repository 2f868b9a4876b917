package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultPresignExpiry is the lifetime of issued upload and download URLs.
const DefaultPresignExpiry = time.Hour

// ErrNotFound is returned when the addressed object does not exist.
var ErrNotFound = errors.New("object not found")

// PutRequest describes a presigned upload. ContentType and ContentLength are
// pinned into the signature so the client cannot upload something else.
type PutRequest struct {
	Bucket        string
	Key           string
	ContentType   string
	ContentLength int64
	Expires       time.Duration
}

// GetRequest describes a presigned, inline download.
type GetRequest struct {
	Bucket      string
	Key         string
	FileName    string
	ContentType string
	Expires     time.Duration
}

// Presigned is a time-boxed URL.
type Presigned struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// Store is the blob store contract used by upload intake and the processor.
type Store interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PresignPut(ctx context.Context, req PutRequest) (Presigned, error)
	PresignGet(ctx context.Context, req GetRequest) (Presigned, error)
	Delete(ctx context.Context, bucket, key string) error
}

// ExpiresOrDefault returns d, or DefaultPresignExpiry when d is not positive.
func ExpiresOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPresignExpiry
	}
	return d
}
