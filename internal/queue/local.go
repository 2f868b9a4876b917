package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"servicedocs-backend/internal/shared/telemetry"
)

// ErrBusy is returned by AsyncDispatcher.Dispatch when every worker is taken.
var ErrBusy = errors.New("document workers busy")

// ProcessFunc handles one document.
type ProcessFunc func(ctx context.Context, documentID string) error

// AsyncDispatcher runs documents in-process on a bounded goroutine pool. It
// stands in for SQS in local and single-binary deployments. Failures are
// recorded on the document by the processor and logged here.
type AsyncDispatcher struct {
	pool    *ants.Pool
	process ProcessFunc
}

// NewAsyncDispatcher starts a pool of size workers. Submissions never wait
// for a free worker.
func NewAsyncDispatcher(size int, process ProcessFunc) (*AsyncDispatcher, error) {
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &AsyncDispatcher{pool: pool, process: process}, nil
}

// Dispatch submits documentID and returns immediately, with ErrBusy when the
// pool is saturated. The job outlives the caller's request context but keeps
// its values.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, documentID string) error {
	jobCtx := context.WithoutCancel(ctx)
	err := d.pool.Submit(func() {
		if err := d.process(jobCtx, documentID); err != nil {
			telemetry.Error("worker.document.failed", map[string]any{
				"document_id": documentID,
				"request_id":  telemetry.RequestID(jobCtx),
				"error":       err.Error(),
			})
		}
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		telemetry.Warn("worker.document.rejected", map[string]any{
			"document_id": documentID,
			"request_id":  telemetry.RequestID(ctx),
			"running":     d.pool.Running(),
		})
		return fmt.Errorf("submit document %s: %w", documentID, ErrBusy)
	}
	if err != nil {
		return fmt.Errorf("submit document %s: %w", documentID, err)
	}
	return nil
}

// Running reports the number of in-flight jobs.
func (d *AsyncDispatcher) Running() int {
	return d.pool.Running()
}

// Close waits up to timeout for in-flight jobs and releases the pool.
func (d *AsyncDispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}
