package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	documentsStartedTotal   atomic.Uint64
	documentsProcessedTotal atomic.Uint64
	documentsFailedTotal    atomic.Uint64
	fixesExtractedTotal     atomic.Uint64

	searchRequestsTotal atomic.Uint64
	searchFailedTotal   atomic.Uint64

	workerJobsReceivedTotal   atomic.Uint64
	workerJobsCompletedTotal  atomic.Uint64
	workerJobsFailedTotal     atomic.Uint64
	workerJobsDiscardedTotal  atomic.Uint64
	backfillRecordsTotal      atomic.Uint64
	backfillRecordErrorsTotal atomic.Uint64

	processingDuration = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000})
	searchDuration     = newHistogram([]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
)

// IncDocumentStarted counts a processor run entering the processing state.
func IncDocumentStarted() { documentsStartedTotal.Add(1) }

// IncDocumentProcessed counts a document reaching completed.
func IncDocumentProcessed() { documentsProcessedTotal.Add(1) }

// IncDocumentFailed counts a document reaching failed.
func IncDocumentFailed() { documentsFailedTotal.Add(1) }

// AddFixesExtracted counts persisted fixes.
func AddFixesExtracted(n int) {
	if n > 0 {
		fixesExtractedTotal.Add(uint64(n))
	}
}

// ObserveProcessingDurationMs records a processor run duration in milliseconds.
func ObserveProcessingDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	processingDuration.Observe(value)
}

// IncSearchRequest counts a hybrid search.
func IncSearchRequest() { searchRequestsTotal.Add(1) }

// IncSearchFailed counts a hybrid search that returned an error.
func IncSearchFailed() { searchFailedTotal.Add(1) }

// ObserveSearchDurationMs records a hybrid search duration in milliseconds.
func ObserveSearchDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	searchDuration.Observe(value)
}

func IncWorkerJobsReceived()  { workerJobsReceivedTotal.Add(1) }
func IncWorkerJobsCompleted() { workerJobsCompletedTotal.Add(1) }
func IncWorkerJobsFailed()    { workerJobsFailedTotal.Add(1) }

// IncWorkerJobsDiscarded counts messages deleted without processing because they could never succeed.
func IncWorkerJobsDiscarded() { workerJobsDiscardedTotal.Add(1) }

func IncBackfillRecord()      { backfillRecordsTotal.Add(1) }
func IncBackfillRecordError() { backfillRecordErrorsTotal.Add(1) }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "documents_started_total", "Total processor runs started", documentsStartedTotal.Load())
	writeCounter(&buf, "documents_processed_total", "Total documents completed", documentsProcessedTotal.Load())
	writeCounter(&buf, "documents_failed_total", "Total documents failed", documentsFailedTotal.Load())
	writeCounter(&buf, "fixes_extracted_total", "Total fixes persisted", fixesExtractedTotal.Load())
	writeHistogram(&buf, "document_processing_duration_ms", "Document processing duration in milliseconds", processingDuration.Snapshot())
	writeCounter(&buf, "search_requests_total", "Total hybrid searches", searchRequestsTotal.Load())
	writeCounter(&buf, "search_failed_total", "Total failed hybrid searches", searchFailedTotal.Load())
	writeHistogram(&buf, "search_duration_ms", "Hybrid search duration in milliseconds", searchDuration.Snapshot())
	writeCounter(&buf, "worker_jobs_received_total", "Queue messages received", workerJobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Queue messages completed", workerJobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Queue messages left for redelivery", workerJobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_discarded_total", "Queue messages deleted as unrecoverable", workerJobsDiscardedTotal.Load())
	writeCounter(&buf, "backfill_records_total", "Backfilled fixes", backfillRecordsTotal.Load())
	writeCounter(&buf, "backfill_record_errors_total", "Backfill per-record failures", backfillRecordErrorsTotal.Load())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	// Observe already increments every bucket whose bound covers the value.
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), snap.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
