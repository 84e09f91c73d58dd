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
	ingestionTriggeredTotal atomic.Uint64
	ingestionCompletedTotal atomic.Uint64
	ingestionFailedTotal    atomic.Uint64
	ingestionCancelledTotal atomic.Uint64
	ingestionRetriedTotal   atomic.Uint64
	ingestionStaleTotal     atomic.Uint64
	ingestionRearmedTotal   atomic.Uint64

	ingestionResolution = newHistogram([]float64{100, 250, 500, 1000, 2000, 3000, 5000, 10000, 30000, 60000})
)

func IncIngestionTriggered() { ingestionTriggeredTotal.Add(1) }

func IncIngestionRetried() { ingestionRetriedTotal.Add(1) }

// IncIngestionStale counts completions dropped because the log moved on.
func IncIngestionStale() { ingestionStaleTotal.Add(1) }

// IncIngestionRearmed counts completions re-scheduled by the sweeper.
func IncIngestionRearmed() { ingestionRearmedTotal.Add(1) }

// IncIngestionResolved bumps the counter matching a terminal status.
func IncIngestionResolved(status string) {
	switch status {
	case "completed":
		ingestionCompletedTotal.Add(1)
	case "failed":
		ingestionFailedTotal.Add(1)
	case "cancelled":
		ingestionCancelledTotal.Add(1)
	}
}

// ObserveIngestionResolutionMs records trigger-to-terminal latency in milliseconds.
func ObserveIngestionResolutionMs(value float64) {
	if value < 0 {
		value = 0
	}
	ingestionResolution.Observe(value)
}

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
	writeCounter(&buf, "ingestion_triggered_total", "Total ingestions triggered", ingestionTriggeredTotal.Load())
	writeCounter(&buf, "ingestion_completed_total", "Total ingestions completed", ingestionCompletedTotal.Load())
	writeCounter(&buf, "ingestion_failed_total", "Total ingestions failed", ingestionFailedTotal.Load())
	writeCounter(&buf, "ingestion_cancelled_total", "Total ingestions cancelled", ingestionCancelledTotal.Load())
	writeCounter(&buf, "ingestion_retried_total", "Total ingestion retries", ingestionRetriedTotal.Load())
	writeCounter(&buf, "ingestion_stale_completions_total", "Completions ignored for a superseded attempt", ingestionStaleTotal.Load())
	writeCounter(&buf, "ingestion_rearmed_total", "Completions re-scheduled by the sweeper", ingestionRearmedTotal.Load())
	writeHistogram(&buf, "ingestion_resolution_ms", "Time from trigger to terminal status in milliseconds", ingestionResolution.Snapshot())
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
	// counts are already cumulative: Observe bumps every bucket whose bound covers the value.
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
