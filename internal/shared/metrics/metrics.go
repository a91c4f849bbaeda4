package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	reviewStartedTotal   atomic.Uint64
	reviewCompletedTotal atomic.Uint64
	reviewFailedTotal    atomic.Uint64
	cacheHitTotal        atomic.Uint64
	cacheMissTotal       atomic.Uint64
	modelCallTotal       atomic.Uint64

	stageMu        sync.Mutex
	stageDurations = map[string]*histogram{}
)

var stageBuckets = []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000}

// IncReviewStarted increments the started counter.
func IncReviewStarted() {
	reviewStartedTotal.Add(1)
}

// IncReviewCompleted increments the completed counter.
func IncReviewCompleted() {
	reviewCompletedTotal.Add(1)
}

// IncReviewFailed increments the failed counter.
func IncReviewFailed() {
	reviewFailedTotal.Add(1)
}

// IncCacheHit increments the cache hit counter.
func IncCacheHit() {
	cacheHitTotal.Add(1)
}

// IncCacheMiss increments the cache miss counter.
func IncCacheMiss() {
	cacheMissTotal.Add(1)
}

// IncModelCall increments the outbound model invocation counter.
func IncModelCall() {
	modelCallTotal.Add(1)
}

// ObserveStageDurationMs records a pipeline stage duration in milliseconds.
func ObserveStageDurationMs(stage string, value float64) {
	if value < 0 {
		value = 0
	}
	stageMu.Lock()
	h, ok := stageDurations[stage]
	if !ok {
		h = newHistogram(stageBuckets)
		stageDurations[stage] = h
	}
	stageMu.Unlock()
	h.Observe(value)
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
	writeCounter(&buf, "review_started_total", "Total reviews started", reviewStartedTotal.Load())
	writeCounter(&buf, "review_completed_total", "Total reviews completed", reviewCompletedTotal.Load())
	writeCounter(&buf, "review_failed_total", "Total reviews failed", reviewFailedTotal.Load())
	writeCounter(&buf, "cache_hit_total", "Total stage cache hits", cacheHitTotal.Load())
	writeCounter(&buf, "cache_miss_total", "Total stage cache misses", cacheMissTotal.Load())
	writeCounter(&buf, "model_call_total", "Total model backend invocations", modelCallTotal.Load())

	stageMu.Lock()
	stages := make([]string, 0, len(stageDurations))
	for stage := range stageDurations {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	snaps := make(map[string]histogramSnapshot, len(stages))
	for _, stage := range stages {
		snaps[stage] = stageDurations[stage].Snapshot()
	}
	stageMu.Unlock()

	fmt.Fprintf(&buf, "# HELP stage_duration_ms Pipeline stage duration in milliseconds\n")
	fmt.Fprintf(&buf, "# TYPE stage_duration_ms histogram\n")
	for _, stage := range stages {
		writeHistogramSeries(&buf, "stage_duration_ms", stage, snaps[stage])
	}
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
	counts := make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return histogramSnapshot{
		buckets: h.buckets,
		counts:  counts,
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogramSeries(buf *bytes.Buffer, name, stage string, snap histogramSnapshot) {
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{stage=%q,le=%q} %d\n", name, stage, strconv.FormatFloat(bound, 'f', -1, 64), snap.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket{stage=%q,le=\"+Inf\"} %d\n", name, stage, snap.count)
	fmt.Fprintf(buf, "%s_sum{stage=%q} %g\n", name, stage, snap.sum)
	fmt.Fprintf(buf, "%s_count{stage=%q} %d\n", name, stage, snap.count)
}
