package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Cycle names used as the "cycle" label.
const (
	CycleExtract = "extract"
	CycleQuery   = "query"
)

// OutcomeOK labels a successful cycle; failures use the error kind.
const OutcomeOK = "ok"

var (
	cycleStarted  = newCounterVec()
	cycleFinished = newCounterVec()
	rateLimited   = newCounterVec()

	extractDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
	queryDuration   = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})

	sessionsCreatedTotal atomic.Uint64
	sessionsExpiredTotal atomic.Uint64
	sessionsActive       atomic.Int64
	panicsTotal          atomic.Uint64
	sessionSaveFailures  atomic.Uint64
)

// IncCycleStarted counts a cycle that passed its preconditions checks.
func IncCycleStarted(cycle string) {
	cycleStarted.Inc(labels{"cycle": cycle})
}

// ObserveCycle records the outcome and duration of a cycle.
func ObserveCycle(cycle, outcome string, d time.Duration) {
	if outcome == "" {
		outcome = OutcomeOK
	}
	cycleFinished.Inc(labels{"cycle": cycle, "outcome": outcome})
	ms := float64(d) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	switch cycle {
	case CycleExtract:
		extractDuration.Observe(ms)
	case CycleQuery:
		queryDuration.Observe(ms)
	}
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited(group string) {
	rateLimited.Inc(labels{"group": group})
}

// IncPanics counts handler panics caught by the recovery middleware.
func IncPanics() {
	panicsTotal.Add(1)
}

// IncSessionSaveFailed counts snapshots the session store rejected.
func IncSessionSaveFailed() {
	sessionSaveFailures.Add(1)
}

// IncSessionCreated counts a new session.
func IncSessionCreated() {
	sessionsCreatedTotal.Add(1)
}

// IncSessionsExpired counts sessions evicted by the TTL sweep.
func IncSessionsExpired(n int) {
	if n > 0 {
		sessionsExpiredTotal.Add(uint64(n))
	}
}

// SetActiveSessions sets the live session gauge.
func SetActiveSessions(n int) {
	sessionsActive.Store(int64(n))
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
	writeCounterVec(&buf, "llm_cycle_started_total", "Cycles that issued a generation request", cycleStarted.Snapshot())
	writeCounterVec(&buf, "llm_cycle_finished_total", "Cycles finished, by outcome", cycleFinished.Snapshot())
	writeHistogram(&buf, "llm_extract_duration_ms", "Extraction cycle duration in milliseconds", extractDuration.Snapshot())
	writeHistogram(&buf, "llm_query_duration_ms", "Query cycle duration in milliseconds", queryDuration.Snapshot())
	writeCounterVec(&buf, "http_rate_limited_total", "Requests rejected by the rate limiter, by group", rateLimited.Snapshot())
	writeCounter(&buf, "sessions_created_total", "Total sessions created", sessionsCreatedTotal.Load())
	writeCounter(&buf, "sessions_expired_total", "Total sessions evicted after the idle TTL", sessionsExpiredTotal.Load())
	writeCounter(&buf, "session_save_failures_total", "Session snapshots that failed to persist", sessionSaveFailures.Load())
	writeCounter(&buf, "http_panics_total", "Handler panics recovered", panicsTotal.Load())
	writeGauge(&buf, "sessions_active", "Sessions currently held in memory", sessionsActive.Load())
	return buf.String()
}

type labels map[string]string

func (l labels) String() string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, l[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

type counterVec struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec() *counterVec {
	return &counterVec{values: make(map[string]uint64)}
}

func (v *counterVec) Inc(l labels) {
	key := l.String()
	v.mu.Lock()
	v.values[key]++
	v.mu.Unlock()
}

type counterSample struct {
	labels string
	value  uint64
}

func (v *counterVec) Snapshot() []counterSample {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]counterSample, 0, len(v.values))
	for k, val := range v.values {
		out = append(out, counterSample{labels: k, value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].labels < out[j].labels })
	return out
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

// Observe adds value to the first bucket that holds it; buckets are made
// cumulative when rendered.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help string, samples []counterSample) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	for _, s := range samples {
		fmt.Fprintf(buf, "%s%s %d\n", name, s.labels, s.value)
	}
}

func writeGauge(buf *bytes.Buffer, name, help string, value int64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
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
