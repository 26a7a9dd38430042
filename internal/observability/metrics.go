package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu             sync.Mutex
	requestCount   map[string]int64
	requestLatency map[string]time.Duration
	errorCount     map[string]int64
	reconcileCount map[string]int64
	jobCount       map[string]int64
	syncRuns       map[string]int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests       map[string]int64 `json:"requests"`
	AvgLatencyMs   map[string]int64 `json:"avg_latency_ms"`
	Errors         map[string]int64 `json:"errors"`
	Reconciliation map[string]int64 `json:"reconciliation"`
	Jobs           map[string]int64 `json:"jobs"`
	SyncRuns       map[string]int64 `json:"sync_runs"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:   make(map[string]int64),
		requestLatency: make(map[string]time.Duration),
		errorCount:     make(map[string]int64),
		reconcileCount: make(map[string]int64),
		jobCount:       make(map[string]int64),
		syncRuns:       make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestLatency[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordReconciliation counts reconciliation outcomes by action, e.g. "created" or "malformed".
func (m *Metrics) RecordReconciliation(action string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcileCount[action]++
}

// RecordJob counts queue job results keyed by job type and result.
func (m *Metrics) RecordJob(jobType, result string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCount[jobType+"|"+result]++
}

// RecordSyncRun counts bulk sync runs by result.
func (m *Metrics) RecordSyncRun(result string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncRuns[result]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[string]int64, len(m.requestLatency))
	for key, total := range m.requestLatency {
		if n := m.requestCount[key]; n > 0 {
			latency[key] = (total / time.Duration(n)).Milliseconds()
		}
	}

	return Snapshot{
		Requests:       copyCounts(m.requestCount),
		AvgLatencyMs:   latency,
		Errors:         copyCounts(m.errorCount),
		Reconciliation: copyCounts(m.reconcileCount),
		Jobs:           copyCounts(m.jobCount),
		SyncRuns:       copyCounts(m.syncRuns),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
