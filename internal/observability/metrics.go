package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
	sweepRuns       int64
	sweepClosed     int64
	sweepFailures   int64
	lastSweep       time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests       map[string]int64 `json:"requests"`
	Errors         map[string]int64 `json:"errors"`
	Transitions    map[string]int64 `json:"transitions"`
	SweepRuns      int64            `json:"sweep_runs"`
	SweepClosed    int64            `json:"sweep_closed"`
	SweepFailures  int64            `json:"sweep_failures"`
	LastSweepMilli int64            `json:"last_sweep_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
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

// RecordTransition counts a transition attempt by name and outcome code
// ("ok" on success).
func (m *Metrics) RecordTransition(name, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[name+"|"+outcome]++
}

// RecordSweep records one auto-close run.
func (m *Metrics) RecordSweep(closed, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepRuns++
	m.sweepClosed += int64(closed)
	m.sweepFailures += int64(failed)
	m.lastSweep = took
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:       copyCounts(m.requestCount),
		Errors:         copyCounts(m.errorCount),
		Transitions:    copyCounts(m.transitionCount),
		SweepRuns:      m.sweepRuns,
		SweepClosed:    m.sweepClosed,
		SweepFailures:  m.sweepFailures,
		LastSweepMilli: m.lastSweep.Milliseconds(),
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
