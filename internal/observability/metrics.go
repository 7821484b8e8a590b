package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	transitions   map[string]int64
	rejections    map[string]int64
	renames       map[string]int64
	assignments   map[string]int64
	externalFails map[string]int64
	latencyTotal  time.Duration
}

// Snapshot is a copy of every counter.
type Snapshot struct {
	Requests         map[string]int64 `json:"requests"`
	Errors           map[string]int64 `json:"errors"`
	Transitions      map[string]int64 `json:"transitions"`
	Rejections       map[string]int64 `json:"rejections"`
	Renames          map[string]int64 `json:"renames"`
	Assignments      map[string]int64 `json:"assignments"`
	ExternalFailures map[string]int64 `json:"external_failures"`
	RequestTimeMS    int64            `json:"request_time_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		transitions:   make(map[string]int64),
		rejections:    make(map[string]int64),
		renames:       make(map[string]int64),
		assignments:   make(map[string]int64),
		externalFails: make(map[string]int64),
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
	m.latencyTotal += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.inc(m.errorCount, path+"|"+method+"|"+code)
}

// RecordTransition counts a successful ticket action.
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.inc(m.transitions, action)
}

// RecordRejection counts an action refused by validation.
func (m *Metrics) RecordRejection(action, code string) {
	if m == nil {
		return
	}
	m.inc(m.rejections, action+"|"+code)
}

// RecordAssignment counts assignment outcomes per strategy.
func (m *Metrics) RecordAssignment(strategy string, picked bool) {
	if m == nil {
		return
	}
	outcome := "none"
	if picked {
		outcome = "picked"
	}
	m.inc(m.assignments, strategy+"|"+outcome)
}

// RecordExternalFailure counts failed platform calls outside the rename limiter.
func (m *Metrics) RecordExternalFailure(operation string) {
	if m == nil {
		return
	}
	m.inc(m.externalFails, operation)
}

// RenameApplied implements the rename limiter observer.
func (m *Metrics) RenameApplied(string) { m.recordRename("applied") }

// RenameSkipped implements the rename limiter observer.
func (m *Metrics) RenameSkipped(string) { m.recordRename("skipped") }

// RenameFailed implements the rename limiter observer.
func (m *Metrics) RenameFailed(string) { m.recordRename("failed") }

func (m *Metrics) recordRename(outcome string) {
	if m == nil {
		return
	}
	m.inc(m.renames, outcome)
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:         copyCounts(m.requestCount),
		Errors:           copyCounts(m.errorCount),
		Transitions:      copyCounts(m.transitions),
		Rejections:       copyCounts(m.rejections),
		Renames:          copyCounts(m.renames),
		Assignments:      copyCounts(m.assignments),
		ExternalFailures: copyCounts(m.externalFails),
		RequestTimeMS:    m.latencyTotal.Milliseconds(),
	}
}

func (m *Metrics) inc(counts map[string]int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts[key]++
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
