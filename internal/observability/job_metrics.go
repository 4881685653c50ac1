package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// JobMetrics are in-process counters the worker exposes on its health port,
// next to the Prometheus series.
type JobMetrics struct {
	claimed      atomic.Uint64
	done         atomic.Uint64
	failed       atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64

	// nanoseconds
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64

	// job type -> result -> count
	mu     sync.Mutex
	byType map[string]map[string]uint64
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{byType: map[string]map[string]uint64{}}
}

// IncResult counts one outcome (done, retry, failed) for a job type, so the
// stats endpoint shows which notices are struggling.
func (m *JobMetrics) IncResult(jobType, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byType == nil {
		m.byType = map[string]map[string]uint64{}
	}
	results, ok := m.byType[jobType]
	if !ok {
		results = map[string]uint64{}
		m.byType[jobType] = results
	}
	results[result]++
}

func (m *JobMetrics) IncClaimed() {
	m.claimed.Add(1)
}
func (m *JobMetrics) IncDone() {
	m.done.Add(1)
}
func (m *JobMetrics) IncFailed() {
	m.failed.Add(1)
}

func (m *JobMetrics) IncRetried() {
	m.retried.Add(1)
}

func (m *JobMetrics) IncDeadLettered() {
	m.deadLettered.Add(1)
}

func (m *JobMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()

		if ns <= curr {
			return
		}

		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobMetricsSnapshot struct {
	Claimed         uint64        `json:"claimed"`
	Done            uint64        `json:"done"`
	Failed          uint64        `json:"failed"`
	Retried         uint64        `json:"retried"`
	DeadLettered    uint64        `json:"deadLettered"`
	DurationCount   uint64        `json:"durationCount"`
	AverageDuration time.Duration `json:"averageDurationNs"`
	MaxDuration     time.Duration `json:"maxDurationNs"`

	ByType map[string]map[string]uint64 `json:"byType"`
}

func (m *JobMetrics) Snapshot() JobMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()
	max := m.durationMax.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return JobMetricsSnapshot{
		Claimed:         m.claimed.Load(),
		Done:            m.done.Load(),
		Failed:          m.failed.Load(),
		Retried:         m.retried.Load(),
		DeadLettered:    m.deadLettered.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(max),
		ByType:          m.copyByType(),
	}

}

func (m *JobMetrics) copyByType() map[string]map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]uint64, len(m.byType))
	for t, results := range m.byType {
		cp := make(map[string]uint64, len(results))
		for r, n := range results {
			cp[r] = n
		}
		out[t] = cp
	}
	return out
}
