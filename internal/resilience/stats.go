package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// ringSize bounds the number of recent samples kept per operation class, so
// percentiles reflect current behavior instead of the whole process lifetime.
const ringSize = 128

type opRecord struct {
	count    int64
	failures int64
	total    time.Duration
	ring     [ringSize]time.Duration
	n        int
	next     int
}

func (r *opRecord) observe(dur time.Duration, failed bool) {
	r.count++
	if failed {
		r.failures++
	}
	r.total += dur
	r.ring[r.next] = dur
	r.next = (r.next + 1) % ringSize
	if r.n < ringSize {
		r.n++
	}
}

// StatsRegistry accumulates success/failure counters and recent latency
// samples per operation class.
type StatsRegistry struct {
	mu  sync.Mutex
	ops map[string]*opRecord
}

func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{ops: make(map[string]*opRecord)}
}

func (s *StatsRegistry) Record(op string, dur time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ops[op]
	if !ok {
		rec = &opRecord{}
		s.ops[op] = rec
	}
	rec.observe(dur, failed)
}

// Reset drops all accumulated counters and samples.
func (s *StatsRegistry) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = make(map[string]*opRecord)
}

// Snapshot computes the exportable view. Percentiles are approximate,
// derived from the retained sample window.
func (s *StatsRegistry) Snapshot() map[string]domain.OpStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.OpStats, len(s.ops))
	for op, rec := range s.ops {
		st := domain.OpStats{Count: rec.count, Failures: rec.failures}
		if rec.count > 0 {
			st.SuccessRate = float64(rec.count-rec.failures) / float64(rec.count)
			st.AvgMillis = float64(rec.total.Microseconds()) / float64(rec.count) / 1000
		}
		if rec.n > 0 {
			window := make([]time.Duration, rec.n)
			copy(window, rec.ring[:rec.n])
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			st.P95Millis = millis(percentile(window, 0.95))
			st.P99Millis = millis(percentile(window, 0.99))
		}
		out[op] = st
	}
	return out
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*q+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
