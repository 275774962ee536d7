package latency

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stats maintains a bounded ring buffer of recent latency samples from which
// aggregates are computed on demand. Safe for concurrent use.
type Stats struct {
	mu   sync.Mutex
	data []time.Duration
	pos  int
	full bool
}

// NewStats creates a Stats window retaining up to window samples. A
// non-positive window falls back to 100.
func NewStats(window int) *Stats {
	if window <= 0 {
		window = 100
	}
	return &Stats{data: make([]time.Duration, window)}
}

// Add records one latency sample, evicting the oldest once the window is
// full.
func (s *Stats) Add(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.pos] = d
	s.pos++
	if s.pos >= len(s.data) {
		s.pos = 0
		s.full = true
	}
}

// Summary is a point-in-time aggregate of the sample window.
type Summary struct {
	Count int
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Summary computes the window aggregates. An empty window yields the zero
// Summary.
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.pos
	if s.full {
		n = len(s.data)
	}
	if n == 0 {
		return Summary{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, s.data[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return Summary{
		Count: n,
		Mean:  sum / time.Duration(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
