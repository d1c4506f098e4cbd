// internal/storage/series.go
package storage

import "sync"

// DefaultCapacity is the number of points a chart keeps on screen.
const DefaultCapacity = 10

// Series is a bounded FIFO of (label, value) pairs. Labels and values are
// always index-aligned and never longer than the capacity.
type Series struct {
	mu       sync.RWMutex
	labels   []string
	values   []float64
	capacity int
}

// SeriesSnapshot is a copy of a Series safe to hand to other goroutines.
type SeriesSnapshot struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		labels:   make([]string, 0, capacity+1),
		values:   make([]float64, 0, capacity+1),
		capacity: capacity,
	}
}

// Append adds one point and reports whether the oldest point was evicted to
// make room. A single append grows the series by at most one, so one
// eviction always restores the bound.
func (s *Series) Append(label string, value float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.labels = append(s.labels, label)
	s.values = append(s.values, value)
	if len(s.labels) <= s.capacity {
		return false
	}
	// Shift in place so the backing arrays do not creep forward forever.
	copy(s.labels, s.labels[1:])
	copy(s.values, s.values[1:])
	s.labels = s.labels[:len(s.labels)-1]
	s.values = s.values[:len(s.values)-1]
	return true
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

func (s *Series) Capacity() int {
	return s.capacity
}

// Labels returns a copy of the labels, oldest first.
func (s *Series) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Values returns a copy of the values, oldest first.
func (s *Series) Values() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Snapshot copies labels and values under one lock so they stay aligned.
func (s *Series) Snapshot() SeriesSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := SeriesSnapshot{
		Labels: make([]string, len(s.labels)),
		Values: make([]float64, len(s.values)),
	}
	copy(snap.Labels, s.labels)
	copy(snap.Values, s.values)
	return snap
}
