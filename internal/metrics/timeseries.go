// File: internal/metrics/timeseries.go
// Brief: Bounded per-pod usage windows.

package metrics

import "time"

// Sample is one observed CPU/memory reading for a pod.
type Sample struct {
	At          time.Time
	CPUm        int64
	MemoryBytes int64
}

// Series is a fixed-capacity window of samples, oldest evicted first. It is
// not safe for concurrent use on its own; the Collector guards it.
type Series struct {
	samples  []Sample
	start    int
	size     int
	capacity int
}

// NewSeries allocates a window holding at most capacity samples.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{samples: make([]Sample, capacity), capacity: capacity}
}

// Push records a sample, evicting the oldest once the window is full.
func (s *Series) Push(sample Sample) {
	if s.size < s.capacity {
		s.samples[(s.start+s.size)%s.capacity] = sample
		s.size++
		return
	}
	s.samples[s.start] = sample
	s.start = (s.start + 1) % s.capacity
}

// Window copies the retained samples oldest-first.
func (s *Series) Window() []Sample {
	out := make([]Sample, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.samples[(s.start+i)%s.capacity]
	}
	return out
}

// Latest returns the newest sample, if any.
func (s *Series) Latest() (Sample, bool) {
	if s.size == 0 {
		return Sample{}, false
	}
	return s.samples[(s.start+s.size-1)%s.capacity], true
}

// Len reports the number of retained samples.
func (s *Series) Len() int { return s.size }
