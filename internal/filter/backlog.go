// File: internal/filter/backlog.go
// Brief: Fixed-capacity ring buffer of raw entries kept for filter replay.

package filter

import (
	"github.com/example/ktail/internal/stream"
)

// backlog is an insertion-ordered ring buffer. It is not safe for concurrent
// use on its own; the Manager guards it.
type backlog struct {
	buf      []stream.Entry
	start    int
	size     int
	capacity int
}

func newBacklog(capacity int) *backlog {
	if capacity < 0 {
		capacity = 0
	}
	return &backlog{buf: make([]stream.Entry, capacity), capacity: capacity}
}

// push appends an entry, evicting the oldest once the ring is full. A zero
// capacity disables retention entirely.
func (b *backlog) push(entry stream.Entry) {
	if b.capacity == 0 {
		return
	}
	if b.size < b.capacity {
		b.buf[(b.start+b.size)%b.capacity] = entry
		b.size++
		return
	}
	b.buf[b.start] = entry
	b.start = (b.start + 1) % b.capacity
}

// snapshot copies the retained entries oldest-first. The copy lets callers
// iterate without holding the Manager's lock.
func (b *backlog) snapshot() []stream.Entry {
	out := make([]stream.Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.start+i)%b.capacity]
	}
	return out
}

// resize changes the capacity, keeping the newest entries when shrinking.
func (b *backlog) resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	if capacity == b.capacity {
		return
	}
	entries := b.snapshot()
	if len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
	b.buf = make([]stream.Entry, capacity)
	copy(b.buf, entries)
	b.start = 0
	b.size = len(entries)
	b.capacity = capacity
}

func (b *backlog) len() int { return b.size }
